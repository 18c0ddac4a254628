package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/hashiba/helpchat/internal/core/ingestion"
)

// pageRecord はエクスポートファイル上の1ページ分のレコード
type pageRecord struct {
	SourceID string   `json:"sourceId"`
	SlugID   string   `json:"slugId"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Tags     []string `json:"tags"`
}

// NDJSONLoader はNDJSON形式のページエクスポートを読み込む
// 1行が1ページに対応する
type NDJSONLoader struct {
	path string
}

// NewNDJSONLoader は新しい NDJSONLoader を作成する
func NewNDJSONLoader(path string) *NDJSONLoader {
	return &NDJSONLoader{path: path}
}

// Load はファイル内の全ページを読み込む
// sourceId が欠けている、またはUUIDとして不正なレコードはエラーとする
func (l *NDJSONLoader) Load(ctx context.Context) ([]*ingestion.PageDocument, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", l.path, err)
	}
	defer f.Close()

	var docs []*ingestion.PageDocument

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec pageRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNo, err)
		}

		sourceID, err := uuid.Parse(rec.SourceID)
		if err != nil {
			return nil, fmt.Errorf("invalid sourceId at line %d: %w", lineNo, err)
		}

		docs = append(docs, &ingestion.PageDocument{
			SourceID: sourceID,
			SlugID:   rec.SlugID,
			Title:    rec.Title,
			Text:     rec.Text,
			Tags:     rec.Tags,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.path, err)
	}

	return docs, nil
}

// インターフェース実装の確認
var _ ingestion.Loader = (*NDJSONLoader)(nil)
