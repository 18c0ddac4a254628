package ingestion

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize は1チャンクの目標文字数
const DefaultChunkSize = 2000

// Splitter はページ本文を文字数ベースで分割する
// 段落 → 改行 → 文 → 空白の順に境界を探し、オーバーラップは設けない
type Splitter struct {
	chunkSize int
}

// NewSplitter は新しい Splitter を作成する
func NewSplitter(chunkSize int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Splitter{chunkSize: chunkSize}
}

// separators は分割境界の優先順
var separators = []string{"\n\n", "\n", ". ", " "}

// Split はページをチャンク列に分割する
// 本文の先頭にはタイトル見出しを付与する
func (s *Splitter) Split(doc *PageDocument) []*Chunk {
	text := fmt.Sprintf("#%s\n\n=====================\n\n%s", doc.Title, doc.Text)

	pieces := s.split(text)

	chunks := make([]*Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, &Chunk{
			Content:  piece,
			SourceID: doc.SourceID,
			SlugID:   doc.SlugID,
			Title:    doc.Title,
			Tags:     doc.Tags,
		})
	}
	return chunks
}

// split はテキストを chunkSize 以下の断片に再帰的に分割する
func (s *Splitter) split(text string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	for _, sep := range separators {
		idx := findSplitPoint(text, sep, s.chunkSize)
		if idx <= 0 {
			continue
		}

		head := text[:idx]
		rest := text[idx:]
		return append([]string{head}, s.split(rest)...)
	}

	// 境界が見つからない場合は強制分割する
	// マルチバイト文字の途中で切らないよう、ルーン境界まで戻す
	cut := s.chunkSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		cut = s.chunkSize
	}

	return append([]string{text[:cut]}, s.split(text[cut:])...)
}

// findSplitPoint は limit 以内で最後に現れる区切り位置を返す
// 区切り文字列自体は前側のチャンクに含める
func findSplitPoint(text, sep string, limit int) int {
	idx := strings.LastIndex(text[:limit], sep)
	if idx <= 0 {
		return -1
	}
	return idx + len(sep)
}
