package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// PageDocument は取り込み対象のヘルプセンターページを表す
type PageDocument struct {
	SourceID uuid.UUID // ページの識別子
	SlugID   string    // ヘルプセンター上のスラグ
	Title    string    // ページタイトル
	Text     string    // ページ本文
	Tags     []string  // ページに付与されたタグ
}

// Chunk は分割済みのページ断片を表す
// 元ページのメタデータをそのまま引き継ぐ
type Chunk struct {
	Content  string
	SourceID uuid.UUID
	SlugID   string
	Title    string
	Tags     []string
}

// Stats は取り込み処理の統計情報
type Stats struct {
	Pages   int // 正常に処理されたページ数
	Chunks  int // 登録されたチャンク数
	Skipped int // タイトルまたは本文が空でスキップされたページ数
}

// Loader はページドキュメントの読み込みインターフェース
type Loader interface {
	// Load は取り込み対象の全ページを返す
	Load(ctx context.Context) ([]*PageDocument, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingをまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	// MaxBatchSize は1回のAPI呼び出しで許容される最大件数を返す
	MaxBatchSize() int
}

// Store はベクトルインデックスへの書き込みインターフェース
type Store interface {
	// UpsertChunks はチャンクとベクトルの組を指定の名前空間に登録する
	UpsertChunks(ctx context.Context, namespace string, chunks []*Chunk, vectors [][]float32) error
}
