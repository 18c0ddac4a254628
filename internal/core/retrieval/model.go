package retrieval

import "github.com/google/uuid"

// Passage は検索で取得したドキュメント断片を表す
// 1リクエストの間だけ保持される値オブジェクトで、永続化はしない
type Passage struct {
	Content  string    // チャンク本文
	SourceID uuid.UUID // 取り込み元ドキュメントのID
	SlugID   string    // ヘルプセンター上のスラグ
	Title    string    // ドキュメントタイトル
	Tags     []string  // ドキュメントに付与されたタグ
	Score    float64   // 類似度スコア（コサイン類似度）
}

// FilterPolicy は検索結果のフィルタリングポリシー
type FilterPolicy string

const (
	// FilterPolicyThreshold は足切りポリシー
	// MinScore 未満の結果を除外するため、0件になることがある
	FilterPolicyThreshold FilterPolicy = "threshold"

	// FilterPolicyPassThrough は素通しポリシー
	// スコアに関わらず全件をスコア付きで返す
	FilterPolicyPassThrough FilterPolicy = "passthrough"
)

// Valid はポリシー名が既知のものかどうかを返す
func (p FilterPolicy) Valid() bool {
	return p == FilterPolicyThreshold || p == FilterPolicyPassThrough
}
