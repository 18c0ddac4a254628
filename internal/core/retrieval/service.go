package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/mo"
)

// ErrUnavailable はEmbedding生成またはベクトル検索が失敗した場合のエラー
// 呼び出し側でのリトライは行わない（外部APIの二重課金と障害の隠蔽を避けるため）
var ErrUnavailable = errors.New("retrieval unavailable")

// DefaultTopK はデフォルトの近傍検索件数
const DefaultTopK = 3

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index はベクトル類似度インデックスへの問い合わせインターフェース
type Index interface {
	// SimilaritySearch はクエリベクトルの近傍 k 件を類似度降順で返す
	// 同スコアの結果はインデックスの返却順を保持する
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]*Passage, error)
}

// Service はクエリ文字列から関連パッセージを取得する検索サービス
type Service struct {
	embedder Embedder
	index    Index
	topK     int
	policy   FilterPolicy
	minScore mo.Option[float64]
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithTopK は近傍検索件数を上書きする
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithFilterPolicy はフィルタリングポリシーを設定する
// threshold の場合は minScore 未満の結果を除外する
func WithFilterPolicy(policy FilterPolicy, minScore float64) ServiceOption {
	return func(s *Service) {
		s.policy = policy
		if policy == FilterPolicyThreshold {
			s.minScore = mo.Some(minScore)
		}
	}
}

// WithRetrievalLogger は Service にロガーを設定する
func WithRetrievalLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(embedder Embedder, index Index, opts ...ServiceOption) *Service {
	svc := &Service{
		embedder: embedder,
		index:    index,
		topK:     DefaultTopK,
		policy:   FilterPolicyPassThrough,
		minScore: mo.None[float64](),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Retrieve はクエリをEmbeddingに変換し、関連パッセージを類似度降順で返す
// threshold ポリシーの場合はフィルタ後に0件となることがある
func (s *Service) Retrieve(ctx context.Context, query string) ([]*Passage, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %v", ErrUnavailable, err)
	}

	passages, err := s.index.SimilaritySearch(ctx, queryVector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search failed: %v", ErrUnavailable, err)
	}

	fetched := len(passages)
	passages = s.applyPolicy(passages)

	s.logger.Info("retrieval completed",
		"query", query,
		"topK", s.topK,
		"policy", string(s.policy),
		"fetched", fetched,
		"returned", len(passages),
	)

	return passages, nil
}

// applyPolicy はフィルタリングポリシーを適用する
// 返却順（＝インデックスの類似度順）は変更しない
func (s *Service) applyPolicy(passages []*Passage) []*Passage {
	if s.policy != FilterPolicyThreshold {
		return passages
	}

	minScore, ok := s.minScore.Get()
	if !ok {
		return passages
	}

	filtered := make([]*Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= minScore {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
