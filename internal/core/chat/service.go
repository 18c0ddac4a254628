package chat

import (
	"context"
	"fmt"
	"log/slog"
)

// ChatService は質問応答パイプラインのオーケストレータ
// 質問の書き換え・検索・十分性判定・回答生成を1リクエスト分合成する
// リクエスト間で共有する可変状態は持たず、並行呼び出しに対して安全
type ChatService struct {
	condenser Condenser
	retriever Retriever
	grounded  GroundedAnswerer
	fallback  FallbackAnswerer
	logger    *slog.Logger
}

// ChatServiceOption は ChatService のオプション設定
type ChatServiceOption func(*ChatService)

// WithChatLogger は ChatService にロガーを設定する
func WithChatLogger(logger *slog.Logger) ChatServiceOption {
	return func(s *ChatService) {
		s.logger = logger
	}
}

// NewChatService は新しい ChatService を作成する
func NewChatService(
	condenser Condenser,
	retriever Retriever,
	grounded GroundedAnswerer,
	fallback FallbackAnswerer,
	opts ...ChatServiceOption,
) *ChatService {
	svc := &ChatService{
		condenser: condenser,
		retriever: retriever,
		grounded:  grounded,
		fallback:  fallback,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Answer は1回の質問応答サイクルを実行する
//
// 処理順は固定: 書き換え → 検索 → 分岐 → 回答。
// 検索結果が1件以上ある場合に限り Grounded 側が呼ばれ、0件の場合に限り
// Fallback 側が「書き換え前の元の質問」で呼ばれる（書き換えは挨拶や
// スコープ外の入力を歪めることがあるため）。
func (s *ChatService) Answer(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	// 1. バリデーション（外部サービス呼び出し前）
	if req.Question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}
	if err := req.History.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// 2. 履歴がある場合のみ質問を独立形に書き換える
	standalone := req.Question
	if len(req.History) > 0 {
		var err error
		standalone, err = s.condenser.Condense(ctx, req.Question, req.History)
		if err != nil {
			return nil, err
		}
	}

	// 3. 関連パッセージを検索する
	passages, err := s.retriever.Retrieve(ctx, standalone)
	if err != nil {
		return nil, err
	}

	// 4. 十分性判定: フィルタ適用後のパッセージ数で分岐する
	if len(passages) == 0 {
		s.logger.Info("no context retrieved, answering without context",
			"question", req.Question,
		)

		answer, err := s.fallback.AnswerWithoutContext(ctx, req.Question, req.History, req.OnToken)
		if err != nil {
			return nil, err
		}

		return &ChatResult{Answer: answer}, nil
	}

	// 5. 検索コンテキストに基づく回答を生成する
	s.logger.Info("answering with retrieved context",
		"standalone", standalone,
		"passages", len(passages),
	)

	answer, err := s.grounded.AnswerWithContext(ctx, standalone, req.History, passages, req.OnToken)
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Answer:  answer,
		Sources: passages,
	}, nil
}
