package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hashiba/helpchat/internal/core/retrieval"
)

const (
	// DefaultDomain は回答スコープのデフォルトのドメイン名
	DefaultDomain = "Collect chat"

	// DefaultContextTokenBudget はコンテキストブロックに許容するトークン数の上限
	DefaultContextTokenBudget = 6000
)

// LLMGroundedAnswerer は検索コンテキストに拘束された回答を生成する
// 渡されたパッセージの純粋な消費者であり、内部での再検索は行わない
type LLMGroundedAnswerer struct {
	llm         CompletionClient
	domain      string
	encoder     *tiktoken.Tiktoken
	tokenBudget int
	logger      *slog.Logger
}

// GroundedAnswererOption は LLMGroundedAnswerer のオプション設定
type GroundedAnswererOption func(*LLMGroundedAnswerer)

// WithGroundedDomain は回答スコープのドメイン名を上書きする
func WithGroundedDomain(domain string) GroundedAnswererOption {
	return func(a *LLMGroundedAnswerer) {
		if domain != "" {
			a.domain = domain
		}
	}
}

// WithContextTokenBudget はコンテキストブロックのトークン上限を上書きする
func WithContextTokenBudget(budget int) GroundedAnswererOption {
	return func(a *LLMGroundedAnswerer) {
		if budget > 0 {
			a.tokenBudget = budget
		}
	}
}

// WithGroundedLogger は LLMGroundedAnswerer にロガーを設定する
func WithGroundedLogger(logger *slog.Logger) GroundedAnswererOption {
	return func(a *LLMGroundedAnswerer) {
		a.logger = logger
	}
}

// NewLLMGroundedAnswerer は新しい LLMGroundedAnswerer を作成する
func NewLLMGroundedAnswerer(llm CompletionClient, opts ...GroundedAnswererOption) (*LLMGroundedAnswerer, error) {
	// cl100k_base エンコーダを使用（text-embedding-3-small / gpt-4o系と互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	a := &LLMGroundedAnswerer{
		llm:         llm,
		domain:      DefaultDomain,
		encoder:     encoder,
		tokenBudget: DefaultContextTokenBudget,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}

	return a, nil
}

// AnswerWithContext はパッセージ本文を連結したコンテキストに基づき
// markdown形式の回答を生成する
func (a *LLMGroundedAnswerer) AnswerWithContext(ctx context.Context, question string, history History, passages []*retrieval.Passage, sink TokenSink) (string, error) {
	contextBlock := a.buildContext(passages)
	prompt := BuildGroundedPrompt(a.domain, question, history, contextBlock)

	answer, err := a.llm.GenerateCompletion(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		OnToken:     sink,
	})
	if err != nil {
		return "", fmt.Errorf("%w: grounded answer failed: %v", ErrCompletionUnavailable, err)
	}

	a.logger.Info("grounded answer generated",
		"passages", len(passages),
		"answerLength", len(answer),
	)

	return answer, nil
}

// buildContext はパッセージ本文を検索順のまま連結する
// トークン上限を超える場合は末尾のパッセージから切り捨てる
func (a *LLMGroundedAnswerer) buildContext(passages []*retrieval.Passage) string {
	var sb strings.Builder
	used := 0

	for _, p := range passages {
		block := p.Content + "\n"
		tokens := len(a.encoder.Encode(block, nil, nil))
		if used+tokens > a.tokenBudget && used > 0 {
			a.logger.Warn("context token budget exceeded, truncating passages",
				"budget", a.tokenBudget,
				"used", used,
			)
			break
		}
		sb.WriteString(block)
		sb.WriteString("\n")
		used += tokens
	}

	return sb.String()
}

// インターフェース実装の確認
var _ GroundedAnswerer = (*LLMGroundedAnswerer)(nil)

// LLMFallbackAnswerer はコンテキストが1件も得られなかった場合の応答を生成する
// 挨拶への応答とスコープ外質問の拒否のみを行い、一般知識での回答はしない
type LLMFallbackAnswerer struct {
	llm    CompletionClient
	domain string
	logger *slog.Logger
}

// FallbackAnswererOption は LLMFallbackAnswerer のオプション設定
type FallbackAnswererOption func(*LLMFallbackAnswerer)

// WithFallbackDomain は回答スコープのドメイン名を上書きする
func WithFallbackDomain(domain string) FallbackAnswererOption {
	return func(a *LLMFallbackAnswerer) {
		if domain != "" {
			a.domain = domain
		}
	}
}

// WithFallbackLogger は LLMFallbackAnswerer にロガーを設定する
func WithFallbackLogger(logger *slog.Logger) FallbackAnswererOption {
	return func(a *LLMFallbackAnswerer) {
		a.logger = logger
	}
}

// NewLLMFallbackAnswerer は新しい LLMFallbackAnswerer を作成する
func NewLLMFallbackAnswerer(llm CompletionClient, opts ...FallbackAnswererOption) *LLMFallbackAnswerer {
	a := &LLMFallbackAnswerer{
		llm:    llm,
		domain: DefaultDomain,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}

	return a
}

// AnswerWithoutContext は元の質問（書き換え前）に対するペルソナ応答を生成する
func (a *LLMFallbackAnswerer) AnswerWithoutContext(ctx context.Context, question string, history History, sink TokenSink) (string, error) {
	prompt := BuildFallbackPrompt(a.domain, question, history)

	answer, err := a.llm.GenerateCompletion(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		OnToken:     sink,
	})
	if err != nil {
		return "", fmt.Errorf("%w: fallback answer failed: %v", ErrCompletionUnavailable, err)
	}

	a.logger.Info("fallback answer generated", "answerLength", len(answer))

	return answer, nil
}

// インターフェース実装の確認
var _ FallbackAnswerer = (*LLMFallbackAnswerer)(nil)
