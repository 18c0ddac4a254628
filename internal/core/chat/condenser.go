package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// LLMCondenser は補完サービスを使ってフォローアップ質問を独立形に書き換える
// モデルの応答は型のないJSONオブジェクトであるため、キーがちょうど1つで
// あることを検証し、複数キーの場合は任意のフィールドを拾わずに失敗させる
type LLMCondenser struct {
	llm    CompletionClient
	logger *slog.Logger
}

// CondenserOption は LLMCondenser のオプション設定
type CondenserOption func(*LLMCondenser)

// WithCondenserLogger は LLMCondenser にロガーを設定する
func WithCondenserLogger(logger *slog.Logger) CondenserOption {
	return func(c *LLMCondenser) {
		c.logger = logger
	}
}

// NewLLMCondenser は新しい LLMCondenser を作成する
func NewLLMCondenser(llm CompletionClient, opts ...CondenserOption) *LLMCondenser {
	c := &LLMCondenser{
		llm:    llm,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Condense は会話履歴を踏まえて質問を独立した形に書き換える
func (c *LLMCondenser) Condense(ctx context.Context, question string, history History) (string, error) {
	prompt := BuildCondensePrompt(question, history)

	raw, err := c.llm.GenerateCompletion(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: condense call failed: %v", ErrCompletionUnavailable, err)
	}

	standalone, err := extractSingleValue(raw)
	if err != nil {
		return "", err
	}

	c.logger.Info("question condensed",
		"question", question,
		"standalone", standalone,
	)

	return standalone, nil
}

// extractSingleValue はモデルのJSON応答から唯一の値を取り出す
// キーが複数ある応答、および空文字列の値は契約違反として
// ErrMalformedOutput を返す
func extractSingleValue(raw string) (string, error) {
	var outputs map[string]string
	if err := json.Unmarshal([]byte(raw), &outputs); err != nil {
		return "", fmt.Errorf("%w: response is not a JSON object: %v", ErrMalformedOutput, err)
	}

	if len(outputs) != 1 {
		return "", fmt.Errorf("%w: expected exactly one output value, got %d", ErrMalformedOutput, len(outputs))
	}

	for _, value := range outputs {
		if value == "" {
			return "", fmt.Errorf("%w: output value is empty", ErrMalformedOutput)
		}
		return value, nil
	}

	// len(outputs) == 1 のため到達しない
	return "", fmt.Errorf("%w: empty output", ErrMalformedOutput)
}

// インターフェース実装の確認
var _ Condenser = (*LLMCondenser)(nil)
