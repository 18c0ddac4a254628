package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/hashiba/helpchat/internal/core/chat"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Client は OpenAI API を使用した補完クライアント実装
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewClient はAPIキーとモデルを指定して Client を作成する
func NewClient(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(clientOpts...)

	return &Client{
		client:  client,
		model:   model,
		timeout: DefaultTimeout,
	}, nil
}

// SetTimeout はAPIコールのタイムアウトを設定する
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateCompletion は OpenAI API を使用してテキストを生成する
// OnToken が設定されている場合はストリーミングAPIを使用し、部分トークンを
// 逐次通知しながら最終的な全文を返す
// リトライはレート制限（429）に対してのみ行う
func (c *Client) GenerateCompletion(ctx context.Context, req chat.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	// ストリーミング時は通知済みトークンを記録する
	// sink へ流した後のリトライは同じ接頭辞を二重に出力してしまう
	var tokensEmitted bool
	var sink chat.TokenSink
	if req.OnToken != nil {
		sink = func(token string) {
			tokensEmitted = true
			req.OnToken(token)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		var content string
		var err error
		if sink != nil {
			content, err = c.generateStreaming(ctx, params, sink)
		} else {
			content, err = c.generate(ctx, params)
		}
		if err != nil {
			lastErr = err

			if shouldRetryCompletion(err, tokensEmitted) {
				continue
			}

			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		return content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// shouldRetryCompletion は失敗した補完呼び出しをリトライしてよいか判定する
// リトライするのはレート制限（429）のみ。部分トークンを通知済みの場合は
// 再ストリーミングが二重出力になるためリトライしない
func shouldRetryCompletion(err error, tokensEmitted bool) bool {
	return isRateLimitError(err) && !tokensEmitted
}

// generate は非ストリーミングの補完を実行する
func (c *Client) generate(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return completion.Choices[0].Message.Content, nil
}

// generateStreaming はストリーミング補完を実行し、部分トークンを sink へ流す
func (c *Client) generateStreaming(ctx context.Context, params openai.ChatCompletionNewParams, sink chat.TokenSink) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			sink(chunk.Choices[0].Delta.Content)
		}
	}

	if err := stream.Err(); err != nil {
		return "", err
	}

	if len(acc.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return acc.Choices[0].Message.Content, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ chat.CompletionClient = (*Client)(nil)
