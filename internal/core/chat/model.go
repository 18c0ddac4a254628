package chat

import (
	"context"
	"fmt"

	"github.com/hashiba/helpchat/internal/core/retrieval"
)

// ConversationTurn は1往復の会話を表す
type ConversationTurn struct {
	Human     string // ユーザーの発話
	Assistant string // アシスタントの応答
}

// History は時系列順の会話履歴
// 空の履歴は有効で、セッションの最初のターンであることを示す
type History []ConversationTurn

// Validate は履歴内の全ターンが両方の発話を持つことを確認する
func (h History) Validate() error {
	for i, turn := range h {
		if turn.Human == "" || turn.Assistant == "" {
			return fmt.Errorf("turn %d is missing an utterance", i)
		}
	}
	return nil
}

// TokenSink は補完APIの部分トークンを受け取るコールバック
// 部分トークンが有効なmarkdownの接頭辞である保証はない
type TokenSink func(token string)

// ChatRequest は1回の質問応答リクエストを表す
type ChatRequest struct {
	Question string    // ユーザーの質問文（必須）
	History  History   // これまでの会話履歴
	OnToken  TokenSink // 回答生成時のストリーミング先（省略可）
}

// ChatResult は質問応答の結果を表す
type ChatResult struct {
	// Answer はmarkdown形式の回答
	Answer string
	// Sources は回答の根拠として使用したパッセージ（検索順）
	// コンテキストなしで回答した場合は空
	Sources []*retrieval.Passage
}

// CompletionRequest は補完サービスへの1回の呼び出しを表す
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSONMode が真の場合、モデルにJSONオブジェクトでの応答を要求する
	JSONMode bool
	// OnToken が設定されている場合、部分トークンを逐次通知する
	OnToken TokenSink
}

// CompletionClient は補完サービスのインターフェース
type CompletionClient interface {
	// GenerateCompletion はプロンプトに対する補完テキストを生成する
	GenerateCompletion(ctx context.Context, req CompletionRequest) (string, error)
}

// Retriever は検索サービスのインターフェース
type Retriever interface {
	// Retrieve はクエリに関連するパッセージを類似度降順で返す
	Retrieve(ctx context.Context, query string) ([]*retrieval.Passage, error)
}

// Condenser はフォローアップ質問を独立した質問に書き換えるインターフェース
type Condenser interface {
	// Condense は会話履歴を踏まえて質問を独立形に書き換える
	// 必ずちょうど1つのテキスト値を返す
	Condense(ctx context.Context, question string, history History) (string, error)
}

// GroundedAnswerer は検索コンテキストに基づいて回答するインターフェース
type GroundedAnswerer interface {
	// AnswerWithContext は渡されたパッセージのみを根拠として回答を生成する
	// この中で再検索は行わない
	AnswerWithContext(ctx context.Context, question string, history History, passages []*retrieval.Passage, sink TokenSink) (string, error)
}

// FallbackAnswerer はコンテキストが無い場合にペルソナ応答を返すインターフェース
type FallbackAnswerer interface {
	// AnswerWithoutContext は挨拶への応答とスコープ外質問の拒否のみを行う
	AnswerWithoutContext(ctx context.Context, question string, history History, sink TokenSink) (string, error)
}
