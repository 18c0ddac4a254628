package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashiba/helpchat/internal/core/retrieval"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCondenser struct {
	result string
	err    error
	calls  int

	lastQuestion string
	lastHistory  History
}

func (c *stubCondenser) Condense(ctx context.Context, question string, history History) (string, error) {
	c.calls++
	c.lastQuestion = question
	c.lastHistory = history
	if c.err != nil {
		return "", c.err
	}
	return c.result, nil
}

type stubRetriever struct {
	passages []*retrieval.Passage
	err      error
	calls    int

	lastQuery string
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string) ([]*retrieval.Passage, error) {
	r.calls++
	r.lastQuery = query
	if r.err != nil {
		return nil, r.err
	}
	return r.passages, nil
}

type stubGroundedAnswerer struct {
	answer string
	err    error
	calls  int

	lastQuestion string
	lastHistory  History
	lastPassages []*retrieval.Passage
}

func (a *stubGroundedAnswerer) AnswerWithContext(ctx context.Context, question string, history History, passages []*retrieval.Passage, sink TokenSink) (string, error) {
	a.calls++
	a.lastQuestion = question
	a.lastHistory = history
	a.lastPassages = passages
	if a.err != nil {
		return "", a.err
	}
	return a.answer, nil
}

type stubFallbackAnswerer struct {
	answer string
	err    error
	calls  int

	lastQuestion string
	lastHistory  History
}

func (a *stubFallbackAnswerer) AnswerWithoutContext(ctx context.Context, question string, history History, sink TokenSink) (string, error) {
	a.calls++
	a.lastQuestion = question
	a.lastHistory = history
	if a.err != nil {
		return "", a.err
	}
	return a.answer, nil
}

func newTestService(c *stubCondenser, r *stubRetriever, g *stubGroundedAnswerer, f *stubFallbackAnswerer) *ChatService {
	return NewChatService(c, r, g, f, WithChatLogger(discardLogger()))
}

func somePassages(n int) []*retrieval.Passage {
	passages := make([]*retrieval.Passage, 0, n)
	for i := 0; i < n; i++ {
		passages = append(passages, &retrieval.Passage{
			Content:  "passage content",
			SourceID: uuid.New(),
			Title:    "page",
			Score:    0.9 - float64(i)*0.1,
		})
	}
	return passages
}

// 履歴が空の場合は書き換えをスキップし、元の質問がそのまま検索クエリになる
func TestChatService_EmptyHistorySkipsCondenser(t *testing.T) {
	condenser := &stubCondenser{result: "should not be used"}
	retriever := &stubRetriever{passages: somePassages(1)}
	grounded := &stubGroundedAnswerer{answer: "answer"}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	result, err := svc.Answer(context.Background(), ChatRequest{Question: "What is a widget?"})
	require.NoError(t, err)

	assert.Equal(t, 0, condenser.calls)
	assert.Equal(t, "What is a widget?", retriever.lastQuery)
	assert.Equal(t, "answer", result.Answer)
}

// 検索0件の場合、Fallback が書き換え前の元の質問で呼ばれ、Sources は空になる
func TestChatService_NoContextFallsBackWithOriginalQuestion(t *testing.T) {
	condenser := &stubCondenser{result: "rewritten"}
	retriever := &stubRetriever{passages: nil}
	grounded := &stubGroundedAnswerer{answer: "grounded"}
	fallback := &stubFallbackAnswerer{answer: "Hi! How can I help?"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	result, err := svc.Answer(context.Background(), ChatRequest{Question: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, 0, grounded.calls)
	assert.Equal(t, 1, fallback.calls)
	// 書き換え後ではなく元の質問が渡される
	assert.Equal(t, "Hello", fallback.lastQuestion)
	assert.Equal(t, "Hi! How can I help?", result.Answer)
	assert.Empty(t, result.Sources)
}

// 履歴付きのフォローアップは書き換え後の質問で検索・回答され、Sources は検索順を保つ
func TestChatService_FollowUpQuestionIsCondensedAndGrounded(t *testing.T) {
	history := History{{Human: "What is product X?", Assistant: "It is a widget."}}
	passages := somePassages(2)

	condenser := &stubCondenser{result: "How much does product X cost?"}
	retriever := &stubRetriever{passages: passages}
	grounded := &stubGroundedAnswerer{answer: "It costs $10."}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	result, err := svc.Answer(context.Background(), ChatRequest{
		Question: "How much does it cost?",
		History:  history,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, condenser.calls)
	assert.Equal(t, "How much does it cost?", condenser.lastQuestion)
	assert.Equal(t, "How much does product X cost?", retriever.lastQuery)

	assert.Equal(t, 1, grounded.calls)
	assert.Equal(t, 0, fallback.calls)
	assert.Equal(t, "How much does product X cost?", grounded.lastQuestion)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, passages, result.Sources)
	assert.Equal(t, passages, grounded.lastPassages)
}

// 書き換えステップが複数の値を返した場合、後続の呼び出しは行われない
func TestChatService_MalformedCondenserOutputStopsPipeline(t *testing.T) {
	llm := &stubCompletionClient{response: `{"standalone_question": "a", "reasoning": "b"}`}
	condenser := NewLLMCondenser(llm, WithCondenserLogger(discardLogger()))

	retriever := &stubRetriever{passages: somePassages(1)}
	grounded := &stubGroundedAnswerer{answer: "grounded"}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := NewChatService(condenser, retriever, grounded, fallback, WithChatLogger(discardLogger()))

	history := History{{Human: "hi", Assistant: "hello"}}
	_, err := svc.Answer(context.Background(), ChatRequest{Question: "and then?", History: history})

	require.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, 0, retriever.calls)
	assert.Equal(t, 0, grounded.calls)
	assert.Equal(t, 0, fallback.calls)
}

// 空の質問は外部サービスを呼び出す前に ErrInvalidRequest で拒否される
func TestChatService_EmptyQuestionIsRejectedBeforeAnyCall(t *testing.T) {
	condenser := &stubCondenser{result: "rewritten"}
	retriever := &stubRetriever{passages: somePassages(1)}
	grounded := &stubGroundedAnswerer{answer: "grounded"}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	_, err := svc.Answer(context.Background(), ChatRequest{Question: ""})

	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, condenser.calls)
	assert.Equal(t, 0, retriever.calls)
	assert.Equal(t, 0, grounded.calls)
	assert.Equal(t, 0, fallback.calls)
}

// 片方の発話が欠けたターンを含む履歴は不正
func TestChatService_MalformedHistoryIsRejected(t *testing.T) {
	condenser := &stubCondenser{result: "rewritten"}
	retriever := &stubRetriever{passages: somePassages(1)}
	grounded := &stubGroundedAnswerer{answer: "grounded"}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	history := History{{Human: "question", Assistant: ""}}
	_, err := svc.Answer(context.Background(), ChatRequest{Question: "next", History: history})

	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, condenser.calls)
	assert.Equal(t, 0, retriever.calls)
}

// threshold ポリシーではフィルタ適用後の件数が十分性判定に使われる
func TestChatService_SufficiencyUsesPostFilterCount(t *testing.T) {
	embedder := &stubEmbedderForChat{}
	index := &stubIndexForChat{passages: []*retrieval.Passage{
		{Content: "high", Score: 0.9},
		{Content: "low", Score: 0.5},
	}}
	retrievalSvc := retrieval.NewService(embedder, index,
		retrieval.WithFilterPolicy(retrieval.FilterPolicyThreshold, 0.78),
		retrieval.WithRetrievalLogger(discardLogger()),
	)

	condenser := &stubCondenser{result: "rewritten"}
	grounded := &stubGroundedAnswerer{answer: "grounded"}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := NewChatService(condenser, retrievalSvc, grounded, fallback, WithChatLogger(discardLogger()))

	result, err := svc.Answer(context.Background(), ChatRequest{Question: "What is a widget?"})
	require.NoError(t, err)

	// 足切り後も1件残るため Grounded 側が呼ばれる
	assert.Equal(t, 1, grounded.calls)
	assert.Equal(t, 0, fallback.calls)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "high", result.Sources[0].Content)
}

// 検索エラーはそのまま伝播し、回答は生成されない
func TestChatService_RetrievalErrorPropagates(t *testing.T) {
	condenser := &stubCondenser{result: "rewritten"}
	retriever := &stubRetriever{err: retrieval.ErrUnavailable}
	grounded := &stubGroundedAnswerer{answer: "grounded"}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	_, err := svc.Answer(context.Background(), ChatRequest{Question: "What is a widget?"})

	require.ErrorIs(t, err, retrieval.ErrUnavailable)
	assert.Equal(t, 0, grounded.calls)
	assert.Equal(t, 0, fallback.calls)
}

// 回答生成エラーは ErrCompletionUnavailable として伝播する
func TestChatService_AnswerErrorPropagates(t *testing.T) {
	condenser := &stubCondenser{result: "rewritten"}
	retriever := &stubRetriever{passages: somePassages(1)}
	grounded := &stubGroundedAnswerer{err: fmt.Errorf("%w: boom", ErrCompletionUnavailable)}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	_, err := svc.Answer(context.Background(), ChatRequest{Question: "What is a widget?"})
	require.ErrorIs(t, err, ErrCompletionUnavailable)
}

// 同一リクエスト・同一スタブに対する2回の呼び出しは同一の結果を返す
func TestChatService_DeterministicUnderFixedCollaborators(t *testing.T) {
	history := History{{Human: "What is product X?", Assistant: "It is a widget."}}
	passages := somePassages(2)

	condenser := &stubCondenser{result: "How much does product X cost?"}
	retriever := &stubRetriever{passages: passages}
	grounded := &stubGroundedAnswerer{answer: "It costs $10."}
	fallback := &stubFallbackAnswerer{answer: "fallback"}

	svc := newTestService(condenser, retriever, grounded, fallback)

	req := ChatRequest{Question: "How much does it cost?", History: history}

	first, err := svc.Answer(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Answer(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
}

// retrieval.Service を組み込むためのスタブ
type stubEmbedderForChat struct{}

func (e *stubEmbedderForChat) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

type stubIndexForChat struct {
	passages []*retrieval.Passage
}

func (i *stubIndexForChat) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]*retrieval.Passage, error) {
	return i.passages, nil
}
