package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLoader struct {
	docs []*PageDocument
	err  error
}

func (l *stubLoader) Load(ctx context.Context) ([]*PageDocument, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.docs, nil
}

type stubBatchEmbedder struct {
	maxBatch int
	err      error

	batches [][]string
}

func (e *stubBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func (e *stubBatchEmbedder) MaxBatchSize() int {
	return e.maxBatch
}

type stubStore struct {
	err error

	namespaces []string
	upserts    [][]*Chunk
}

func (s *stubStore) UpsertChunks(ctx context.Context, namespace string, chunks []*Chunk, vectors [][]float32) error {
	if s.err != nil {
		return s.err
	}
	s.namespaces = append(s.namespaces, namespace)
	s.upserts = append(s.upserts, chunks)
	return nil
}

func page(title, text string) *PageDocument {
	return &PageDocument{
		SourceID: uuid.New(),
		SlugID:   strings.ToLower(title),
		Title:    title,
		Text:     text,
	}
}

func TestIngestService_IngestsAllPages(t *testing.T) {
	loader := &stubLoader{docs: []*PageDocument{
		page("One", "first page body"),
		page("Two", "second page body"),
	}}
	embedder := &stubBatchEmbedder{maxBatch: 100}
	store := &stubStore{}

	svc := NewIngestService(loader, NewSplitter(2000), embedder, store, WithIngestLogger(discardLogger()))

	stats, err := svc.Ingest(context.Background(), "hc-test")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 0, stats.Skipped)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, []string{"hc-test"}, store.namespaces)
}

// タイトルまたは本文が空のページは登録されない
func TestIngestService_SkipsIncompletePages(t *testing.T) {
	loader := &stubLoader{docs: []*PageDocument{
		page("One", "body"),
		page("", "body without title"),
		page("No Body", ""),
	}}
	embedder := &stubBatchEmbedder{maxBatch: 100}
	store := &stubStore{}

	svc := NewIngestService(loader, NewSplitter(2000), embedder, store, WithIngestLogger(discardLogger()))

	stats, err := svc.Ingest(context.Background(), "hc-test")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 2, stats.Skipped)
}

// Embedderのバッチ上限を超えるチャンクは複数バッチに分割される
func TestIngestService_RespectsEmbedderBatchSize(t *testing.T) {
	docs := make([]*PageDocument, 5)
	for i := range docs {
		docs[i] = page("Page", "body text")
	}

	loader := &stubLoader{docs: docs}
	embedder := &stubBatchEmbedder{maxBatch: 2}
	store := &stubStore{}

	svc := NewIngestService(loader, NewSplitter(2000), embedder, store, WithIngestLogger(discardLogger()))

	stats, err := svc.Ingest(context.Background(), "hc-test")
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Chunks)
	// 5チャンク ÷ バッチ2 = 3バッチ
	assert.Len(t, embedder.batches, 3)
	assert.Len(t, store.upserts, 3)
}

func TestIngestService_EmptyNamespaceIsRejected(t *testing.T) {
	svc := NewIngestService(&stubLoader{}, NewSplitter(2000), &stubBatchEmbedder{maxBatch: 100}, &stubStore{}, WithIngestLogger(discardLogger()))

	_, err := svc.Ingest(context.Background(), "")
	require.Error(t, err)
}

func TestIngestService_EmbeddingFailureAborts(t *testing.T) {
	loader := &stubLoader{docs: []*PageDocument{page("One", "body")}}
	embedder := &stubBatchEmbedder{maxBatch: 100, err: errors.New("api down")}
	store := &stubStore{}

	svc := NewIngestService(loader, NewSplitter(2000), embedder, store, WithIngestLogger(discardLogger()))

	_, err := svc.Ingest(context.Background(), "hc-test")
	require.Error(t, err)
	assert.Empty(t, store.upserts)
}

func TestIngestService_LoaderFailureAborts(t *testing.T) {
	loader := &stubLoader{err: errors.New("file missing")}

	svc := NewIngestService(loader, NewSplitter(2000), &stubBatchEmbedder{maxBatch: 100}, &stubStore{}, WithIngestLogger(discardLogger()))

	_, err := svc.Ingest(context.Background(), "hc-test")
	require.Error(t, err)
}
