package ingestion

import (
	"context"
	"fmt"
	"log/slog"
)

// IngestService はページの取り込みパイプラインを提供する
// ページ読み込み → 分割 → Embedding生成 → ベクトルインデックス登録を
// バッチで実行する
type IngestService struct {
	loader   Loader
	splitter *Splitter
	embedder Embedder
	store    Store
	logger   *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*IngestService)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(s *IngestService) {
		s.logger = logger
	}
}

// NewIngestService は新しい IngestService を作成する
func NewIngestService(
	loader Loader,
	splitter *Splitter,
	embedder Embedder,
	store Store,
	opts ...IngestServiceOption,
) *IngestService {
	svc := &IngestService{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		store:    store,
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

// Ingest は全ページを分割・ベクトル化して指定の名前空間に登録する
func (s *IngestService) Ingest(ctx context.Context, namespace string) (*Stats, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	docs, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	s.logger.Info("documents loaded", "count", len(docs))

	stats := &Stats{}
	var chunks []*Chunk
	for _, doc := range docs {
		// タイトルまたは本文が無いページは登録しない
		if doc.Title == "" || doc.Text == "" {
			stats.Skipped++
			continue
		}
		chunks = append(chunks, s.splitter.Split(doc)...)
		stats.Pages++
	}

	s.logger.Info("documents split into chunks",
		"pages", stats.Pages,
		"chunks", len(chunks),
		"skipped", stats.Skipped,
	)

	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch at offset %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
		}

		if err := s.store.UpsertChunks(ctx, namespace, batch, vectors); err != nil {
			return nil, fmt.Errorf("failed to upsert batch at offset %d: %w", start, err)
		}

		stats.Chunks += len(batch)

		s.logger.Info("batch ingested",
			"offset", start,
			"size", len(batch),
			"total", stats.Chunks,
		)
	}

	return stats, nil
}
