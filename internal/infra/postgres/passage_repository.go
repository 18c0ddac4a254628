package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/hashiba/helpchat/internal/core/ingestion"
	"github.com/hashiba/helpchat/internal/core/retrieval"
)

// PassageRepository は pgvector を使ったベクトルインデックス実装
// retrieval.Index（読み取り）と ingestion.Store（書き込み）の両方を提供する
type PassageRepository struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPassageRepository は検索対象の名前空間を指定してリポジトリを作成する
func NewPassageRepository(pool *pgxpool.Pool, namespace string) *PassageRepository {
	return &PassageRepository{
		pool:      pool,
		namespace: namespace,
	}
}

// EnsureSchema は vector 拡張・passages テーブル・コサイン距離インデックスを作成する
// 冪等であり、取り込みコマンドの起動時に毎回呼んでよい
func (r *PassageRepository) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS passages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			namespace TEXT NOT NULL,
			source_id UUID NOT NULL,
			slug_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS passages_namespace_idx ON passages (namespace)`,
		`CREATE INDEX IF NOT EXISTS passages_embedding_idx ON passages USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

// SimilaritySearch はクエリベクトルのコサイン類似度上位 k 件を返す
// 並び順はインデックスの距離順をそのまま保持する
func (r *PassageRepository) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]*retrieval.Passage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT content, source_id, slug_id, title, tags, 1 - (embedding <=> $1) AS score
		FROM passages
		WHERE namespace = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), r.namespace, k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	defer rows.Close()

	var passages []*retrieval.Passage
	for rows.Next() {
		var (
			p        retrieval.Passage
			sourceID pgtype.UUID
		)
		if err := rows.Scan(&p.Content, &sourceID, &p.SlugID, &p.Title, &p.Tags, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		p.SourceID = PgtypeToUUID(sourceID)
		passages = append(passages, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}

	return passages, nil
}

// UpsertChunks はチャンクとベクトルの組を指定の名前空間へ一括登録する
func (r *PassageRepository) UpsertChunks(ctx context.Context, namespace string, chunks []*ingestion.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		// tags カラムは NOT NULL のため nil は空配列として扱う
		tags := chunk.Tags
		if tags == nil {
			tags = []string{}
		}

		batch.Queue(`
			INSERT INTO passages (namespace, source_id, slug_id, title, tags, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			namespace,
			UUIDToPgtype(chunk.SourceID),
			chunk.SlugID,
			chunk.Title,
			tags,
			chunk.Content,
			pgvector.NewVector(vectors[i]),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert passage: %w", err)
		}
	}

	return nil
}

// DeleteNamespace は名前空間配下の全パッセージを削除する
// 再取り込み前のクリーンアップに使用する
func (r *PassageRepository) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM passages WHERE namespace = $1`, namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to delete namespace: %w", err)
	}
	return tag.RowsAffected(), nil
}

// インターフェース実装の確認
var (
	_ retrieval.Index = (*PassageRepository)(nil)
	_ ingestion.Store = (*PassageRepository)(nil)
)
