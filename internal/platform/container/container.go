package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashiba/helpchat/internal/core/chat"
	"github.com/hashiba/helpchat/internal/core/ingestion"
	"github.com/hashiba/helpchat/internal/core/retrieval"
	"github.com/hashiba/helpchat/internal/infra/openai"
	"github.com/hashiba/helpchat/internal/infra/postgres"
	"github.com/hashiba/helpchat/pkg/config"
	"github.com/hashiba/helpchat/pkg/db"
)

// Container はアプリケーションの依存関係を保持する
type Container struct {
	Config      *config.Config
	Database    *db.DB
	LLMClient   *openai.Client
	Embedder    *openai.Embedder
	PassageRepo *postgres.PassageRepository
	Retrieval   *retrieval.Service
	ChatService *chat.ChatService
	Logger      *slog.Logger
}

// containerOptions は構築時の差し替え可能な依存
type containerOptions struct {
	logger *slog.Logger
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// New は設定からコンテナを生成する
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger

	// データベース接続
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// OpenAIクライアント
	llmClient, err := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.CompletionModel)
	if err != nil {
		database.Close()
		return nil, err
	}

	embedder := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)

	// ベクトルインデックス
	passageRepo := postgres.NewPassageRepository(database.Pool, cfg.Chat.Namespace)

	// 検索サービス
	retrievalOpts := []retrieval.ServiceOption{
		retrieval.WithTopK(cfg.Chat.TopK),
		retrieval.WithRetrievalLogger(logger),
	}
	policy := retrieval.FilterPolicy(cfg.Chat.FilterPolicy)
	if !policy.Valid() {
		database.Close()
		return nil, fmt.Errorf("unknown filter policy: %q", cfg.Chat.FilterPolicy)
	}
	retrievalOpts = append(retrievalOpts, retrieval.WithFilterPolicy(policy, cfg.Chat.MinScore))

	retrievalSvc := retrieval.NewService(embedder, passageRepo, retrievalOpts...)

	// 質問応答パイプライン
	condenser := chat.NewLLMCondenser(llmClient, chat.WithCondenserLogger(logger))

	grounded, err := chat.NewLLMGroundedAnswerer(llmClient,
		chat.WithGroundedDomain(cfg.Chat.Domain),
		chat.WithGroundedLogger(logger),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create grounded answerer: %w", err)
	}

	fallback := chat.NewLLMFallbackAnswerer(llmClient,
		chat.WithFallbackDomain(cfg.Chat.Domain),
		chat.WithFallbackLogger(logger),
	)

	chatSvc := chat.NewChatService(condenser, retrievalSvc, grounded, fallback,
		chat.WithChatLogger(logger),
	)

	return &Container{
		Config:      cfg,
		Database:    database,
		LLMClient:   llmClient,
		Embedder:    embedder,
		PassageRepo: passageRepo,
		Retrieval:   retrievalSvc,
		ChatService: chatSvc,
		Logger:      logger,
	}, nil
}

// NewIngestService は取り込みサービスを構築する
func (c *Container) NewIngestService(l ingestion.Loader) *ingestion.IngestService {
	splitter := ingestion.NewSplitter(c.Config.Ingest.ChunkSize)
	return ingestion.NewIngestService(l, splitter, c.Embedder, c.PassageRepo,
		ingestion.WithIngestLogger(c.Logger),
	)
}

// Close はコンテナが保持するリソースをクリーンアップする
func (c *Container) Close() {
	if c.Database != nil {
		c.Database.Close()
	}
}
