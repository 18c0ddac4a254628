package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/hashiba/helpchat/internal/infra/loader"
)

// IngestAction は取り込みコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	filePath := cmd.String("file")
	replace := cmd.Bool("replace")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	namespace := cmd.String("namespace")
	if namespace == "" {
		namespace = appCtx.Config.Chat.Namespace
	}

	slog.Info("starting ingestion",
		"file", filePath,
		"namespace", namespace,
		"replace", replace,
	)

	// スキーマの作成（冪等）
	repo := appCtx.Container.PassageRepo
	if err := repo.EnsureSchema(ctx, appCtx.Config.OpenAI.EmbeddingDimension); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	if replace {
		deleted, err := repo.DeleteNamespace(ctx, namespace)
		if err != nil {
			return fmt.Errorf("failed to clear namespace: %w", err)
		}
		slog.Info("existing passages deleted", "namespace", namespace, "count", deleted)
	}

	svc := appCtx.Container.NewIngestService(loader.NewNDJSONLoader(filePath))

	stats, err := svc.Ingest(ctx, namespace)
	if err != nil {
		slog.Error("ingestion failed", "error", err)
		return err
	}

	slog.Info("ingestion completed",
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
	)

	fmt.Printf("ingested %d pages (%d chunks, %d skipped) into namespace %q\n",
		stats.Pages, stats.Chunks, stats.Skipped, namespace)

	return nil
}
