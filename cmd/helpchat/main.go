package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/hashiba/helpchat/cmd/helpchat/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "helpchat",
		Usage: "ヘルプセンター文書に基づく会話型質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "chat",
				Usage: "対話セッションを開始（引数を渡すと単発の質問応答）",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "回答の根拠となったパッセージも表示",
					},
					&cli.BoolFlag{
						Name:  "no-stream",
						Usage: "トークンストリーミングを無効化",
					},
				},
				Action: commands.ChatAction,
			},
			{
				Name:  "ingest",
				Usage: "ページエクスポートをベクトルインデックスへ取り込む",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "ページエクスポート（NDJSON）のパス",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "namespace",
						Usage: "登録先の名前空間（省略時は設定値）",
					},
					&cli.BoolFlag{
						Name:  "replace",
						Usage: "取り込み前に名前空間配下の既存パッセージを削除",
					},
				},
				Action: commands.IngestAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
