package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hashiba/helpchat/internal/core/chat"
)

// ChatAction は質問応答コマンドのアクション
// 引数に質問が渡された場合は単発で回答し、渡されない場合は対話セッションを
// 開始する。会話履歴はセッションの間だけメモリ上に保持する
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	showSources := cmd.Bool("show-sources")
	streaming := !cmd.Bool("no-stream")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question != "" {
		_, err := answerOnce(ctx, appCtx, question, nil, showSources, streaming)
		return err
	}

	return runSession(ctx, appCtx, showSources, streaming)
}

// runSession は標準入力からの対話ループを実行する
func runSession(ctx context.Context, appCtx *AppContext, showSources, streaming bool) error {
	fmt.Println("helpchat: 質問を入力してください（exit で終了）")

	var history chat.History

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		result, err := answerOnce(ctx, appCtx, question, history, showSources, streaming)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		// 履歴の永続化は呼び出し側（このセッション）の責務
		history = appendTurn(history, question, result.Answer)
	}

	return scanner.Err()
}

// appendTurn は会話履歴にターンを追加する
// 片方の発話が空のターンは不正な履歴になるため追加しない
func appendTurn(history chat.History, question, answer string) chat.History {
	if question == "" || answer == "" {
		return history
	}
	return append(history, chat.ConversationTurn{
		Human:     question,
		Assistant: answer,
	})
}

// answerOnce は1回の質問応答を実行して結果を表示する
func answerOnce(ctx context.Context, appCtx *AppContext, question string, history chat.History, showSources, streaming bool) (*chat.ChatResult, error) {
	req := chat.ChatRequest{
		Question: question,
		History:  history,
	}

	if streaming {
		req.OnToken = func(token string) {
			fmt.Print(token)
		}
	}

	result, err := appCtx.Container.ChatService.Answer(ctx, req)
	if err != nil {
		return nil, err
	}

	if streaming {
		// ストリーム済みの本文のあとに改行だけ補う
		fmt.Println()
	} else {
		fmt.Println(result.Answer)
	}

	if showSources && len(result.Sources) > 0 {
		fmt.Println("\n--- 参照パッセージ ---")
		for i, source := range result.Sources {
			fmt.Printf("[%d] %s (%s) スコア: %.4f\n",
				i+1,
				source.Title,
				source.SlugID,
				source.Score,
			)
		}
	}

	return result, nil
}
