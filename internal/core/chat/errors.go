package chat

import "errors"

var (
	// ErrInvalidRequest は質問が空、または履歴が不正な場合のエラー
	// 外部サービスを呼び出す前に検出され、リトライしない
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMalformedOutput はモデルが複数の名前付き値を返した場合のエラー
	// 上流の契約違反を示すため、当該リクエストは即座に失敗させる
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrCompletionUnavailable は補完APIの呼び出しが失敗した場合のエラー
	// リトライは行わず呼び出し元へ伝播する
	ErrCompletionUnavailable = errors.New("completion unavailable")
)
