package chat

import (
	"fmt"
	"strings"
)

// FormatHistory は会話履歴をプロンプト埋め込み用に直列化する
// 既存デプロイとの互換性のため `Human: <発話>, AI Assistant: <応答>, ` の
// 連結形式をそのまま維持している
func FormatHistory(history History) string {
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString("Human: ")
		sb.WriteString(turn.Human)
		sb.WriteString(", AI Assistant: ")
		sb.WriteString(turn.Assistant)
		sb.WriteString(", ")
	}
	return sb.String()
}

// BuildCondensePrompt は質問書き換え用のプロンプトを構築する
// モデルには standalone_question を唯一のキーとするJSONオブジェクトでの
// 応答を要求する
func BuildCondensePrompt(question string, history History) string {
	var sb strings.Builder

	sb.WriteString("Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.\n")
	sb.WriteString("If the follow up input is a greeting, an imperative statement, an incomplete fragment, or a generic acknowledgement such as \"thank you\" or \"ok\", return it unchanged.\n")
	sb.WriteString("Respond with a JSON object containing exactly one key, \"standalone_question\", whose value is the rephrased question.\n\n")

	sb.WriteString("Chat History:\n")
	sb.WriteString(FormatHistory(history))
	sb.WriteString("\n\nFollow Up Input: ")
	sb.WriteString(question)
	sb.WriteString("\nStandalone question:")

	return sb.String()
}

// BuildGroundedPrompt は検索コンテキストに基づく回答生成プロンプトを構築する
// パッセージ本文は検索順を保ったまま連結する
func BuildGroundedPrompt(domain, question string, history History, context string) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful AI assistant. Use the following pieces of context & chat history to answer the question at the end. If you don't know the answer, just say you don't know. DO NOT try to make up an answer. DO NOT try to make up things like Dates, Names, Places, etc.\n")
	fmt.Fprintf(&sb, "If the question is not related to the context, politely respond that you don't know and ask if there is anything else you can help with related to %s.\n\n", domain)

	sb.WriteString("Context:\n")
	sb.WriteString(context)
	sb.WriteString("\n\n")

	sb.WriteString("If the answer is not included, follow the rules below:\n")
	sb.WriteString("1. If the question is a greeting, respond back politely.\n")
	fmt.Fprintf(&sb, "2. If the question is unrelated to the context, politely respond that you don't know and ask if there is anything else you can help with related to %s.\n", domain)
	fmt.Fprintf(&sb, "3. If the question is a statement or a fact, ALWAYS respond that you can only answer questions that are related to %s.\n\n", domain)

	sb.WriteString("Make sure the answer is in markdown format. Add line breaks when needed. Use bullet points if needed. Use bold, italics, and links if needed. Hyperlink URLs if possible. If the answer is a code snippet, use the code block markdown.\n\n")

	sb.WriteString("Provided below is a history of the conversation. You may also make use of the conversation history for additional context for the question at the end.\n\n")
	sb.WriteString("Conversation History:\n")
	sb.WriteString(FormatHistory(history))
	sb.WriteString("\n\n")

	sb.WriteString("Question: \"\"\"\n")
	sb.WriteString(question)
	sb.WriteString("\n\"\"\"\n\n")

	sb.WriteString("Helpful answer in markdown:")

	return sb.String()
}

// BuildFallbackPrompt はコンテキストなしのペルソナ応答プロンプトを構築する
// 挨拶には丁寧に応答し、それ以外は対象ドメインに関する質問のみ回答できる旨を返す
func BuildFallbackPrompt(domain, question string, history History) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a helpful AI assistant. No context is available. If the below question is a greeting, respond back politely. If the question is unrelated to %s, politely respond that you can only answer questions that are related to %s. Don't answer questions that ask \"What is x?\" if x is not related to %s. Never break character.\n\n", domain, domain, domain)

	sb.WriteString("Make sure the answer is in markdown format.\n\n")

	sb.WriteString("Conversation History:\n")
	sb.WriteString(FormatHistory(history))
	sb.WriteString("\n\n")

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nHelpful Answer:")

	return sb.String()
}
