package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 補完）
	OpenAI OpenAIConfig

	// 質問応答パイプライン設定
	Chat ChatConfig

	// 取り込み設定
	Ingest IngestConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	CompletionModel    string
}

// ChatConfig は質問応答パイプラインの設定
type ChatConfig struct {
	// Domain はペルソナ応答が対象とするプロダクト名
	Domain string
	// TopK は近傍検索の件数
	TopK int
	// FilterPolicy は検索結果のフィルタリングポリシー（threshold / passthrough）
	FilterPolicy string
	// MinScore は threshold ポリシー時の足切りスコア
	MinScore float64
	// Namespace は検索対象のベクトルインデックス名前空間
	Namespace string
}

// IngestConfig は取り込み処理の設定
type IngestConfig struct {
	// ChunkSize は1チャンクの目標文字数
	ChunkSize int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "helpchat"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "helpchat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			CompletionModel:    getEnv("OPENAI_COMPLETION_MODEL", "gpt-4o-mini"),
		},
		Chat: ChatConfig{
			Domain:       getEnv("CHAT_DOMAIN", "Collect chat"),
			TopK:         getEnvAsInt("CHAT_TOP_K", 3),
			FilterPolicy: getEnv("CHAT_FILTER_POLICY", "passthrough"),
			MinScore:     getEnvAsFloat("CHAT_MIN_SCORE", 0.78),
			Namespace:    getEnv("CHAT_NAMESPACE", "hc-collectchat"),
		},
		Ingest: IngestConfig{
			ChunkSize: getEnvAsInt("INGEST_CHUNK_SIZE", 2000),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
