package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	Env string // "development" または "production"

	// Database
	DatabaseURL string

	// Session
	SessionMaxAge        int // 秒
	SessionRefreshMargin int // 秒。残り有効期間がこれを下回ると延長する

	// Evolution gateway
	EvolutionAPIURL string
	EvolutionAPIKey string
	GroupCacheTTL   time.Duration

	// Automation webhooks
	WebhookChatURL    string
	WebhookSummaryURL string
	WebhookResetURL   string

	// Summary worker
	SummaryInterval      time.Duration
	SummaryMaxConcurrent int

	// Rate limit
	RateLimitGeneral  int
	RateLimitGroupReg int

	// Server
	ServerPort     string
	RequestTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// IsDevelopment は開発環境かどうかを返す。
// チャットWebhookのフォールバック応答やスタックトレースの露出は
// 開発環境でのみ有効になる。
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.EvolutionAPIURL = os.Getenv("EVOLUTION_API_URL")
	if cfg.EvolutionAPIURL == "" {
		missing = append(missing, "EVOLUTION_API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Env = getEnvString("ENV", "development")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionRefreshMargin = getEnvInt("SESSION_REFRESH_MARGIN", 600)
	cfg.EvolutionAPIKey = getEnvString("EVOLUTION_API_KEY", "")
	cfg.GroupCacheTTL = getEnvDuration("GROUP_CACHE_TTL", 300*time.Second)
	cfg.WebhookChatURL = getEnvString("WEBHOOK_CHAT_URL", "")
	cfg.WebhookSummaryURL = getEnvString("WEBHOOK_SUMMARY_URL", "")
	cfg.WebhookResetURL = getEnvString("WEBHOOK_RESET_URL", "")
	cfg.SummaryInterval = getEnvDuration("SUMMARY_INTERVAL", 5*time.Minute)
	cfg.SummaryMaxConcurrent = getEnvInt("SUMMARY_MAX_CONCURRENT", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGroupReg = getEnvInt("RATE_LIMIT_GROUP_REG", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
