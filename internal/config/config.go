package config

// #region imports
import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// #endregion

// #region config

// Config is the full service configuration, loaded from the
// environment (optionally seeded from a .env file).
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBPath   string
	RedisURL string

	// Judgment service
	JudgmentBaseURL     string
	JudgmentAPIKey      string
	JudgmentModel       string
	JudgmentMaxAttempts int
	JudgmentTimeout     time.Duration

	// Video-metadata provider
	MetadataBaseURL   string
	MetadataAPIKey    string
	CategoriesBaseURL string
	ProviderTimeout   time.Duration

	// Rate limiting
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	LogLevel  string
	LogFormat string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// #endregion config

// #region load

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.DBPath = getEnv("DB_PATH", "focusmode.db")
	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")

	cfg.JudgmentBaseURL = getEnv("JUDGMENT_BASE_URL", "https://api.openai.com")
	cfg.JudgmentAPIKey = getEnv("JUDGMENT_API_KEY", "")
	cfg.JudgmentModel = getEnv("JUDGMENT_MODEL", "gpt-4o-mini")
	cfg.JudgmentMaxAttempts = getIntEnv("JUDGMENT_MAX_ATTEMPTS", 3)
	cfg.JudgmentTimeout = getDuration("JUDGMENT_TIMEOUT", 30*time.Second)

	cfg.MetadataBaseURL = getEnv("METADATA_BASE_URL", "https://www.googleapis.com/youtube/v3/videos")
	cfg.MetadataAPIKey = getEnv("METADATA_API_KEY", "")
	cfg.CategoriesBaseURL = getEnv("CATEGORIES_BASE_URL", "https://www.googleapis.com/youtube/v3/videoCategories")
	cfg.ProviderTimeout = getDuration("PROVIDER_TIMEOUT", 10*time.Second)

	cfg.RLEnabled = getEnv("RL_ENABLED", "true") == "true"
	cfg.RLLimit = getIntEnv("RL_IP_LIMIT", 100)
	cfg.RLWindow = getDuration("RL_IP_WINDOW", 1*time.Minute)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	cfg.HTTPReadTimeout = getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTPWriteTimeout = getDuration("HTTP_WRITE_TIMEOUT", 120*time.Second)
	cfg.HTTPIdleTimeout = getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)

	if cfg.AppEnv != "dev" && cfg.JudgmentAPIKey == "" {
		return nil, fmt.Errorf("missing JUDGMENT_API_KEY (required when APP_ENV != dev)")
	}

	return cfg, nil
}

// #endregion load

// #region getters

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// #endregion getters
