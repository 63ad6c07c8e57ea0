package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobDriver   string // fs
	BlobBasePath string

	HMACSecret      string
	EnableLocalAuth bool

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	GeminiAPIKey string
	GeminiModel  string

	DailyFreeLimit        int
	MinDurationMinutes    int
	DefaultMarketDuration int
	SessionRetention      time.Duration

	RabbitMQURI      string
	RabbitMQExchange string
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

var defaults = map[string]any{
	"MODE":                            string(ModeOffline),
	"HTTP_ADDR":                       ":8080",
	"PUBLIC_URL":                      "",
	"DB_DRIVER":                       "sqlite",
	"DB_DSN":                          "",
	"BLOB_DRIVER":                     "fs",
	"BLOB_BASE_PATH":                  "./data",
	"AUTH_HMAC_SECRET":                "dev-secret-change-me",
	"ENABLE_LOCAL_AUTH":               "true",
	"CORS_ORIGINS_ONLINE":             "https://app.helloclass.com.tr",
	"CORS_ORIGINS_OFFLINE":            "http://localhost:3000,http://localhost:5173",
	"GEMINI_API_KEY":                  "",
	"GEMINI_MODEL":                    "gemini-2.5-flash",
	"DAILY_FREE_LIMIT":                1,
	"MIN_DURATION_MINUTES":            5,
	"DEFAULT_MARKET_DURATION_MINUTES": 20,
	"SESSION_RETENTION":               time.Hour,
	"RABBITMQ_URI":                    "",
	"RABBITMQ_EXCHANGE":               "exam.events",
}

// FromEnv reads .env (or the file named by ENV_FILE) when present, then the
// process environment, then an optional config.yaml in the working directory.
// Environment wins over the file.
func FromEnv() Config {
	return Load(envOr(nil, "ENV_FILE", ".env"))
}

func Load(dotEnvPath string) Config {
	if _, err := os.Stat(dotEnvPath); err == nil {
		// Load never overrides variables already set in the process
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Printf("config: load %s: %v", dotEnvPath, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("config: read config.yaml: %v", err)
		}
	}
	v.AutomaticEnv()

	mode := Mode(envOr(v, "MODE", string(ModeOffline)))
	if mode != ModeOnline {
		mode = ModeOffline
	}
	return Config{
		Mode:                  mode,
		HTTPAddr:              envOr(v, "HTTP_ADDR", ":8080"),
		PublicURL:             strings.TrimSuffix(envOr(v, "PUBLIC_URL", ""), "/"),
		DBDriver:              envOr(v, "DB_DRIVER", "sqlite"),
		DBDSN:                 envOr(v, "DB_DSN", ""),
		BlobDriver:            envOr(v, "BLOB_DRIVER", "fs"),
		BlobBasePath:          envOr(v, "BLOB_BASE_PATH", "./data"),
		HMACSecret:            envOr(v, "AUTH_HMAC_SECRET", "dev-secret-change-me"),
		EnableLocalAuth:       envBool(v, "ENABLE_LOCAL_AUTH", true),
		CORSOriginsOnline:     csvOr(v, "CORS_ORIGINS_ONLINE", ""),
		CORSOriginsOffline:    csvOr(v, "CORS_ORIGINS_OFFLINE", ""),
		GeminiAPIKey:          envOr(v, "GEMINI_API_KEY", ""),
		GeminiModel:           envOr(v, "GEMINI_MODEL", "gemini-2.5-flash"),
		DailyFreeLimit:        v.GetInt("DAILY_FREE_LIMIT"),
		MinDurationMinutes:    v.GetInt("MIN_DURATION_MINUTES"),
		DefaultMarketDuration: v.GetInt("DEFAULT_MARKET_DURATION_MINUTES"),
		SessionRetention:      v.GetDuration("SESSION_RETENTION"),
		RabbitMQURI:           envOr(v, "RABBITMQ_URI", ""),
		RabbitMQExchange:      envOr(v, "RABBITMQ_EXCHANGE", "exam.events"),
	}
}

// envOr reads k from v, or straight from the environment when v is nil.
func envOr(v *viper.Viper, k, def string) string {
	var s string
	if v == nil {
		s = os.Getenv(k)
	} else {
		s = v.GetString(k)
	}
	if s == "" {
		return def
	}
	return s
}

func envBool(v *viper.Viper, k string, def bool) bool {
	switch envOr(v, k, "") {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(v *viper.Viper, k, def string) []string {
	parts := strings.Split(envOr(v, k, def), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
