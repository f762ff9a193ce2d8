package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBConnLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	InferenceURL             string        `mapstructure:"INFERENCE_URL"`
	InferenceTimeout         time.Duration `mapstructure:"INFERENCE_TIMEOUT"`
	InferenceTopK            int           `mapstructure:"INFERENCE_TOP_K"`
	InferenceBreakerFailures uint32        `mapstructure:"INFERENCE_BREAKER_FAILURES"`
	InferenceBreakerCooldown time.Duration `mapstructure:"INFERENCE_BREAKER_COOLDOWN"`

	FallbackCode     string   `mapstructure:"FALLBACK_CODE"`
	CoderPool        []string `mapstructure:"CODER_POOL"`
	MetricsNamespace string   `mapstructure:"METRICS_NAMESPACE"`

	OTelEnabled    bool    `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint   string  `mapstructure:"OTEL_ENDPOINT"`
	OTelSampleRate float64 `mapstructure:"OTEL_SAMPLE_RATE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"INFERENCE_URL", "INFERENCE_TIMEOUT", "INFERENCE_TOP_K",
	"INFERENCE_BREAKER_FAILURES", "INFERENCE_BREAKER_COOLDOWN",
	"FALLBACK_CODE", "CODER_POOL", "METRICS_NAMESPACE",
	"OTEL_ENABLED", "OTEL_ENDPOINT", "OTEL_SAMPLE_RATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("INFERENCE_URL", "http://localhost:5000")
	v.SetDefault("INFERENCE_TIMEOUT", "5s")
	v.SetDefault("INFERENCE_TOP_K", 5)
	v.SetDefault("INFERENCE_BREAKER_FAILURES", 5)
	v.SetDefault("INFERENCE_BREAKER_COOLDOWN", "30s")
	v.SetDefault("FALLBACK_CODE", "R69")
	v.SetDefault("METRICS_NAMESPACE", "medcoding")
	v.SetDefault("OTEL_SAMPLE_RATE", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated lists are normalized here; the decode hook keeps blanks.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.CoderPool = splitList(v.GetString("CODER_POOL"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development); requests without a token get clinician+coder access.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development a
// token signing key is required, and the outbound prediction call must finish
// well inside the request deadline.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}
	if c.InferenceTopK <= 0 {
		return fmt.Errorf("INFERENCE_TOP_K must be positive, got %d", c.InferenceTopK)
	}
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.InferenceTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed INFERENCE_TIMEOUT (%s)", c.RequestTimeout, c.InferenceTimeout)
	}
	if c.OTelEnabled && c.OTelEndpoint == "" {
		return fmt.Errorf("OTEL_ENDPOINT is required when OTEL_ENABLED is true")
	}
	return nil
}
