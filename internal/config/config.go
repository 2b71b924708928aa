package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CANDIDATES_"

// Insecure secrets that are only tolerated when running in development.
var insecureSecrets = map[string]struct{}{
	"changeme": {},
	"123456":   {},
	"secret":   {},
}

type Config struct {
	Env           string        `yaml:"env"`
	Addr          string        `yaml:"addr"`
	LogLevel      string        `yaml:"log_level"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTAlgorithm  string        `yaml:"jwt_algorithm"`
	TokenDuration time.Duration `yaml:"token_duration"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
	AllowedHosts  []string      `yaml:"allowed_hosts"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	Worker        WorkerConfig  `yaml:"worker"`
	Sentry        SentryConfig  `yaml:"sentry"`
}

type WorkerConfig struct {
	// Embedded runs the job worker pool inside the API process.
	Embedded     bool          `yaml:"embedded"`
	Count        int           `yaml:"count"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

type SentryConfig struct {
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	Release          string  `yaml:"release"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
	SendDefaultPII   bool    `yaml:"send_default_pii"`
	Debug            bool    `yaml:"debug"`
}

// LoadConfig builds the configuration from defaults, an optional .env file,
// CANDIDATES_* environment variables and finally the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:           getEnv("ENV", "production"),
		Addr:          getEnv("ADDR", ":8000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		APITimeout:    getEnvDuration("TIMEOUT", 15*time.Second),
		DatabasePath:  getEnv("DATABASE_PATH", "candidates.db"),
		JWTSecret:     getEnv("JWT_SECRET", "changeme"),
		JWTAlgorithm:  getEnv("JWT_ALGORITHM", "HS256"),
		TokenDuration: getEnvDuration("TOKEN_DURATION", 30*time.Minute),
		BcryptCost:    getEnvInt("BCRYPT_COST", bcrypt.DefaultCost),
		AllowedHosts:  getEnvList("ALLOWED_HOSTS"),
		CORSOrigins:   getEnvList("CORS_ORIGINS"),
		Worker: WorkerConfig{
			Embedded:     getEnvBool("WORKER_EMBEDDED", true),
			Count:        getEnvInt("WORKER_COUNT", 2),
			PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
			StaleAfter:   getEnvDuration("WORKER_STALE_AFTER", 5*time.Minute),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			Environment:      getEnv("SENTRY_ENVIRONMENT", ""),
			Release:          getEnv("SENTRY_RELEASE", ""),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 1.0),
			SendDefaultPII:   getEnvBool("SENTRY_SEND_DEFAULT_PII", false),
		},
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Env
	}

	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if _, weak := insecureSecrets[c.JWTSecret]; weak && !c.IsDevelopment() {
		errs = append(errs, fmt.Errorf("jwt_secret is insecure for env %q", c.Env))
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported jwt_algorithm %q", c.JWTAlgorithm))
	}
	if c.TokenDuration <= 0 {
		errs = append(errs, errors.New("token_duration must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Worker.Count <= 0 {
		errs = append(errs, errors.New("worker.count must be positive"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		errs = append(errs, errors.New("sentry.traces_sample_rate must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// loadDotEnv loads CANDIDATES_ENV_FILE when set, otherwise ./.env if present.
// Variables already set in the environment win.
func loadDotEnv() error {
	if p := os.Getenv(envPrefix + "ENV_FILE"); p != "" {
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}

	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvList(key string) []string {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
