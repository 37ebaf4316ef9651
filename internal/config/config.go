package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	BackendMongoDB  = "mongodb"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LLM
	GroqAPIKey      string        `env:"GROQ_API_KEY"`
	GroqAPIKeyParam string        `env:"GROQ_API_KEY_PARAM"`
	GroqBaseURL     string        `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GroqModel       string        `env:"GROQ_MODEL" envDefault:"openai/gpt-oss-20b"`
	GroqTimeout     time.Duration `env:"GROQ_TIMEOUT" envDefault:"60s"`

	// History store
	HistoryBackend      string        `env:"HISTORY_BACKEND" envDefault:"mongodb"`
	MongoURI            string        `env:"MONGODB_URI"`
	MongoDatabase       string        `env:"MONGODB_DATABASE" envDefault:"chatbot"`
	MongoCollection     string        `env:"MONGODB_COLLECTION" envDefault:"users"`
	StateTable          string        `env:"STATE_TABLE"`
	StoreConnectTimeout time.Duration `env:"STORE_CONNECT_TIMEOUT" envDefault:"10s"`

	// Set by the Lambda runtime.
	LambdaFunctionName string `env:"AWS_LAMBDA_FUNCTION_NAME"`
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over .env entries.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("dotenv file not found", "path", f)
				continue
			}
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	cfg.MongoURI = strings.TrimSpace(cfg.MongoURI)
	cfg.HistoryBackend = strings.ToLower(strings.TrimSpace(cfg.HistoryBackend))
	switch cfg.HistoryBackend {
	case BackendMongoDB, BackendDynamoDB:
	default:
		return Config{}, fmt.Errorf("config: unknown HISTORY_BACKEND %q", cfg.HistoryBackend)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid PORT %d", cfg.Port)
	}
	return cfg, nil
}

// InLambda reports whether the process runs under the AWS Lambda runtime.
func (c Config) InLambda() bool {
	return c.LambdaFunctionName != ""
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
