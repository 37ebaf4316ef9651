package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"genai-chatbot/handler"
	"genai-chatbot/internal/api"
	"genai-chatbot/internal/config"
	"genai-chatbot/internal/integrations/groq"
	"genai-chatbot/internal/integrations/paramstore"
	"genai-chatbot/internal/repository"
	"genai-chatbot/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.SlogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfgs := &awsLoader{}

	// History store; any failure here degrades to the in-memory fallback.
	store, mode := repository.Connect(ctx, slog.Default(), historyDialer(cfg, awsCfgs), cfg.StoreConnectTimeout)
	defer repository.Close(context.WithoutCancel(ctx), store)
	slog.Info("history store ready", "backend", cfg.HistoryBackend, "mode", mode)

	// LLM client
	opts := []groq.Option{
		groq.WithBaseURL(cfg.GroqBaseURL),
		groq.WithHTTPClient(&http.Client{Timeout: cfg.GroqTimeout}),
		groq.WithAPIKey(cfg.GroqAPIKey),
	}
	if cfg.GroqAPIKey == "" && cfg.GroqAPIKeyParam != "" {
		awsCfg, err := awsCfgs.load(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			slog.Error("failed to create SSM client", "error", err)
			os.Exit(1)
		}
		opts = append(opts, groq.WithAPIKeyParameter(params, cfg.GroqAPIKeyParam))
	} else if cfg.GroqAPIKey == "" {
		slog.Warn("GROQ_API_KEY is not set; chat requests will fail until it is provided")
	}
	llm, err := groq.NewClient(cfg.GroqModel, opts...)
	if err != nil {
		slog.Error("failed to create Groq client", "error", err)
		os.Exit(1)
	}
	slog.Info("groq client ready", "model", llm.Model())

	chatService, err := usecase.NewChatService(llm, store)
	if err != nil {
		slog.Error("failed to create chat service", "error", err)
		os.Exit(1)
	}

	srv, err := api.NewServer(chatService, mode, slog.Default())
	if err != nil {
		slog.Error("failed to create API server", "error", err)
		os.Exit(1)
	}

	if cfg.InLambda() {
		h, err := handler.NewHandler(srv.Handler())
		if err != nil {
			slog.Error("failed to create handler", "error", err)
			os.Exit(1)
		}
		lambda.Start(h.Handle)
		return
	}

	go func() {
		if err := srv.Start(cfg.Port); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown", "error", err)
	}
	slog.Info("chatbot stopped")
}

func historyDialer(cfg config.Config, loader *awsLoader) repository.Dialer {
	switch cfg.HistoryBackend {
	case config.BackendDynamoDB:
		newAPI := func(ctx context.Context) (repository.DynamoDBAPI, error) {
			awsCfg, err := loader.load(ctx)
			if err != nil {
				return nil, err
			}
			return awsdynamodb.NewFromConfig(awsCfg), nil
		}
		return repository.DynamoDialer(newAPI, cfg.StateTable)
	default:
		return repository.MongoDialer(repository.MongoOptions{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.StoreConnectTimeout,
		})
	}
}

// awsLoader loads the shared AWS config at most once, and only when a
// component needs it.
type awsLoader struct {
	cfg    aws.Config
	loaded bool
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return l.cfg, nil
	}
	c, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	l.cfg, l.loaded = c, true
	return c, nil
}

func setupLogging(level slog.Level) {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}
