package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"genai-chatbot/internal/domain"
)

// Mode reports which store backs conversation history for the process.
type Mode string

const (
	ModePersistent Mode = "persistent"
	ModeFallback   Mode = "fallback"
)

// HistoryStore reads and appends conversation turns.
type HistoryStore interface {
	GetHistory(ctx context.Context, userID string) ([]domain.ChatMessage, error)
	AppendTurn(ctx context.Context, turn domain.Turn) error
}

// Dialer opens a persistent store. It should not block on the network; the
// liveness check happens in Connect.
type Dialer func(ctx context.Context) (HistoryStore, error)

type pinger interface {
	Ping(ctx context.Context) error
}

type closer interface {
	Close(ctx context.Context) error
}

// Connect dials the persistent store and verifies it with a ping. Any failure
// is logged and the process-wide MemoryStore is returned instead. The chosen
// mode is fixed for the life of the process; there is no reconnection.
func Connect(ctx context.Context, logger *slog.Logger, dial Dialer, timeout time.Duration) (HistoryStore, Mode) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	store, err := open(ctx, dial)
	if err != nil {
		logger.Warn("history store unavailable, using in-memory fallback", "error", err)
		return NewMemoryStore(), ModeFallback
	}
	logger.Info("history store connected")
	return store, ModePersistent
}

func open(ctx context.Context, dial Dialer) (HistoryStore, error) {
	if dial == nil {
		return nil, errors.New("repository: no persistent store configured")
	}
	store, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("repository: dialer returned nil store")
	}
	if p, ok := store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			Close(context.WithoutCancel(ctx), store)
			return nil, err
		}
	}
	return store, nil
}

// Close releases the store's connection if it holds one.
func Close(ctx context.Context, store HistoryStore) {
	c, ok := store.(closer)
	if !ok {
		return
	}
	if err := c.Close(ctx); err != nil {
		slog.Warn("history store close failed", "error", err)
	}
}

// MongoDialer returns a Dialer for MongoDB.
func MongoDialer(opts MongoOptions) Dialer {
	return func(context.Context) (HistoryStore, error) {
		c, err := DialMongo(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// DynamoDialer returns a Dialer for DynamoDB. newAPI is usually a closure over
// aws config.LoadDefaultConfig and dynamodb.NewFromConfig.
func DynamoDialer(newAPI func(ctx context.Context) (DynamoDBAPI, error), tableName string) Dialer {
	return func(ctx context.Context) (HistoryStore, error) {
		if newAPI == nil {
			return nil, errors.New("repository: dynamodb api factory must not be nil")
		}
		api, err := newAPI(ctx)
		if err != nil {
			return nil, err
		}
		return NewDynamoClient(api, tableName)
	}
}
