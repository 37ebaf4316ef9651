package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"genai-chatbot/internal/domain"
)

const (
	defaultMongoDatabase   = "chatbot"
	defaultMongoCollection = "users"
)

// mongoCollection is the subset of *mongo.Collection used by MongoClient.
type mongoCollection interface {
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

// turnDocument is the persisted shape of one turn.
type turnDocument struct {
	UserID    string    `bson:"user_id"`
	Role      string    `bson:"role"`
	Message   string    `bson:"message"`
	Timestamp time.Time `bson:"timestamp"`
}

type historyDocument struct {
	Role    string `bson:"role"`
	Message string `bson:"message"`
}

// MongoOptions configures DialMongo.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoClient stores chat turns as documents in a MongoDB collection.
type MongoClient struct {
	coll   mongoCollection
	client *mongo.Client
}

// NewMongoClient wraps an existing collection. The returned client owns no
// connection and Close is a no-op.
func NewMongoClient(coll mongoCollection) (*MongoClient, error) {
	if coll == nil {
		return nil, errors.New("repository: collection must not be nil")
	}
	return &MongoClient{coll: coll}, nil
}

// DialMongo builds a MongoDB client using TLS and the stable server API. TLS
// is required for every URI, whatever its scheme or tls parameter. No
// network I/O happens until the first operation; use Ping to verify the
// deployment is reachable.
func DialMongo(opts MongoOptions) (*MongoClient, error) {
	uri := strings.TrimSpace(opts.URI)
	if uri == "" {
		return nil, errors.New("repository: mongodb uri is empty")
	}
	if opts.Database == "" {
		opts.Database = defaultMongoDatabase
	}
	if opts.Collection == "" {
		opts.Collection = defaultMongoCollection
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout).SetServerSelectionTimeout(opts.Timeout)
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("repository: mongodb connect: %w", err)
	}

	return &MongoClient{
		coll:   client.Database(opts.Database).Collection(opts.Collection),
		client: client,
	}, nil
}

// Ping runs the admin ping command.
func (c *MongoClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return errors.New("repository: mongodb client not connected")
	}
	if err := c.client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("repository: mongodb ping: %w", err)
	}
	return nil
}

// Close disconnects the underlying client, if any.
func (c *MongoClient) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("repository: mongodb disconnect: %w", err)
	}
	return nil
}

// GetHistory returns the user's turns sorted by timestamp ascending. _id
// breaks ties between turns stored within the same millisecond.
func (c *MongoClient) GetHistory(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}, {Key: "role", Value: 1}, {Key: "message", Value: 1}})

	cur, err := c.coll.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory find: %w", err)
	}

	var docs []historyDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("repository: GetHistory decode: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, domain.ChatMessage{Role: d.Role, Content: d.Message})
	}
	return msgs, nil
}

// AppendTurn inserts one turn document.
func (c *MongoClient) AppendTurn(ctx context.Context, turn domain.Turn) error {
	_, err := c.coll.InsertOne(ctx, turnDocument{
		UserID:    turn.UserID,
		Role:      turn.Role,
		Message:   turn.Message,
		Timestamp: turn.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn insert: %w", err)
	}
	return nil
}
