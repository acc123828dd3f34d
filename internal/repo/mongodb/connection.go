package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// ConnectionConfig describes how to reach the realtime database.
type ConnectionConfig struct {
	AppName  string
	URI      string
	Hosts    []string
	Direct   bool
	Username string
	Password string
	AuthDB   string
	Database string
}

// NewConnection builds a client without pinging; callers ping on start.
func NewConnection(ctx context.Context, cfg ConnectionConfig) (*DB, error) {
	clientOptions := options.Client().
		SetAppName(cfg.AppName).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second).
		SetTimeout(10 * time.Second)

	if cfg.URI != "" {
		clientOptions.ApplyURI(cfg.URI)
	} else {
		clientOptions.SetHosts(cfg.Hosts).SetDirect(cfg.Direct)
	}

	// Only set auth if username is provided
	if cfg.Username != "" {
		clientOptions.SetAuth(options.Credential{
			AuthSource: cfg.AuthDB,
			Username:   cfg.Username,
			Password:   cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &DB{
		Client:   client,
		Database: client.Database(cfg.Database),
	}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}
