package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/storage"
)

// Client owns the MongoDB connection shared by every collection adapter.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect opens a MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("mongodb connected", zap.String("database", dbName))

	return &Client{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}, nil
}

// Database exposes the underlying database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the data services rely on. The aisle name
// index is unique under a case-insensitive collation so that concurrent saves
// cannot both create the same name.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		storage.HistoryCollection: {
			{
				Keys:    bson.D{{Key: "medicineId", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("history_medicine_timestamp"),
			},
			{
				Keys:    bson.D{{Key: "timestamp", Value: 1}},
				Options: options.Index().SetName("history_timestamp"),
			},
		},
		storage.AislesCollection: {
			{
				Keys: bson.D{{Key: "name", Value: 1}},
				Options: options.Index().
					SetName("aisles_name_ci").
					SetUnique(true).
					SetCollation(&options.Collation{Locale: "en", Strength: 2}),
			},
		},
		storage.MedicinesCollection: {
			{
				Keys:    bson.D{{Key: "aisleId", Value: 1}},
				Options: options.Index().SetName("medicines_aisle"),
			},
		},
	}

	for name, models := range indexes {
		created, err := c.db.Collection(name).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
		c.logger.Debug("indexes ensured", zap.String("collection", name), zap.Strings("indexes", created))
	}

	return nil
}

// Close closes the MongoDB connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
