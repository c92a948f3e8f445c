package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colVendors     = "agg_vendor"
	colResources   = "agg_resource"
	colWindows     = "agg_window"
	colBookings    = "agg_booking"
	colTickets     = "agg_ticket"
	colSequences   = "app_sequence"
	colIdempotency = "app_idempotency"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the secondary indexes the repositories query by.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colResources: {
			{Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "sequence", Value: 1}}},
		},
		colWindows: {
			{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "start_at", Value: 1}}},
			{Keys: bson.D{{Key: "flagged", Value: 1}}},
			{Keys: bson.D{{Key: "closed", Value: 1}}},
		},
		colBookings: {
			{Keys: bson.D{{Key: "window_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colTickets: {
			{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "issued_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: indexes for %s: %w", name, err)
		}
	}
	return nil
}
