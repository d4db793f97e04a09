package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ballot-engine/internal/domain"
)

const mongoCollection = "audit_log"

// MongoSink inserts entries into a MongoDB collection keyed by entry id
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects to uri and verifies the connection
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &MongoSink{client: client, collection: client.Database(database).Collection(mongoCollection)}, nil
}

func (s *MongoSink) Write(ctx context.Context, e domain.AuditEntry) error {
	_, err := s.collection.InsertOne(ctx, e)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to insert audit entry [id:%s]: %w", e.ID, err)
	}
	return nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
