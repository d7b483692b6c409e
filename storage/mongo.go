package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "nexus_kv"

type mongoKVDocument struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoKV stores each key as one document keyed by _id.
// Unless created by the factory, the caller owns the mongo.Client lifecycle.
type MongoKV struct {
	collection *mongo.Collection
	log        *slog.Logger

	ownsClient bool
}

func NewMongoKV(collection *mongo.Collection, log *slog.Logger) *MongoKV {
	return &MongoKV{collection: collection, log: log}
}

func (b *MongoKV) Get(ctx context.Context, key string) ([]byte, error) {
	var doc mongoKVDocument
	err := b.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return doc.Value, nil
}

func (b *MongoKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		mongoKVDocument{Key: key, Value: value},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *MongoKV) Delete(ctx context.Context, key string) error {
	if _, err := b.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *MongoKV) Available(ctx context.Context) bool {
	if err := b.collection.Database().Client().Ping(ctx, nil); err != nil {
		b.log.Warn("MongoDB backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *MongoKV) Name() string {
	return fmt.Sprintf("mongodb-%s-%s", b.collection.Database().Name(), b.collection.Name())
}

// Close disconnects the client when the backend created it.
func (b *MongoKV) Close() error {
	if !b.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.collection.Database().Client().Disconnect(ctx)
}
