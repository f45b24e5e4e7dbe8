package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/finscrape/internal/types"
)

// Collection names shared by the document and relational backends.
const (
	targetsCollection = "scraping_targets"
	recordsCollection = "scraped_contents"
	runsCollection    = "scraping_logs"
)

// MongoStore persists to MongoDB. A unique index on content_hash makes
// Insert atomic across processes.
type MongoStore struct {
	client  *mongo.Client
	targets *mongo.Collection
	records *mongo.Collection
	runs    *mongo.Collection
	logger  *slog.Logger
}

// NewMongoStore connects to uri and ensures the indexes exist.
func NewMongoStore(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:  client,
		targets: db.Collection(targetsCollection),
		records: db.Collection(recordsCollection),
		runs:    db.Collection(runsCollection),
		logger:  logger.With("component", "mongo_store"),
	}

	_, err = s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "content_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "consumed", Value: 1}, {Key: "scraped_at", Value: 1}}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) SyncTargets(ctx context.Context, targets []types.Target) error {
	for _, t := range targets {
		_, err := s.targets.ReplaceOne(ctx, bson.M{"_id": t.ID}, t, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("mongodb upsert target %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *MongoStore) ActiveTargets(ctx context.Context) ([]types.Target, error) {
	cur, err := s.targets.Find(ctx, bson.M{"is_active": true}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb find targets: %w", err)
	}
	var out []types.Target
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb decode targets: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	n, err := s.records.CountDocuments(ctx, bson.M{"content_hash": fingerprint}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongodb count: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) Insert(ctx context.Context, rec *types.Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if _, err := s.records.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("mongodb insert: %w", err)
	}
	return true, nil
}

func (s *MongoStore) StartRun(ctx context.Context, run *types.RunLog) error {
	if run.ID == "" {
		run.ID = NewID()
	}
	if _, err := s.runs.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("mongodb insert run: %w", err)
	}
	return nil
}

func (s *MongoStore) FinishRun(ctx context.Context, run *types.RunLog) error {
	_, err := s.runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, run, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb update run: %w", err)
	}
	return nil
}

func (s *MongoStore) Pending(ctx context.Context, limit int) ([]types.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scraped_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.records.Find(ctx, bson.M{"consumed": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find pending: %w", err)
	}
	var out []types.Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb decode pending: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Ack(ctx context.Context, id string) error {
	res, err := s.records.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"consumed": true}})
	if err != nil {
		return fmt.Errorf("mongodb ack: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("record %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Close() error {
	s.logger.Info("mongodb store closing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
