package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tfomics/tfomics/pkg/errors"
)

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// SetDefaults fills unset fields with sensible values.
func (c *MongoConfig) SetDefaults() {
	if c.Database == "" {
		c.Database = "tfomics"
	}
	if c.Collection == "" {
		c.Collection = "runs"
	}
}

// MongoStore persists runs in a MongoDB collection. It is the backend
// used by the HTTP server.
type MongoStore struct {
	client *mongo.Client
	runs   *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	cfg.SetDefaults()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "connect to %s", cfg.URI)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "ping %s", cfg.URI)
	}

	return &MongoStore{
		client: client,
		runs:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Save persists a run, replacing any existing run with the same ID.
func (s *MongoStore) Save(ctx context.Context, run *Run) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, run, opts); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "save run %s", run.ID)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *MongoStore) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err == mongo.ErrNoDocuments {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "get run %s", id)
	}
	return &run, nil
}

// List returns runs of the given kind, newest first.
func (s *MongoStore) List(ctx context.Context, kind Kind, limit int) ([]*Run, error) {
	filter := bson.M{}
	if kind != "" {
		filter["kind"] = kind
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := s.runs.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "list runs")
	}
	defer cursor.Close(ctx)

	var runs []*Run
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode runs")
	}
	return runs, nil
}

// Delete removes a run. Deleting a missing run is not an error.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.runs.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "delete run %s", id)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)
