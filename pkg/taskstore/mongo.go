package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/monet/pkg/task"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/event"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

const (
	defaultMongoDatabase = "monet"
	tasksCollection      = "tasks"
)

// mongoTask mirrors the task document written by the API service
type mongoTask struct {
	ID            any        `bson:"_id"`
	Inputs        [][]byte   `bson:"inputs"`
	Outputs       [][]byte   `bson:"outputs"`
	Arguments     []string   `bson:"arguments"`
	State         string     `bson:"state"`
	Progress      float64    `bson:"progress"`
	ProcessErrors []string   `bson:"processErrors"`
	Queued        time.Time  `bson:"queued"`
	Started       *time.Time `bson:"started,omitempty"`
	Finished      *time.Time `bson:"finished,omitempty"`
}

// MongoStore persists tasks in the shared MongoDB task database
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger
}

// NewMongoStore connects to the database named in cfg.URL. The driver
// reconnects on its own; heartbeat failures are logged.
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	logger := cfg.Logger.With().Str("database", "taskDatabase").Logger()

	cs, err := connstring.ParseAndValidate(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mongodb url: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetServerMonitor(&event.ServerMonitor{
			ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
				logger.Error().
					Err(e.Failure).
					Str("connection_id", e.ConnectionID).
					Msg("Task database heartbeat failed")
			},
		})
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to task database: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		logger.Warn().Err(err).Msg("Task database not reachable yet, the driver will keep retrying")
	} else {
		logger.Info().Msg("Connected to the task database")
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(tasksCollection),
		logger:     logger,
	}, nil
}

// Get loads a task document by ID
func (s *MongoStore) Get(ctx context.Context, id string) (*task.Task, error) {
	var doc mongoTask
	err := s.collection.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task %s: %w", id, err)
	}

	return &task.Task{
		ID:            id,
		Inputs:        doc.Inputs,
		Outputs:       doc.Outputs,
		Arguments:     doc.Arguments,
		State:         task.State(doc.State),
		Progress:      doc.Progress,
		ProcessErrors: doc.ProcessErrors,
		Queued:        doc.Queued,
		Started:       doc.Started,
		Finished:      doc.Finished,
	}, nil
}

// Save upserts the fields the agent owns. Fields it does not know about,
// such as the artwork reference, are left untouched.
func (s *MongoStore) Save(ctx context.Context, t *task.Task) error {
	set := bson.M{
		"outputs":       nonNilBlobs(t.Outputs),
		"state":         string(t.State),
		"progress":      t.Progress,
		"processErrors": nonNilStrings(t.ProcessErrors),
	}
	if t.Started != nil {
		set["started"] = *t.Started
	}
	if t.Finished != nil {
		set["finished"] = *t.Finished
	}

	queued := t.Queued
	if queued.IsZero() {
		queued = time.Now()
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"inputs":    nonNilBlobs(t.Inputs),
			"arguments": nonNilStrings(t.Arguments),
			"queued":    queued,
		},
	}

	_, err := s.collection.UpdateOne(ctx, idFilter(t.ID), update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// Close disconnects the client
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// idFilter matches ObjectID keys created by the API and plain string keys
func idFilter(id string) bson.M {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}
