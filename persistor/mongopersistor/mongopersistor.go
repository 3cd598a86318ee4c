// Package mongopersistor implements persistor.Persistor on top of MongoDB,
// storing each Snapshot as an immutable document in an append-only
// collection indexed by xcId and ts.
package mongopersistor

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentrt/runtime/persistor"
)

const (
	defaultCollection = "runtime_snapshots"
	defaultOpTimeout   = 5 * time.Second
)

// Options configures the MongoDB-backed persistor.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a persistor.Persistor backed by MongoDB.
func New(opts Options) (persistor.Persistor, error) {
	if opts.Client == nil {
		return nil, errors.New("mongopersistor: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongopersistor: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "xc_id", Value: 1}, {Key: "ts", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}
	return &store{coll: coll, timeout: timeout}, nil
}

type snapshotDocument struct {
	XCID   string         `bson:"xc_id"`
	Hash   string         `bson:"hash"`
	Ts     int64          `bson:"ts"`
	Events []any          `bson:"events"`
	State  map[string]any `bson:"state"`
}

func (s *store) Append(ctx context.Context, snap persistor.Snapshot) error {
	if snap.XCID == "" {
		return errors.New("mongopersistor: xcId is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := snapshotDocument{
		XCID:   snap.XCID,
		Hash:   snap.Hash,
		Ts:     snap.Ts,
		Events: snap.Events,
		State:  snap.State,
	}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

func (s *store) Load(ctx context.Context, xcID string) (persistor.Iterator, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"xc_id": xcID}, options.Find().SetSort(bson.D{{Key: "ts", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return &cursorIterator{cur: cur}, nil
}

func (s *store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type cursorIterator struct {
	cur *mongodriver.Cursor
}

func (it *cursorIterator) Next(ctx context.Context) (persistor.Snapshot, bool, error) {
	if !it.cur.Next(ctx) {
		return persistor.Snapshot{}, false, it.cur.Err()
	}
	var doc snapshotDocument
	if err := it.cur.Decode(&doc); err != nil {
		return persistor.Snapshot{}, false, err
	}
	return persistor.Snapshot{
		XCID:   doc.XCID,
		Hash:   doc.Hash,
		Ts:     doc.Ts,
		Events: doc.Events,
		State:  doc.State,
	}, true, nil
}

func (it *cursorIterator) Close() error {
	return it.cur.Close(context.Background())
}
