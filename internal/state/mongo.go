package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "db_sync"

// MongoStore keeps engine state in a MongoDB database, one collection per
// record kind. Multi-record operations are single UpdateMany/DeleteMany calls
// and do not need a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect state mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) checkpoints() *mongo.Collection { return s.db.Collection("etl_checkpoints") }
func (s *MongoStore) watermarks() *mongo.Collection  { return s.db.Collection("etl_watermarks") }
func (s *MongoStore) tombstones() *mongo.Collection  { return s.db.Collection("etl_deleted_records") }
func (s *MongoStore) runs() *mongo.Collection        { return s.db.Collection("etl_run_history") }

func (s *MongoStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping state mongo: %w", err)
	}

	unique := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
	}

	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.checkpoints(), unique("source_table", "dest_table", "mode")},
		{s.watermarks(), unique("source_table", "dest_table", "key_column")},
		{s.tombstones(), unique("source_table", "dest_table", "record_id")},
		{s.runs(), mongo.IndexModel{Keys: bson.D{{Key: "started_at", Value: -1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("init state indexes (%s): %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func pairFilter(pair Pair) bson.M {
	return bson.M{"source_table": pair.Source, "dest_table": pair.Dest}
}

func (s *MongoStore) GetCheckpoint(ctx context.Context, pair Pair, mode Mode) (*Checkpoint, error) {
	filter := pairFilter(pair)
	filter["mode"] = mode
	filter["status"] = StatusInProgress

	var cp Checkpoint
	err := s.checkpoints().FindOne(ctx, filter).Decode(&cp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", pair, err)
	}
	return &cp, nil
}

func (s *MongoStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	cp.Status = StatusInProgress
	cp.UpdatedAt = time.Now().UTC()

	filter := pairFilter(cp.Pair)
	filter["mode"] = cp.Mode
	_, err := s.checkpoints().UpdateOne(ctx, filter, bson.M{"$set": cp}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Pair, err)
	}
	return nil
}

func (s *MongoStore) CompleteCheckpoint(ctx context.Context, pair Pair, mode Mode) error {
	filter := pairFilter(pair)
	filter["mode"] = mode
	update := bson.M{"$set": bson.M{"status": StatusCompleted, "updated_at": time.Now().UTC()}}
	if _, err := s.checkpoints().UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("complete checkpoint %s: %w", pair, err)
	}
	return nil
}

func (s *MongoStore) ClearCheckpoint(ctx context.Context, pair Pair, mode Mode) error {
	filter := pairFilter(pair)
	filter["mode"] = mode
	if _, err := s.checkpoints().DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", pair, err)
	}
	return nil
}

func (s *MongoStore) ClearCheckpoints(ctx context.Context, pair Pair) error {
	if _, err := s.checkpoints().DeleteMany(ctx, pairFilter(pair)); err != nil {
		return fmt.Errorf("clear checkpoints %s: %w", pair, err)
	}
	return nil
}

func (s *MongoStore) ClearAllCheckpoints(ctx context.Context) error {
	if _, err := s.checkpoints().DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear all checkpoints: %w", err)
	}
	return nil
}

func (s *MongoStore) HasCheckpoint(ctx context.Context, pair Pair) (bool, error) {
	n, err := s.checkpoints().CountDocuments(ctx, pairFilter(pair))
	if err != nil {
		return false, fmt.Errorf("has checkpoint %s: %w", pair, err)
	}
	return n > 0, nil
}

func (s *MongoStore) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "source_table", Value: 1}, {Key: "dest_table", Value: 1}, {Key: "mode", Value: 1}})
	cur, err := s.checkpoints().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var out []Checkpoint
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

func (s *MongoStore) GetLastProcessedValue(ctx context.Context, pair Pair, keyColumn string) (*Watermark, error) {
	filter := pairFilter(pair)
	filter["key_column"] = keyColumn

	var wm Watermark
	err := s.watermarks().FindOne(ctx, filter).Decode(&wm)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark %s: %w", pair, err)
	}
	return &wm, nil
}

func (s *MongoStore) UpdateLastProcessedValue(ctx context.Context, wm *Watermark) error {
	wm.UpdatedAt = time.Now().UTC()
	filter := pairFilter(wm.Pair)
	filter["key_column"] = wm.KeyColumn
	if _, err := s.watermarks().UpdateOne(ctx, filter, bson.M{"$set": wm}, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("update watermark %s: %w", wm.Pair, err)
	}
	return nil
}

func (s *MongoStore) ClearWatermarks(ctx context.Context, pair Pair) error {
	if _, err := s.watermarks().DeleteMany(ctx, pairFilter(pair)); err != nil {
		return fmt.Errorf("clear watermarks %s: %w", pair, err)
	}
	return nil
}

func (s *MongoStore) ListWatermarks(ctx context.Context) ([]Watermark, error) {
	opts := options.Find().SetSort(bson.D{{Key: "source_table", Value: 1}, {Key: "dest_table", Value: 1}})
	cur, err := s.watermarks().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	var out []Watermark
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	return out, nil
}

func (s *MongoStore) AddDeletedRecord(ctx context.Context, pair Pair, recordID string) error {
	filter := pairFilter(pair)
	filter["record_id"] = recordID
	update := bson.M{"$setOnInsert": bson.M{"processed": false, "created_at": time.Now().UTC()}}
	if _, err := s.tombstones().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("add tombstone %s/%s: %w", pair, recordID, err)
	}
	return nil
}

func (s *MongoStore) MarkDeletedRecordsProcessed(ctx context.Context, pair Pair, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	filter := pairFilter(pair)
	filter["record_id"] = bson.M{"$in": recordIDs}
	update := bson.M{"$set": bson.M{"processed": true, "processed_at": time.Now().UTC()}}
	if _, err := s.tombstones().UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("mark tombstones %s: %w", pair, err)
	}
	return nil
}

func (s *MongoStore) PendingDeletedRecords(ctx context.Context, pair Pair) ([]string, error) {
	filter := pairFilter(pair)
	filter["processed"] = false
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "record_id", Value: 1}})
	cur, err := s.tombstones().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("pending tombstones %s: %w", pair, err)
	}
	var docs []Tombstone
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("pending tombstones %s: %w", pair, err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.RecordID
	}
	return ids, nil
}

func (s *MongoStore) ClearDeletedRecords(ctx context.Context, pair Pair) error {
	if _, err := s.tombstones().DeleteMany(ctx, pairFilter(pair)); err != nil {
		return fmt.Errorf("clear tombstones %s: %w", pair, err)
	}
	return nil
}

// ResetPair clears the three collections in turn. A failure part way leaves
// the remaining collections untouched; rerunning the reset finishes the job.
func (s *MongoStore) ResetPair(ctx context.Context, pair Pair) error {
	if err := s.ClearCheckpoints(ctx, pair); err != nil {
		return err
	}
	if err := s.ClearWatermarks(ctx, pair); err != nil {
		return err
	}
	return s.ClearDeletedRecords(ctx, pair)
}

func (s *MongoStore) RecordRun(ctx context.Context, run *RunResult) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if _, err := s.runs().InsertOne(ctx, run); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *MongoStore) ListRuns(ctx context.Context, limit int) ([]RunResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.runs().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var out []RunResult
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
