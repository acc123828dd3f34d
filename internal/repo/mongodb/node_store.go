package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
)

// NodeCollection holds one document per top level key of the realtime tree.
const NodeCollection = "realtime_nodes"

var _ realtime.Channel = (*NodeStore)(nil)

type node struct {
	ID        string    `bson:"_id"`
	Value     any       `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  *node  `bson:"fullDocument"`
}

// NodeStore implements realtime.Channel over MongoDB. Nested keys map to
// dotted field paths below "value".
type NodeStore struct {
	db   *DB
	coll *mongo.Collection
	log  *logger.Logger
	now  func() time.Time
}

func NewNodeStore(db *DB) *NodeStore {
	return &NodeStore{
		db:   db,
		coll: db.Database.Collection(NodeCollection),
		log:  logger.MustNamed("realtime-mongo"),
		now:  time.Now,
	}
}

func (s *NodeStore) Get(ctx context.Context, path string) (realtime.Snapshot, error) {
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return realtime.Snapshot{}, err
	}
	v, err := s.read(ctx, parts)
	if err != nil {
		return realtime.Snapshot{}, err
	}
	return realtime.Snapshot{Path: realtime.Join(parts...), Value: v}, nil
}

func (s *NodeStore) read(ctx context.Context, parts []string) (any, error) {
	if len(parts) == 0 {
		cur, err := s.coll.Find(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("find nodes: %w", err)
		}
		var docs []node
		if err := cur.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("decode nodes: %w", err)
		}
		out := make(map[string]any, len(docs))
		for _, d := range docs {
			if v := plain(d.Value); v != nil {
				out[d.ID] = v
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	}

	var doc node
	err := s.coll.FindOne(ctx, bson.M{"_id": parts[0]}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", parts[0], err)
	}
	return realtime.Lookup(plain(doc.Value), parts[1:]), nil
}

func (s *NodeStore) Set(ctx context.Context, path string, value any) error {
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: cannot overwrite the root", realtime.ErrInvalidPath)
	}
	v, err := realtime.Normalize(value)
	if err != nil {
		return fmt.Errorf("normalize value: %w", err)
	}
	if len(parts) == 1 && v == nil {
		if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": parts[0]}); err != nil {
			return fmt.Errorf("delete node %s: %w", parts[0], err)
		}
		return nil
	}
	updates := map[string]*rootUpdate{}
	addWrite(updates, parts, v)
	return s.apply(ctx, updates)
}

func (s *NodeStore) Update(ctx context.Context, path string, fields map[string]any) error {
	base, err := realtime.SplitPath(path)
	if err != nil {
		return err
	}
	updates, err := buildUpdates(base, fields)
	if err != nil {
		return err
	}
	return s.apply(ctx, updates)
}

func (s *NodeStore) Push(_ context.Context, path string) (string, error) {
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return "", err
	}
	return realtime.Join(append(parts, realtime.NewPushKey())...), nil
}

// apply writes every root document; more than one root runs in a transaction.
func (s *NodeStore) apply(ctx context.Context, updates map[string]*rootUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	roots := make([]string, 0, len(updates))
	for r := range updates {
		roots = append(roots, r)
	}
	sort.Strings(roots)

	write := func(ctx context.Context) error {
		now := s.now()
		for _, r := range roots {
			doc := updates[r].document(now)
			_, err := s.coll.UpdateOne(ctx, bson.M{"_id": r}, doc, options.Update().SetUpsert(true))
			if err != nil {
				return fmt.Errorf("update node %s: %w", r, err)
			}
		}
		return nil
	}
	if len(roots) == 1 {
		return write(ctx)
	}

	sess, err := s.db.Client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, write(sc)
	})
	if err != nil {
		return fmt.Errorf("multi-path update: %w", err)
	}
	return nil
}

func (s *NodeStore) Subscribe(ctx context.Context, path string, onValue func(realtime.Snapshot), onError func(error)) (realtime.Unsubscribe, error) {
	parts, err := realtime.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}

	pipeline := mongo.Pipeline{}
	if len(parts) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: parts[0]}}}})
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	// open the stream before the initial read so no change falls in between
	stream, err := s.coll.Watch(subCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	initial, err := s.read(ctx, parts)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}

	var closed atomic.Bool
	p := realtime.Join(parts...)
	deliver := func(v any) {
		if closed.Load() {
			return
		}
		onValue(realtime.Snapshot{Path: p, Value: v})
	}

	go func() {
		defer func() {
			_ = stream.Close(context.Background())
		}()
		last := initial
		deliver(last)
		for stream.Next(subCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				onError(fmt.Errorf("decode change event: %w", err))
				continue
			}
			var v any
			if len(parts) == 0 {
				v, err = s.read(subCtx, parts)
				if err != nil {
					onError(err)
					continue
				}
			} else if ev.FullDocument != nil && ev.OperationType != "delete" {
				v = realtime.Lookup(plain(ev.FullDocument.Value), parts[1:])
			}
			if realtime.Equal(v, last) {
				continue
			}
			last = v
			deliver(v)
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			s.log.Warnw("change stream stopped", "path", p, "error", err)
			onError(fmt.Errorf("watch %s: %w", p, err))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			closed.Store(true)
			cancel()
		})
	}, nil
}

type rootUpdate struct {
	set   bson.M
	unset bson.M
}

func (u *rootUpdate) document(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	for k, v := range u.set {
		set[k] = v
	}
	doc := bson.M{"$set": set}
	if len(u.unset) > 0 {
		doc["$unset"] = u.unset
	}
	return doc
}

func addWrite(updates map[string]*rootUpdate, parts []string, value any) {
	u, ok := updates[parts[0]]
	if !ok {
		u = &rootUpdate{set: bson.M{}, unset: bson.M{}}
		updates[parts[0]] = u
	}
	field := "value"
	for _, p := range parts[1:] {
		field += "." + p
	}
	if value == nil {
		u.unset[field] = ""
		return
	}
	u.set[field] = value
}

// buildUpdates groups a multi-path update by root document.
func buildUpdates(base []string, fields map[string]any) (map[string]*rootUpdate, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make([][]string, 0, len(keys))
	updates := map[string]*rootUpdate{}
	for _, k := range keys {
		rel, err := realtime.SplitPath(k)
		if err != nil {
			return nil, err
		}
		parts := append(append([]string{}, base...), rel...)
		if len(rel) == 0 || len(parts) == 0 {
			return nil, fmt.Errorf("%w: empty update key", realtime.ErrInvalidPath)
		}
		for _, other := range seen {
			if realtime.Related(other, parts) {
				return nil, fmt.Errorf("%w: overlapping update paths %q and %q", realtime.ErrInvalidPath, realtime.Join(other...), realtime.Join(parts...))
			}
		}
		seen = append(seen, parts)
		v, err := realtime.Normalize(fields[k])
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", k, err)
		}
		addWrite(updates, parts, v)
	}
	return updates, nil
}

// plain converts decoded BSON into the tree form used by realtime.
func plain(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			if c := plain(e.Value); c != nil {
				m[e.Key] = c
			}
		}
		if len(m) == 0 {
			return nil
		}
		return m
	case primitive.M:
		return plain(map[string]any(t))
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, c := range t {
			if c := plain(c); c != nil {
				m[k] = c
			}
		}
		if len(m) == 0 {
			return nil
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = plain(c)
		}
		return out
	case int32:
		return int64(t)
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case primitive.DateTime:
		return int64(t)
	}
	return v
}
