// Package mongo provides the MongoDB storage backend. Each set is one
// document keyed by the store key, with members held in an array under
// $addToSet/$pull semantics. Batches map onto ordered bulk writes.
package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yuzhao12/datasketch/internal/storage/types"
)

var _ types.Store = (*Store)(nil)

const defaultCollection = "sketch_sets"

// Store is a MongoDB-backed ordered-key-to-set-of-values map.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection

	// ownsClient records whether Close should disconnect the client.
	ownsClient bool
}

type setDoc struct {
	ID      string             `bson:"_id"`
	Members []primitive.Binary `bson:"members"`
}

// Open connects to MongoDB, verifies the connection, and returns a store over
// the configured collection.
func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if clientOpts.ConnectTimeout == nil {
		clientOpts.SetConnectTimeout(10 * time.Second)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &types.StorageError{Op: "open", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &types.StorageError{Op: "open", Err: err}
	}

	if collection == "" {
		collection = defaultCollection
	}
	return &Store{
		client:     client,
		coll:       client.Database(database).Collection(collection),
		ownsClient: true,
	}, nil
}

// NewWithCollection wraps an existing collection. The caller keeps ownership
// of the client; Close is a no-op on it. Used by tests sharing one client.
func NewWithCollection(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) PutInSet(ctx context.Context, key string, member []byte) error {
	update := bson.M{"$addToSet": bson.M{"members": primitive.Binary{Data: member}}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Op: "putInSet", Key: key, Err: err}
	}
	return nil
}

func (s *Store) GetSet(ctx context.Context, key string) ([][]byte, error) {
	var doc setDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return [][]byte{}, nil
		}
		return nil, &types.StorageError{Op: "getSet", Key: key, Err: err}
	}

	members := make([][]byte, 0, len(doc.Members))
	for _, m := range doc.Members {
		members = append(members, m.Data)
	}
	return members, nil
}

func (s *Store) RemoveFromSet(ctx context.Context, key string, member []byte) error {
	update := bson.M{"$pull": bson.M{"members": primitive.Binary{Data: member}}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, update)
	if err != nil {
		return &types.StorageError{Op: "removeFromSet", Key: key, Err: err}
	}
	// Drop the document once its member array empties, keeping ListKeys
	// consistent with the other backends.
	_, err = s.coll.DeleteOne(ctx, bson.M{"_id": key, "members": bson.M{"$size": 0}})
	if err != nil {
		return &types.StorageError{Op: "removeFromSet", Key: key, Err: err}
	}
	return nil
}

func (s *Store) DeleteKey(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return &types.StorageError{Op: "deleteKey", Key: key, Err: err}
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"_id": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, &types.StorageError{Op: "listKeys", Key: prefix, Err: err}
	}
	defer cursor.Close(ctx)

	keys := make([]string, 0)
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, &types.StorageError{Op: "listKeys", Key: prefix, Err: err}
		}
		keys = append(keys, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, &types.StorageError{Op: "listKeys", Key: prefix, Err: err}
	}
	return keys, nil
}

func (s *Store) Batch() types.Batch {
	return &batch{store: s}
}

func (s *Store) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return &types.StorageError{Op: "close", Err: err}
	}
	return nil
}

type batch struct {
	store  *Store
	models []mongo.WriteModel
}

func (b *batch) PutInSet(key string, member []byte) {
	update := bson.M{"$addToSet": bson.M{"members": primitive.Binary{Data: member}}}
	b.models = append(b.models, mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": key}).
		SetUpdate(update).
		SetUpsert(true))
}

func (b *batch) RemoveFromSet(key string, member []byte) {
	update := bson.M{"$pull": bson.M{"members": primitive.Binary{Data: member}}}
	b.models = append(b.models, mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": key}).
		SetUpdate(update))
}

func (b *batch) DeleteKey(key string) {
	b.models = append(b.models, mongo.NewDeleteOneModel().
		SetFilter(bson.M{"_id": key}))
}

func (b *batch) Len() int { return len(b.models) }

func (b *batch) Commit(ctx context.Context) error {
	if len(b.models) == 0 {
		return nil
	}
	_, err := b.store.coll.BulkWrite(ctx, b.models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return &types.StorageError{Op: "commit", Err: err}
	}
	b.models = b.models[:0]
	return nil
}
