package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Store implements database.DocumentStore on a mongo database.
type Store struct {
	db *mongo.Database
}

var _ database.DocumentStore = (*Store)(nil)

// filterOrEmpty matches every document when filter is nil.
func filterOrEmpty(filter map[string]interface{}) interface{} {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

// Find returns the documents of collection matching filter, sorted, paged
// and projected according to opts. Driver types are normalized to plain
// maps, slices and scalars.
func (s *Store) Find(ctx context.Context, collection string, filter map[string]interface{}, opts database.FindOptions) ([]database.Document, error) {
	find := options.Find()
	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, key := range opts.Sort {
			dir := 1
			if key.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: key.Field, Value: dir})
		}
		find.SetSort(sort)
	}
	if opts.Skip > 0 {
		find.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		find.SetLimit(opts.Limit)
	}
	if len(opts.Projection) > 0 {
		projection := bson.D{}
		for _, f := range opts.Projection {
			projection = append(projection, bson.E{Key: f, Value: 1})
		}
		find.SetProjection(projection)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filterOrEmpty(filter), find)
	if err != nil {
		return nil, TranslateError(err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, TranslateError(err)
	}
	out := make([]database.Document, len(raw))
	for i, doc := range raw {
		out[i] = normalize(doc).(map[string]interface{})
	}
	return out, nil
}

// Insert stores doc in collection.
func (s *Store) Insert(ctx context.Context, collection string, doc database.Document) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	return TranslateError(err)
}

// Replace overwrites the first document matching filter with doc and
// returns the number of matched documents.
func (s *Store) Replace(ctx context.Context, collection string, filter map[string]interface{}, doc database.Document) (int64, error) {
	res, err := s.db.Collection(collection).ReplaceOne(ctx, filterOrEmpty(filter), doc)
	if err != nil {
		return 0, TranslateError(err)
	}
	return res.MatchedCount, nil
}

// Increment adds one to field in every document matching filter and returns
// the number of matched documents.
func (s *Store) Increment(ctx context.Context, collection string, filter map[string]interface{}, field string) (int64, error) {
	res, err := s.db.Collection(collection).UpdateMany(ctx, filterOrEmpty(filter), bson.M{"$inc": bson.M{field: 1}})
	if err != nil {
		return 0, TranslateError(err)
	}
	return res.MatchedCount, nil
}

// Remove deletes every document matching filter and returns how many were
// deleted.
func (s *Store) Remove(ctx context.Context, collection string, filter map[string]interface{}) (int64, error) {
	res, err := s.db.Collection(collection).DeleteMany(ctx, filterOrEmpty(filter))
	if err != nil {
		return 0, TranslateError(err)
	}
	return res.DeletedCount, nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, collection string, filter map[string]interface{}) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, filterOrEmpty(filter))
	return n, TranslateError(err)
}

// Distinct returns the distinct values of field among the documents
// matching filter.
func (s *Store) Distinct(ctx context.Context, collection, field string, filter map[string]interface{}) ([]interface{}, error) {
	values, err := s.db.Collection(collection).Distinct(ctx, field, filterOrEmpty(filter))
	if err != nil {
		return nil, TranslateError(err)
	}
	for i, v := range values {
		values[i] = normalize(v)
	}
	return values, nil
}

// DropCollection drops collection. Dropping a missing collection is not an
// error.
func (s *Store) DropCollection(ctx context.Context, collection string) error {
	return TranslateError(s.db.Collection(collection).Drop(ctx))
}

// normalize converts driver types into the plain maps, slices and scalars the
// persistor works with.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	}
	return v
}

// Server error codes mapped onto the database sentinels.
const (
	codeWriteConflict = 112
)

// TranslateError converts driver errors into the database sentinels.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return database.ErrRecordNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", database.ErrDuplicateKey, err.Error())
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeWriteConflict {
		return fmt.Errorf("%w: %s", database.ErrDeadlock, cmdErr.Message)
	}
	return err
}
