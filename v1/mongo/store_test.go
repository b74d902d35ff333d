package mongo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

func TestNormalize(t *testing.T) {
	id := primitive.NewObjectID()
	at := time.UnixMilli(1700000000000).UTC()

	got := normalize(bson.M{
		"_id":   id,
		"count": int32(3),
		"at":    primitive.NewDateTimeFromTime(at),
		"items": bson.A{bson.D{{Key: "name", Value: "a"}}},
	})

	assert.Equal(t, map[string]interface{}{
		"_id":   id.Hex(),
		"count": int64(3),
		"at":    at,
		"items": []interface{}{map[string]interface{}{"name": "a"}},
	}, got)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, TranslateError(nil))
	assert.ErrorIs(t, TranslateError(mongo.ErrNoDocuments), database.ErrRecordNotFound)
	assert.ErrorIs(t, TranslateError(mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}},
	}), database.ErrDuplicateKey)
	assert.ErrorIs(t, TranslateError(mongo.CommandError{Code: 112, Message: "WriteConflict"}), database.ErrDeadlock)

	other := errors.New("timeout")
	assert.Equal(t, other, TranslateError(other))
}

func TestFilterOrEmpty(t *testing.T) {
	assert.Equal(t, bson.D{}, filterOrEmpty(nil))
	filter := map[string]interface{}{"status": "open"}
	assert.Equal(t, filter, filterOrEmpty(filter))
}
