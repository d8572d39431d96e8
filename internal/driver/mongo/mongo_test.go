package mongo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/akron-db/akron/internal/driver"
)

func TestDocWithID_GeneratesID(t *testing.T) {
	doc, id := docWithID(map[string]any{"name": "Ada", "age": 36})

	s, ok := id.(string)
	require.True(t, ok)
	_, err := uuid.Parse(s)
	require.NoError(t, err, "generated id must be a uuid")

	assert.Equal(t, bson.D{{Key: "_id", Value: s}, {Key: "age", Value: 36}, {Key: "name", Value: "Ada"}}, doc)
}

func TestDocWithID_KeepsCallerID(t *testing.T) {
	doc, id := docWithID(map[string]any{"_id": "fixed", "name": "Ada"})
	assert.Equal(t, "fixed", id)
	assert.Equal(t, bson.D{{Key: "_id", Value: "fixed"}, {Key: "name", Value: "Ada"}}, doc)
}

func TestWithInsertID(t *testing.T) {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "name", Value: "Ada"}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "email", Value: "a@b.c"}}},
	}
	got := withInsertID(update, map[string]any{"email": "a@b.c"})

	onInsert := got[1].Value.(bson.D)
	require.Len(t, onInsert, 2)
	assert.Equal(t, "_id", onInsert[1].Key)

	// A lookup pinning _id stays untouched.
	update = bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: "Ada"}}}}
	got = withInsertID(update, map[string]any{"_id": "fixed"})
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: "Ada"}}}}, got)
}

func TestAffectedCount_CountsMatchedNotModified(t *testing.T) {
	// A no-op update matches a document without modifying it; the count
	// reported upstream must still include it.
	res := &mongo.UpdateResult{MatchedCount: 3, ModifiedCount: 1}
	assert.Equal(t, int64(3), affectedCount(res))
}

func TestNormalizeDoc(t *testing.T) {
	oid := primitive.NewObjectID()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.D{
		{Key: "_id", Value: "u-1"},
		{Key: "ref", Value: oid},
		{Key: "created_at", Value: primitive.NewDateTimeFromTime(at)},
		{Key: "deleted_at", Value: primitive.Null{}},
		{Key: "score", Value: int32(7)},
		{Key: "tags", Value: bson.A{"a", int32(2)}},
		{Key: "meta", Value: bson.D{{Key: "depth", Value: int32(1)}}},
	}

	rec := normalizeDoc(doc)

	created, ok := rec["created_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, created.Equal(at), "created_at = %v, want instant %v", created, at)
	delete(rec, "created_at")

	assert.Equal(t, driver.Record{
		"_id":        "u-1",
		"ref":        oid.Hex(),
		"deleted_at": nil,
		"score":      int64(7),
		"tags":       []any{"a", int64(2)},
		"meta":       map[string]any{"depth": int64(1)},
	}, rec)
}
