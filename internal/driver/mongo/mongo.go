// Package mongo adapts a MongoDB client to the driver interface.
//
// Documents get uuid string ids on insert so generated identifiers stay
// printable across backends. Begin/Commit/Rollback are accepted no-ops:
// the backend guarantees single-document atomicity only, which the
// capability flags report so the coordinator can tell callers.
package mongo

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/driver"
	"github.com/akron-db/akron/internal/mongoc"
	"github.com/akron-db/akron/internal/queryir"
	"github.com/akron-db/akron/internal/schema"
)

const namespaceExistsCode = 48

// Conn adapts one MongoDB database.
type Conn struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to a MongoDB deployment and binds the named database.
func Open(ctx context.Context, uri, database string) (*Conn, error) {
	if database == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "mongodb url needs a database name")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.Wrap(errs.CodeConnection, "open mongodb client", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errs.Wrap(errs.CodeConnection, "connect to mongodb deployment", err)
	}
	return &Conn{client: client, db: client.Database(database)}, nil
}

func (c *Conn) Name() string { return "mongodb" }

// Capabilities: native atomic upserts and batched inserts, but no
// multi-statement transaction guarantee.
func (c *Conn) Capabilities() driver.Capabilities {
	return driver.Capabilities{AtomicUpsert: true, BatchInsert: true}
}

func (c *Conn) coll(table string) *mongo.Collection {
	return c.db.Collection(table)
}

func (c *Conn) Query(ctx context.Context, spec queryir.Spec) ([]driver.Record, error) {
	find, err := mongoc.CompileFind(spec)
	if err != nil {
		return nil, err
	}
	if find.Empty() {
		return []driver.Record{}, nil
	}

	opts := options.Find()
	if len(find.Sort) > 0 {
		opts.SetSort(find.Sort)
	}
	if len(find.Projection) > 0 {
		opts.SetProjection(find.Projection)
	}
	if find.Limit != queryir.Unbounded {
		opts.SetLimit(int64(find.Limit))
	}
	if find.Skip != queryir.Unbounded {
		opts.SetSkip(int64(find.Skip))
	}

	cursor, err := c.coll(spec.Table).Find(ctx, find.Filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	return drain(ctx, cursor)
}

func (c *Conn) Count(ctx context.Context, spec queryir.Spec) (int64, error) {
	filter, err := mongoc.CompileCount(spec)
	if err != nil {
		return 0, err
	}
	n, err := c.coll(spec.Table).CountDocuments(ctx, filter)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// Exists counts with limit 1, so the probe stops at the first match.
func (c *Conn) Exists(ctx context.Context, spec queryir.Spec) (bool, error) {
	filter, err := mongoc.CompileCount(spec)
	if err != nil {
		return false, err
	}
	n, err := c.coll(spec.Table).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (c *Conn) Aggregate(ctx context.Context, spec queryir.Spec) ([]driver.Record, error) {
	pipeline, err := mongoc.CompileAggregate(spec)
	if err != nil {
		return nil, err
	}
	cursor, err := c.coll(spec.Table).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err)
	}
	return drain(ctx, cursor)
}

func (c *Conn) Insert(ctx context.Context, table string, values map[string]any) (any, error) {
	if len(values) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "empty value map")
	}
	doc, id := docWithID(values)
	if _, err := c.coll(table).InsertOne(ctx, doc); err != nil {
		return nil, translate(err)
	}
	return id, nil
}

func (c *Conn) InsertMany(ctx context.Context, table string, rows []map[string]any) ([]any, error) {
	if len(rows) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "bulk insert needs at least one row")
	}

	docs := make([]any, 0, len(rows))
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		doc, id := docWithID(row)
		docs = append(docs, doc)
		ids = append(ids, id)
	}
	if _, err := c.coll(table).InsertMany(ctx, docs); err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (c *Conn) Update(ctx context.Context, table string, conds []queryir.Condition, values map[string]any) (int64, error) {
	filter, update, err := mongoc.CompileUpdate(conds, values)
	if err != nil {
		return 0, err
	}
	res, err := c.coll(table).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, translate(err)
	}
	return affectedCount(res), nil
}

// affectedCount reads the matched count, not the modified count: the
// affected-record contract counts documents the filter addressed,
// including ones the update left unchanged, the same way the relational
// backends report it.
func affectedCount(res *mongo.UpdateResult) int64 {
	return res.MatchedCount
}

func (c *Conn) Delete(ctx context.Context, table string, conds []queryir.Condition) (int64, error) {
	filter, err := mongoc.CompileDelete(conds)
	if err != nil {
		return 0, err
	}
	res, err := c.coll(table).DeleteMany(ctx, filter)
	if err != nil {
		return 0, translate(err)
	}
	return res.DeletedCount, nil
}

// Upsert is a single atomic round trip here: findAndModify with upsert
// resolves the update-or-insert decision inside the engine.
func (c *Conn) Upsert(ctx context.Context, table string, lookup, values map[string]any) (driver.Record, error) {
	filter, update, err := mongoc.CompileUpsert(lookup, values)
	if err != nil {
		return nil, err
	}
	update = withInsertID(update, lookup)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc bson.D
	if err := c.coll(table).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return normalizeDoc(doc), nil
}

// withInsertID adds a generated document id to $setOnInsert, unless the
// lookup already pins one, so upsert-created documents carry the same uuid
// ids as inserted ones.
func withInsertID(update bson.D, lookup map[string]any) bson.D {
	if _, ok := lookup["_id"]; ok {
		return update
	}
	for i, e := range update {
		if e.Key == "$setOnInsert" {
			update[i].Value = append(e.Value.(bson.D), bson.E{Key: "_id", Value: uuid.NewString()})
			return update
		}
	}
	return append(update, bson.E{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: uuid.NewString()}}})
}

// Begin is accepted but provides no multi-statement guarantee.
func (c *Conn) Begin(context.Context) error    { return nil }
func (c *Conn) Commit(context.Context) error   { return nil }
func (c *Conn) Rollback(context.Context) error { return nil }

// CreateTable creates the collection; the column map carries no schema
// here since documents are schemaless. An existing collection is fine.
func (c *Conn) CreateTable(ctx context.Context, table string, _ map[string]string) error {
	err := c.db.CreateCollection(ctx, table)
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == namespaceExistsCode {
		return nil
	}
	return translate(err)
}

func (c *Conn) DropTable(ctx context.Context, table string) error {
	if err := c.coll(table).Drop(ctx); err != nil {
		return translate(err)
	}
	return nil
}

func (c *Conn) CreateIndex(ctx context.Context, table string, fields []string, unique bool) error {
	if len(fields) == 0 {
		return errs.New(errs.CodeInvalidArgument, "create index needs at least one field")
	}
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(unique).SetName(schema.IndexName(table, fields)),
	}
	if _, err := c.coll(table).Indexes().CreateOne(ctx, model); err != nil {
		return translate(err)
	}
	return nil
}

func (c *Conn) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return errs.Wrap(errs.CodeConnection, "disconnect mongodb client", err)
	}
	return nil
}

// docWithID renders a value map as a document carrying a generated uuid id
// (deterministic key order), unless the caller supplied one.
func docWithID(values map[string]any) (bson.D, any) {
	id, ok := values["_id"]
	if !ok {
		id = uuid.NewString()
	}

	doc := bson.D{{Key: "_id", Value: id}}
	for _, field := range sortedFields(values) {
		if field == "_id" {
			continue
		}
		doc = append(doc, bson.E{Key: field, Value: values[field]})
	}
	return doc, id
}

func sortedFields(m map[string]any) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func drain(ctx context.Context, cursor *mongo.Cursor) ([]driver.Record, error) {
	defer cursor.Close(ctx)

	var records []driver.Record
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, translate(err)
		}
		records = append(records, normalizeDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, translate(err)
	}
	return records, nil
}

// normalizeDoc flattens bson values onto the shared record kinds.
func normalizeDoc(doc bson.D) driver.Record {
	rec := make(driver.Record, len(doc))
	for _, e := range doc {
		rec[e.Key] = normalizeBSON(e.Value)
	}
	return rec
}

func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.Null:
		return nil
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	default:
		return driver.NormalizeValue(v)
	}
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return errs.Wrap(errs.CodeConstraintViolation, "mongodb duplicate key", err)
	}
	return errs.Wrap(errs.CodeInternal, "mongodb operation failed", err)
}

var _ driver.Adapter = (*Conn)(nil)
