// Package mongoc compiles query specifications to MongoDB filter documents
// and aggregation pipelines.
//
// The document backend has no join support; specifications carrying joins
// are rejected rather than silently narrowed. Everything else maps onto
// native operators, so filters behave the same as their SQL renderings.
package mongoc

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/queryir"
)

// Find is a compiled row-selection query for a document collection.
// Limit and Skip keep the spec's convention: queryir.Unbounded means unset.
type Find struct {
	Filter     bson.D
	Sort       bson.D
	Projection bson.D
	Limit      int
	Skip       int
}

// Empty reports whether the find can never match: a limit of zero is a
// legal request for an empty result. The driver reads SetLimit(0) as "no
// limit", so executors must check this before issuing the find.
func (f Find) Empty() bool { return f.Limit == 0 }

// operators maps the abstract comparison operators to their document
// counterparts. Like and null checks need shaping beyond a rename and are
// handled separately.
var operators = map[queryir.Op]string{
	queryir.OpEqual:          "$eq",
	queryir.OpNotEqual:       "$ne",
	queryir.OpGreaterThan:    "$gt",
	queryir.OpGreaterOrEqual: "$gte",
	queryir.OpLessThan:       "$lt",
	queryir.OpLessOrEqual:    "$lte",
	queryir.OpIn:             "$in",
}

// CompileFilter renders an AND-combined condition list as a filter document.
// Conditions on the same field merge into one operator document, so
// age__gte plus age__lt becomes {age: {$gte: .., $lt: ..}}.
func CompileFilter(conds []queryir.Condition) (bson.D, error) {
	filter := bson.D{}
	byField := map[string]int{}

	for _, cond := range conds {
		clause, err := compileCondition(cond)
		if err != nil {
			return nil, err
		}
		if i, ok := byField[cond.Field]; ok {
			merged := filter[i].Value.(bson.D)
			filter[i].Value = append(merged, clause...)
			continue
		}
		byField[cond.Field] = len(filter)
		filter = append(filter, bson.E{Key: cond.Field, Value: clause})
	}
	return filter, nil
}

func compileCondition(cond queryir.Condition) (bson.D, error) {
	if op, ok := operators[cond.Op]; ok {
		return bson.D{{Key: op, Value: cond.Value}}, nil
	}
	switch cond.Op {
	case queryir.OpLike:
		pattern, ok := cond.Value.(string)
		if !ok {
			return nil, errs.Newf(errs.CodeInvalidOperator, "field %q: like requires a string pattern", cond.Field)
		}
		return bson.D{{Key: "$regex", Value: likeToRegex(pattern)}}, nil
	case queryir.OpIsNull:
		// {$eq: null} matches both explicit nulls and missing fields,
		// mirroring how the relational backends treat absent values.
		if cond.Value == true {
			return bson.D{{Key: "$eq", Value: nil}}, nil
		}
		return bson.D{{Key: "$ne", Value: nil}}, nil
	}
	return nil, errs.Newf(errs.CodeUnsupportedOperation, "operator %q has no document rendering", cond.Op)
}

// CompileFind renders a row-selection query.
func CompileFind(spec queryir.Spec) (Find, error) {
	if len(spec.Joins) > 0 {
		return Find{}, errs.New(errs.CodeUnsupportedOperation, "joins are not supported on the document backend")
	}

	filter, err := CompileFilter(spec.Where)
	if err != nil {
		return Find{}, err
	}

	find := Find{Filter: filter, Limit: spec.Limit, Skip: spec.Offset}
	for _, key := range spec.Sort {
		dir := 1
		if key.Desc {
			dir = -1
		}
		find.Sort = append(find.Sort, bson.E{Key: key.Field, Value: dir})
	}
	for _, field := range spec.Projection {
		find.Projection = append(find.Projection, bson.E{Key: field, Value: 1})
	}
	return find, nil
}

// CompileCount renders the filter for a document count.
func CompileCount(spec queryir.Spec) (bson.D, error) {
	if len(spec.Joins) > 0 {
		return nil, errs.New(errs.CodeUnsupportedOperation, "joins are not supported on the document backend")
	}
	return CompileFilter(spec.Where)
}

// accumulators maps aggregate function names to group-stage accumulators.
// count has no direct accumulator and is expressed as {$sum: 1}.
var accumulators = map[string]string{
	"sum": "$sum",
	"avg": "$avg",
	"min": "$min",
	"max": "$max",
}

// CompileAggregate renders a grouped aggregate query as a pipeline:
// $match, $group keyed by the grouping fields, then $project to flatten
// the group key back into top-level fields, and finally sort and bounds.
func CompileAggregate(spec queryir.Spec) ([]bson.D, error) {
	if len(spec.Joins) > 0 {
		return nil, errs.New(errs.CodeUnsupportedOperation, "joins are not supported on the document backend")
	}
	if len(spec.Aggregates) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "aggregate query needs at least one aggregate function")
	}

	var pipeline []bson.D

	if len(spec.Where) > 0 {
		filter, err := CompileFilter(spec.Where)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
	}

	var groupKey any
	if len(spec.GroupBy) > 0 {
		key := bson.D{}
		for _, field := range spec.GroupBy {
			key = append(key, bson.E{Key: field, Value: "$" + field})
		}
		groupKey = key
	}

	group := bson.D{{Key: "_id", Value: groupKey}}
	for _, agg := range spec.Aggregates {
		expr, err := compileAccumulator(agg)
		if err != nil {
			return nil, err
		}
		group = append(group, bson.E{Key: agg.As, Value: expr})
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: group}})

	project := bson.D{{Key: "_id", Value: 0}}
	for _, field := range spec.GroupBy {
		project = append(project, bson.E{Key: field, Value: "$_id." + field})
	}
	for _, agg := range spec.Aggregates {
		project = append(project, bson.E{Key: agg.As, Value: 1})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: project}})

	if len(spec.Sort) > 0 {
		sortDoc := bson.D{}
		for _, key := range spec.Sort {
			dir := 1
			if key.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: key.Field, Value: dir})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDoc}})
	}
	if spec.Offset != queryir.Unbounded {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: spec.Offset}})
	}
	if spec.Limit != queryir.Unbounded {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: spec.Limit}})
	}

	return pipeline, nil
}

func compileAccumulator(agg queryir.Aggregate) (bson.D, error) {
	if agg.Fn == "count" {
		return bson.D{{Key: "$sum", Value: 1}}, nil
	}
	acc, ok := accumulators[agg.Fn]
	if !ok {
		return nil, errs.Newf(errs.CodeUnsupportedOperation, "unknown aggregate function %q", agg.Fn)
	}
	return bson.D{{Key: acc, Value: "$" + agg.Field}}, nil
}

// CompileUpdate renders the filter and $set document for a filtered update.
func CompileUpdate(conds []queryir.Condition, values map[string]any) (filter, update bson.D, err error) {
	if len(values) == 0 {
		return nil, nil, errs.New(errs.CodeInvalidArgument, "empty value map")
	}
	filter, err = CompileFilter(conds)
	if err != nil {
		return nil, nil, err
	}
	return filter, bson.D{{Key: "$set", Value: sortedDoc(values)}}, nil
}

// CompileDelete renders the filter for a filtered delete.
func CompileDelete(conds []queryir.Condition) (bson.D, error) {
	return CompileFilter(conds)
}

// CompileUpsert renders the filter and update for a native upsert. Lookup
// keys absent from the values land in $setOnInsert so a fresh document
// carries them without clobbering them on the update path.
func CompileUpsert(lookup, values map[string]any) (filter, update bson.D, err error) {
	if len(lookup) == 0 {
		return nil, nil, errs.New(errs.CodeInvalidArgument, "upsert needs a lookup filter")
	}
	if len(values) == 0 {
		return nil, nil, errs.New(errs.CodeInvalidArgument, "upsert needs values")
	}

	filter = sortedDoc(lookup)
	update = bson.D{{Key: "$set", Value: sortedDoc(values)}}

	onInsert := bson.D{}
	for _, e := range sortedDoc(lookup) {
		if _, clash := values[e.Key]; !clash {
			onInsert = append(onInsert, e)
		}
	}
	if len(onInsert) > 0 {
		update = append(update, bson.E{Key: "$setOnInsert", Value: onInsert})
	}
	return filter, update, nil
}

// sortedDoc renders a value map as a document with deterministic key order.
func sortedDoc(values map[string]any) bson.D {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: values[k]})
	}
	return doc
}
