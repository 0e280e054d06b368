package extremum

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/smartcampus/daymax/internal/model"
)

// Aggregator is satisfied by *mongo.Collection.
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// The archive collection stores dateTime as a BSON date.
const mongoTimeField = "dateTime"

type pipelineDoc struct {
	DateTime time.Time `bson:"dateTime"`
	Value    *float64  `bson:"value"`
}

func mongoMatch(span model.DaySpan, sensor model.Sensor) bson.D {
	return bson.D{{"$match", bson.D{
		{mongoTimeField, bson.D{
			{"$gt", time.Unix(span.Start, 0).UTC()},
			{"$lte", time.Unix(span.End, 0).UTC()},
		}},
		{string(sensor), bson.D{{"$ne", nil}}},
	}}}
}

// NewPipeline returns the per-day aggregation pipeline: match the day and a
// non-null value, sort descending on the value, keep one document. MongoDB's
// sort is not stable for equal keys unless a tiebreaker is given, so ties
// are backend defined.
func NewPipeline(c Aggregator) (PerSpanStrategy, error) {
	if c == nil {
		return nil, errors.New("nil collection")
	}
	return &mongoPipeline{c: c}, nil
}

type mongoPipeline struct {
	c Aggregator
}

func (m *mongoPipeline) Kind() Kind {
	return SortLimit
}

func (m *mongoPipeline) Pipeline(span model.DaySpan, sensor model.Sensor) mongo.Pipeline {
	return mongo.Pipeline{
		mongoMatch(span, sensor),
		{{"$project", bson.D{{"_id", 0}, {mongoTimeField, 1}, {"value", "$" + string(sensor)}}}},
		{{"$sort", bson.D{{"value", -1}}}},
		{{"$limit", 1}},
	}
}

func (m *mongoPipeline) FindDailyExtremum(ctx context.Context, span model.DaySpan, sensor model.Sensor) (model.Extremum, error) {
	docs, err := aggregate(ctx, m.c, m.Pipeline(span, sensor))
	if err != nil {
		return model.Empty, queryError(SortLimit, span, err)
	}
	if len(docs) == 0 {
		return model.Empty, nil
	}
	return docs[0], nil
}

// NewPipelineBuckets groups the whole range by local day with $dateTrunc
// after sorting on the value, taking $first of each group. Requires MongoDB
// 5.0 or later.
func NewPipelineBuckets(c Aggregator, loc *time.Location) (WholeRangeStrategy, error) {
	if c == nil {
		return nil, errors.New("nil collection")
	}
	if loc == nil {
		return nil, errors.New("nil location")
	}
	return &mongoBuckets{c: c, loc: loc}, nil
}

type mongoBuckets struct {
	c   Aggregator
	loc *time.Location
}

func (m *mongoBuckets) Kind() Kind {
	return TimeBucketed
}

func (m *mongoBuckets) Pipeline(spans []model.DaySpan, sensor model.Sensor) mongo.Pipeline {
	// One millisecond back so that a document at midnight falls in the day
	// that ends at that midnight.
	day := bson.D{{"$dateTrunc", bson.D{
		{"date", bson.D{{"$subtract", bson.A{"$" + mongoTimeField, 1000}}}},
		{"unit", "day"},
		{"timezone", m.loc.String()},
	}}}
	return mongo.Pipeline{
		mongoMatch(rangeOf(spans), sensor),
		{{"$sort", bson.D{{string(sensor), -1}}}},
		{{"$group", bson.D{
			{"_id", day},
			{mongoTimeField, bson.D{{"$first", "$" + mongoTimeField}}},
			{"value", bson.D{{"$first", "$" + string(sensor)}}},
		}}},
		{{"$sort", bson.D{{"_id", 1}}}},
	}
}

func (m *mongoBuckets) FindRangeExtrema(ctx context.Context, spans []model.DaySpan, sensor model.Sensor) (model.Record, error) {
	if len(spans) == 0 {
		return model.Record{}, nil
	}
	docs, err := aggregate(ctx, m.c, m.Pipeline(spans, sensor))
	if err != nil {
		return nil, queryError(TimeBucketed, model.DaySpan{}, err)
	}
	return Align(spans, docs), nil
}

func aggregate(ctx context.Context, c Aggregator, pipeline mongo.Pipeline) ([]model.Extremum, error) {
	cursor, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []model.Extremum
	for cursor.Next(ctx) {
		var doc pipelineDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decoding aggregation result")
		}
		if doc.Value != nil {
			out = append(out, model.NewExtremum(doc.DateTime.Unix(), *doc.Value))
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
