package db

import (
	"context"
	"iter"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

const defaultMongoDatabase = "weewx"

// MongoDatabase keeps one document per record in the archive collection,
// with dateTime stored as a BSON date and missing readings as null.
type MongoDatabase struct {
	client     *mongo.Client
	collection *mongo.Collection
	cfg        Config
}

func NewMongoDB(ctx context.Context, cfg Config) (*MongoDatabase, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, errors.Wrap(err, "creating mongodb client")
	}
	database := cfg.Database
	if database == "" {
		database = defaultMongoDatabase
	}
	return &MongoDatabase{
		client:     client,
		collection: client.Database(database).Collection(archiveTable),
		cfg:        cfg,
	}, nil
}

func (d *MongoDatabase) Backend() Backend {
	return MongoDB
}

func (d *MongoDatabase) InitialiseSchema(ctx context.Context) error {
	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "pinging mongodb")
	}
	if err := d.collection.Drop(ctx); err != nil {
		return errors.Wrap(err, "dropping archive collection")
	}
	_, err := d.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "dateTime", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "creating dateTime index")
}

func document(o model.Observation) []interface{} {
	doc := bson.D{
		{Key: "dateTime", Value: time.Unix(o.Timestamp, 0).UTC()},
		{Key: "usUnits", Value: o.UsUnits},
		{Key: "interval", Value: o.Interval},
	}
	for _, s := range model.Sensors {
		doc = append(doc, bson.E{Key: string(s), Value: nullable(*o.Field(s))})
	}
	return []interface{}{doc}
}

func (d *MongoDatabase) Load(ctx context.Context, records iter.Seq[model.Observation]) (int, error) {
	return inBatches(records, d.cfg.batchSize(), document, func(batch []interface{}) error {
		_, err := d.collection.InsertMany(ctx, batch)
		return errors.Wrapf(err, "inserting %d documents", len(batch))
	})
}

func (d *MongoDatabase) Strategy(kind extremum.Kind) (extremum.Strategy, error) {
	switch kind {
	case extremum.SortLimit:
		return extremum.NewPipeline(d.collection)
	case extremum.TimeBucketed:
		return extremum.NewPipelineBuckets(d.collection, d.cfg.Location)
	default:
		return nil, unsupported(MongoDB, d.cfg.Schema, kind)
	}
}

func (d *MongoDatabase) Close() error {
	return errors.WithStack(d.client.Disconnect(context.Background()))
}
