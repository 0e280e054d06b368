package db

import (
	"context"
	"iter"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

// InfluxDatabase writes one wxpacket point per record, tagged with the
// instrument, with a field per present reading.
type InfluxDatabase struct {
	client influxdb2.Client
	cfg    Config
}

func NewInfluxDB(cfg Config) (*InfluxDatabase, error) {
	if cfg.DSN == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influxdb needs a server URL, an organisation and a bucket")
	}
	client := influxdb2.NewClientWithOptions(cfg.DSN, cfg.Token, influxdb2.DefaultOptions())
	return &InfluxDatabase{client: client, cfg: cfg}, nil
}

func (d *InfluxDatabase) Backend() Backend {
	return InfluxDB
}

// InitialiseSchema recreates the bucket.
func (d *InfluxDatabase) InitialiseSchema(ctx context.Context) error {
	ok, err := d.client.Ping(ctx)
	if err != nil {
		return errors.Wrapf(err, "pinging %s", d.cfg.DSN)
	}
	if !ok {
		return errors.Errorf("%s is not ready", d.cfg.DSN)
	}
	buckets := d.client.BucketsAPI()
	if existing, err := buckets.FindBucketByName(ctx, d.cfg.Bucket); err == nil {
		if err := buckets.DeleteBucket(ctx, existing); err != nil {
			return errors.Wrapf(err, "deleting bucket %s", d.cfg.Bucket)
		}
	}
	org, err := d.client.OrganizationsAPI().FindOrganizationByName(ctx, d.cfg.Org)
	if err != nil {
		return errors.Wrapf(err, "finding organisation %s", d.cfg.Org)
	}
	if _, err := buckets.CreateBucketWithName(ctx, org, d.cfg.Bucket); err != nil {
		return errors.Wrapf(err, "creating bucket %s", d.cfg.Bucket)
	}
	return nil
}

func point(o model.Observation) []*write.Point {
	p := influxdb2.NewPointWithMeasurement(influxMeasure).
		AddTag("instrumentID", "1").
		AddField("usUnits", o.UsUnits).
		AddField("interval", o.Interval).
		SetTime(time.Unix(o.Timestamp, 0))
	for _, s := range model.Sensors {
		if v, ok := o.Value(s); ok {
			p.AddField(string(s), v)
		}
	}
	return []*write.Point{p}
}

func (d *InfluxDatabase) Load(ctx context.Context, records iter.Seq[model.Observation]) (int, error) {
	writeAPI := d.client.WriteAPIBlocking(d.cfg.Org, d.cfg.Bucket)
	return inBatches(records, d.cfg.batchSize(), point, func(batch []*write.Point) error {
		return errors.Wrapf(writeAPI.WritePoint(ctx, batch...), "writing %d points", len(batch))
	})
}

func (d *InfluxDatabase) Strategy(kind extremum.Kind) (extremum.Strategy, error) {
	source := extremum.FluxSource{Bucket: d.cfg.Bucket, Measurement: influxMeasure}
	queryAPI := d.client.QueryAPI(d.cfg.Org)
	switch kind {
	case extremum.SortLimit:
		return extremum.NewFluxSortLimit(queryAPI, source)
	case extremum.TimeBucketed:
		return extremum.NewFluxWindows(queryAPI, source, d.cfg.Location)
	default:
		return nil, unsupported(InfluxDB, d.cfg.Schema, kind)
	}
}

func (d *InfluxDatabase) Close() error {
	d.client.Close()
	return nil
}
