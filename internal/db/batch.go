package db

import (
	"iter"

	log "github.com/sirupsen/logrus"

	"github.com/smartcampus/daymax/internal/model"
)

// inBatches converts records into items and hands them to flush in groups
// of at least size items. It returns the number of records consumed by
// successful flushes.
func inBatches[T any](records iter.Seq[model.Observation], size int, convert func(model.Observation) []T, flush func([]T) error) (int, error) {
	batch := make([]T, 0, size)
	n, pending := 0, 0
	for o := range records {
		batch = append(batch, convert(o)...)
		pending++
		if len(batch) >= size {
			if err := flush(batch); err != nil {
				return n, err
			}
			n += pending
			pending = 0
			batch = batch[:0]
			log.Debugf("Flushed %d records, last at %d", n, o.Timestamp)
		}
	}
	if len(batch) > 0 {
		if err := flush(batch); err != nil {
			return n, err
		}
		n += pending
	}
	return n, nil
}
