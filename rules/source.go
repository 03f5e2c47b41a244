package rules

import (
	"context"
	"slices"

	"github.com/liamcoop/prcycle/schema"
)

// RecordSource supplies the company records rules are fired against.
type RecordSource interface {
	Records(ctx context.Context) ([]schema.Record, error)
}

// StaticRecordSource serves a fixed set of records.
type StaticRecordSource struct {
	records []schema.Record
}

// NewStaticRecordSource returns a source serving records in the given order.
func NewStaticRecordSource(records []schema.Record) *StaticRecordSource {
	return &StaticRecordSource{records: slices.Clone(records)}
}

// Records returns a copy of the record slice. Field maps are shared and must not be mutated.
func (s *StaticRecordSource) Records(ctx context.Context) ([]schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.records), nil
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(ctx context.Context) ([]schema.Record, error)

func (f RecordSourceFunc) Records(ctx context.Context) ([]schema.Record, error) { return f(ctx) }
