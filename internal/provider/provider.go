// Package provider fronts the external indicator and cross-sectional factor
// services. Everything here runs before a simulation starts: the engine only
// ever sees fully materialized tables and never performs I/O itself.
package provider

import (
	"context"
	"time"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/rank"
	"github.com/quantfold/ruleback/internal/series"
)

// IndicatorProvider computes indicator columns for a price table. The
// returned table must carry one column per request, named exactly per the
// resolver's naming contract.
type IndicatorProvider interface {
	Augment(ctx context.Context, tbl *series.Table, reqs []condition.IndicatorRequest) (*series.Table, error)
}

// FactorProvider serves per-date cross-sectional factor tables
// (instrument -> field -> value).
type FactorProvider interface {
	FactorTable(ctx context.Context, date time.Time) (map[string]rank.CrossRow, error)
}
