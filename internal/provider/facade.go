package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/rank"
	"github.com/quantfold/ruleback/internal/series"
	"github.com/quantfold/ruleback/internal/strategy"
)

// Config tunes the facade.
type Config struct {
	// CacheTTL bounds how long materialized tables stay in redis.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// BreakerMaxFailures consecutive provider failures open the breaker.
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// DefaultConfig mirrors the cache and breaker settings used in production.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           24 * time.Hour,
		BreakerMaxFailures: 5,
		BreakerCooldown:    30 * time.Second,
	}
}

// Facade wraps the external providers with a circuit breaker and an optional
// redis cache, and materializes everything a run needs up front.
type Facade struct {
	cfg        Config
	indicators IndicatorProvider
	factors    FactorProvider
	cache      redis.Cmdable
	breaker    *gobreaker.CircuitBreaker
	eval       *condition.Evaluator
	log        zerolog.Logger
}

// NewFacade builds a facade. cache may be nil to disable caching; factors
// may be nil when no strategy uses cross-sectional ranking.
func NewFacade(cfg Config, indicators IndicatorProvider, factors FactorProvider, cache redis.Cmdable, eval *condition.Evaluator, logger zerolog.Logger) *Facade {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "strategy-providers",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	})
	if eval == nil {
		eval = condition.NewEvaluator(nil)
	}
	return &Facade{
		cfg:        cfg,
		indicators: indicators,
		factors:    factors,
		cache:      cache,
		breaker:    breaker,
		eval:       eval,
		log:        logger,
	}
}

// Materialize augments every table with the indicator columns the strategy's
// conditions need. Results are cached per (symbol, request set).
func (f *Facade) Materialize(ctx context.Context, def *strategy.Definition, data map[string]*series.Table) (map[string]*series.Table, error) {
	reqs := f.eval.CollectIndicators(def.AllConditions())
	if len(reqs) == 0 {
		return data, nil
	}
	key := condition.RequestKey(reqs)

	out := make(map[string]*series.Table, len(data))
	for sym, tbl := range data {
		augmented, err := f.augmentOne(ctx, sym, key, tbl, reqs)
		if err != nil {
			return nil, fmt.Errorf("augment %s: %w", sym, err)
		}
		out[sym] = augmented
	}
	return out, nil
}

func (f *Facade) augmentOne(ctx context.Context, sym, reqKey string, tbl *series.Table, reqs []condition.IndicatorRequest) (*series.Table, error) {
	cacheKey := fmt.Sprintf("ruleback:series:%s:%s", sym, reqKey)
	if cached, ok := f.cacheGet(ctx, cacheKey); ok {
		return cached, nil
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.indicators.Augment(ctx, tbl, reqs)
	})
	if err != nil {
		return nil, err
	}
	augmented := result.(*series.Table)

	f.cachePut(ctx, cacheKey, augmented)
	return augmented, nil
}

// Factors fetches the cross-sectional tables for a set of dates, keyed by
// series.DayKey, for strategies with cross-source ranking factors.
func (f *Facade) Factors(ctx context.Context, dates []time.Time) (map[int64]map[string]rank.CrossRow, error) {
	if f.factors == nil {
		return nil, nil
	}
	out := make(map[int64]map[string]rank.CrossRow, len(dates))
	for _, date := range dates {
		result, err := f.breaker.Execute(func() (interface{}, error) {
			return f.factors.FactorTable(ctx, date)
		})
		if err != nil {
			return nil, fmt.Errorf("factor table %s: %w", date.Format("2006-01-02"), err)
		}
		out[series.DayKey(date)] = result.(map[string]rank.CrossRow)
	}
	return out, nil
}

func (f *Facade) cacheGet(ctx context.Context, key string) (*series.Table, bool) {
	if f.cache == nil {
		return nil, false
	}
	raw, err := f.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var data series.TableData
	if err := json.Unmarshal(raw, &data); err != nil {
		f.log.Warn().Str("key", key).Err(err).Msg("dropping corrupt cached series")
		return nil, false
	}
	tbl, err := series.FromData(data)
	if err != nil {
		return nil, false
	}
	return tbl, true
}

func (f *Facade) cachePut(ctx context.Context, key string, tbl *series.Table) {
	if f.cache == nil {
		return
	}
	// NaN warmup rows make a table unencodable as JSON; such tables are
	// simply not cached.
	raw, err := json.Marshal(tbl.Data())
	if err != nil {
		f.log.Debug().Str("key", key).Err(err).Msg("series not cacheable")
		return
	}
	if err := f.cache.Set(ctx, key, raw, f.cfg.CacheTTL).Err(); err != nil {
		f.log.Warn().Str("key", key).Err(err).Msg("series cache write failed")
	}
}
