package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfold/ruleback/internal/rank"
)

// Remote fetches cross-sectional factor tables from an HTTP factor service.
// Multiple base URLs act as a fallback chain: each request walks the list in
// order and returns the first success.
type Remote struct {
	bases  []string
	client *http.Client
	log    zerolog.Logger
}

// NewRemote builds a remote factor source over one or more base URLs.
func NewRemote(bases []string, logger zerolog.Logger) *Remote {
	return &Remote{
		bases:  bases,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
}

// FactorTable fetches the factor table for one date, symbol keyed.
func (r *Remote) FactorTable(ctx context.Context, date time.Time) (map[string]rank.CrossRow, error) {
	day := date.UTC().Format("2006-01-02")

	var lastErr error
	for i, base := range r.bases {
		table, err := r.fetchOne(ctx, base, day)
		if err == nil {
			if i > 0 {
				r.log.Debug().Str("base", base).Str("date", day).Msg("factor fetch served by fallback")
			}
			return table, nil
		}
		lastErr = err
		r.log.Warn().Str("base", base).Str("date", day).Err(err).Msg("factor fetch failed, trying next")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all %d factor sources failed for %s: %w", len(r.bases), day, lastErr)
}

func (r *Remote) fetchOne(ctx context.Context, base, day string) (map[string]rank.CrossRow, error) {
	url := fmt.Sprintf("%s/factors?date=%s", base, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("factor service returned %d", resp.StatusCode)
	}
	var table map[string]rank.CrossRow
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode factor table: %w", err)
	}
	return table, nil
}
