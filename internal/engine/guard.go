package engine

import "time"

// explosionGuard watches daily buy-candidate counts. A degenerate rule set
// that matches half the universe every day would otherwise burn a full
// simulation before anyone notices; the guard aborts it within the warmup
// window, and the periodic re-check catches strategies that degenerate only
// after market conditions shift mid-run.
type explosionGuard struct {
	cfg    GuardConfig
	counts []int
	dates  []time.Time
	total  int
}

func newExplosionGuard(cfg GuardConfig) *explosionGuard {
	return &explosionGuard{cfg: cfg}
}

// observe records day dayIdx's candidate count and returns a non-nil error
// when the strategy has exploded.
func (g *explosionGuard) observe(dayIdx int, date time.Time, candidates int) error {
	g.counts = append(g.counts, candidates)
	g.dates = append(g.dates, date)
	g.total += candidates

	if g.cfg.WarmupDays > 0 && dayIdx < g.cfg.WarmupDays {
		avg := float64(g.total) / float64(dayIdx+1)
		if avg > g.cfg.WarmupAvgMax {
			return &ExplosionError{
				FromDate: g.dates[0],
				ToDate:   date,
				Avg:      avg,
				Limit:    g.cfg.WarmupAvgMax,
			}
		}
	}

	if g.cfg.RecheckEvery > 0 && dayIdx >= g.cfg.WarmupDays && (dayIdx+1)%g.cfg.RecheckEvery == 0 {
		from := len(g.counts) - g.cfg.RecheckEvery
		if from < 0 {
			from = 0
		}
		sum := 0
		for _, n := range g.counts[from:] {
			sum += n
		}
		avg := float64(sum) / float64(len(g.counts)-from)
		if avg > g.cfg.RecheckAvgMax {
			return &ExplosionError{
				FromDate: g.dates[from],
				ToDate:   date,
				Avg:      avg,
				Limit:    g.cfg.RecheckAvgMax,
			}
		}
	}
	return nil
}
