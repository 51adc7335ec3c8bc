package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Detector runs all pattern detectors over a snapshot.
type Detector struct {
	cfg    domain.GraphConfig
	logger *slog.Logger
}

// NewDetector creates a pattern detector.
func NewDetector(cfg domain.GraphConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg, logger: logger}
}

// patternFunc detects one pattern. It must respect the limiter and
// return ErrGraphBudget when a bound is hit.
type patternFunc func(ctx context.Context, snap *Snapshot, lim *limiter) ([]domain.GraphPatternMatch, error)

// Detect runs every pattern detector. A pattern whose budget is
// exhausted contributes no matches and is reported as degraded; the
// remaining patterns still run.
func (d *Detector) Detect(ctx context.Context, snap *Snapshot) *domain.GraphResult {
	detectors := []struct {
		pattern domain.Pattern
		fn      patternFunc
	}{
		{domain.PatternKickbackRing, d.detectKickbackRings},
		{domain.PatternIdentityTheft, d.detectIdentityTheft},
		{domain.PatternPingPong, d.detectPingPong},
		{domain.PatternFamilyGanging, d.detectFamilyGanging},
		{domain.PatternEquipmentFraud, d.detectEquipmentFraud},
	}

	var matches []domain.GraphPatternMatch
	var degraded []domain.Pattern
	for _, det := range detectors {
		start := time.Now()
		lim := newLimiter(start, d.cfg.PatternBudget, d.cfg.MaxMatches)

		found, err := det.fn(ctx, snap, lim)
		if err != nil {
			if errors.Is(err, domain.ErrGraphBudget) || errors.Is(err, context.DeadlineExceeded) {
				degraded = append(degraded, det.pattern)
				d.logger.Warn("pattern detector budget exhausted",
					"pattern", string(det.pattern),
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
				continue
			}
			// Unexpected detector failure degrades the same way.
			degraded = append(degraded, det.pattern)
			d.logger.Error("pattern detector failed",
				"pattern", string(det.pattern),
				"error", err,
			)
			continue
		}

		sort.Slice(found, func(a, b int) bool {
			if found[a].Strength != found[b].Strength {
				return found[a].Strength > found[b].Strength
			}
			return found[a].Evidence < found[b].Evidence
		})
		matches = append(matches, found...)

		d.logger.Debug("pattern detector finished",
			"pattern", string(det.pattern),
			"matches", len(found),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}

	return domain.NewGraphResult(matches, degraded)
}

// limiter tracks a single pattern's traversal budget.
type limiter struct {
	deadline   time.Time
	maxMatches int
	matches    int
	checked    int
}

func newLimiter(start time.Time, budget time.Duration, maxMatches int) *limiter {
	l := &limiter{maxMatches: maxMatches}
	if budget > 0 {
		l.deadline = start.Add(budget)
	}
	return l
}

// step charges one unit of traversal work. The clock is only consulted
// periodically to keep the check cheap.
func (l *limiter) step(ctx context.Context) error {
	l.checked++
	if l.checked%256 == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.deadline.IsZero() && time.Now().After(l.deadline) {
			return fmt.Errorf("%w: pattern budget exceeded", domain.ErrGraphBudget)
		}
	}
	return nil
}

// record charges one match against the cap.
func (l *limiter) record() error {
	l.matches++
	if l.maxMatches > 0 && l.matches > l.maxMatches {
		return fmt.Errorf("%w: match cap exceeded", domain.ErrGraphBudget)
	}
	return nil
}

func clampStrength(value, baseline float64) float64 {
	if baseline <= 0 {
		return 1
	}
	s := value / baseline
	if s > 1 {
		return 1
	}
	return s
}
