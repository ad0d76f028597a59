package outline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jward/outline/internal/metrics"
	"github.com/jward/outline/internal/oracle"
)

// VerifyReport is the oracle comparison for one analyzed unit.
type VerifyReport struct {
	Path       string
	Mismatches []Mismatch
	// Skipped is set when either side could not produce counts: the unit
	// failed analysis, or tree-sitter found syntax errors. Err says which.
	Skipped bool
	Err     error
}

// OK reports whether the unit was compared and agreed with the oracle.
func (r VerifyReport) OK() bool {
	return !r.Skipped && len(r.Mismatches) == 0
}

// Verify cross-checks every analyzed unit against an independent
// tree-sitter parse of the same source, comparing entity counts. Reports
// are sorted by path. The returned error is non-nil only when the context
// is cancelled or a unit disagrees with the oracle.
func (e *Engine) Verify(ctx context.Context) ([]VerifyReport, error) {
	e.mu.Lock()
	results := make([]*Result, 0, len(e.results))
	for _, r := range e.results {
		results = append(results, r)
	}
	e.mu.Unlock()
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	reports := make([]VerifyReport, 0, len(results))
	disagree := 0
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep := VerifyReport{Path: r.Path}
		if r.Module == nil {
			rep.Skipped, rep.Err = true, r.Err
			reports = append(reports, rep)
			continue
		}
		mm, err := oracle.Verify(ctx, r.Source, r.Module)
		switch {
		case errors.Is(err, oracle.ErrSyntax):
			rep.Skipped, rep.Err = true, err
		case err != nil:
			return reports, fmt.Errorf("verify %s: %w", r.Path, err)
		default:
			rep.Mismatches = mm
		}
		for _, m := range mm {
			metrics.OracleMismatches.WithLabelValues(m.Entity).Inc()
			e.logger.Warn("oracle mismatch", "path", r.Path, "entity", m.Entity, "oracle", m.Oracle, "model", m.Model)
		}
		if len(mm) > 0 {
			disagree++
		}
		reports = append(reports, rep)
	}

	if disagree > 0 {
		return reports, fmt.Errorf("verify: %d of %d unit(s) disagree with the oracle", disagree, len(reports))
	}
	return reports, nil
}
