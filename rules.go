package outline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jward/outline/internal/metrics"
	"github.com/jward/outline/internal/runtime"
)

// ErrNoRules is returned by Check when the Engine has no rule source.
var ErrNoRules = errors.New("no rule source configured")

func (e *Engine) runtime() *runtime.Runtime {
	opts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}
	if e.rulesFS != nil {
		opts = append(opts, runtime.WithRuntimeFS(e.rulesFS))
	}
	if e.store != nil {
		opts = append(opts, runtime.WithRuntimeStore(e.store))
	}
	return runtime.NewRuntime(e.rulesDir, opts...)
}

// Check runs every rule script against every module of the project. Rules
// run in parallel, one goroutine per rule; findings are sorted by path,
// line, then rule. A failing rule does not stop the others; every rule
// error is joined, in sorted order, into the returned error alongside the
// findings of the rest.
func (e *Engine) Check(ctx context.Context) ([]Finding, error) {
	if e.rulesDir == "" && e.rulesFS == nil {
		return nil, ErrNoRules
	}
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("rules").Observe(time.Since(start).Seconds())
	}()

	rt := e.runtime()
	scripts, err := rt.RuleScripts()
	if err != nil {
		return nil, err
	}
	mods := e.project.Modules()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		errs     []error
		findings []Finding
	)
	for _, script := range scripts {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			rule := strings.TrimSuffix(s, filepath.Ext(s))
			for _, ix := range mods {
				if ctx.Err() != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("rule %s: %w", rule, ctx.Err()))
					mu.Unlock()
					return
				}
				got, err := rt.RunRule(ctx, s, ix)
				mu.Lock()
				if err != nil {
					errs = append(errs, fmt.Errorf("rule %s on %s: %w", rule, ix.Name(), err))
				} else {
					findings = append(findings, got...)
					metrics.RuleFindings.WithLabelValues(rule).Add(float64(len(got)))
				}
				mu.Unlock()
			}
		}(script)
	}
	wg.Wait()

	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		if a.QualifiedName != b.QualifiedName {
			return a.QualifiedName < b.QualifiedName
		}
		return a.Message < b.Message
	})

	e.logger.Info("rules complete", "rules", len(scripts), "modules", len(mods), "findings", len(findings), "errors", len(errs))
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return findings, fmt.Errorf("rules had %d error(s): %w", len(errs), errors.Join(errs...))
	}
	return findings, nil
}
