package outline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jward/outline/internal/metrics"
	"github.com/jward/outline/internal/store"
)

// workItem holds everything a parallel analysis worker needs.
type workItem struct {
	idx   int
	path  string
	label string
	src   []byte

	// unchanged means the Store already holds this content under the
	// current settings; the unit is analyzed but not re-committed.
	unchanged bool
	// staleID is the Store file ID of a previous version, or 0.
	staleID int64
}

// AnalyzeFiles analyzes files using a three-phase parallel pipeline:
//
//	Phase A (serial):   Read sources, hash check against the Store.
//	Phase B (parallel): Tokenize, parse and extract via a worker pool.
//	Phase C (serial):   Commit to SQLite and merge into the project.
//
// Units share no mutable state, so one unit's fatal error never affects
// another; it is reported in that unit's Result. The returned error
// aggregates read, commit and merge failures.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) ([]*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	}()

	var errs []error
	settingsChanged := e.SettingsChanged()

	// ---- Phase A: Serial preparation ----
	var items []workItem
	for _, path := range paths {
		item, err := e.prepareFile(path, settingsChanged)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		item.idx = len(items)
		items = append(items, item)
	}

	results := make([]*Result, len(items))
	if len(items) > 0 {
		// ---- Phase B: Parallel analysis ----
		numWorkers := min(e.workers, len(items))
		if numWorkers < 1 {
			numWorkers = 1
		}

		workCh := make(chan workItem, len(items))
		for _, item := range items {
			workCh <- item
		}
		close(workCh)

		var wg sync.WaitGroup
		for range numWorkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for item := range workCh {
					if ctx.Err() != nil {
						results[item.idx] = &Result{Path: item.label, Source: item.src, Err: ctx.Err()}
						continue
					}
					t := time.Now()
					results[item.idx] = e.analyzer.analyze(item.label, item.src)
					metrics.AnalysisDuration.WithLabelValues("analyze").Observe(time.Since(t).Seconds())
				}
			}()
		}
		wg.Wait()

		// ---- Phase C: Serial commit and merge, in input order ----
		for _, item := range items {
			r := results[item.idx]
			if r.Module == nil && r.Fatal() == nil {
				errs = append(errs, fmt.Errorf("analyze %s: %w", item.path, r.Err))
				continue
			}
			e.record(r, item.unchanged)
			if err := e.commit(item, r); err != nil {
				errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
				continue
			}
			if err := e.merge(r); err != nil {
				errs = append(errs, err)
			}
		}
		e.storeSettingsHash()
	}

	e.logger.Info("analysis complete", "files", len(items), "errors", len(errs), "elapsed", time.Since(start))
	if len(errs) > 0 {
		return results, fmt.Errorf("parallel analysis had %d error(s): %w", len(errs), errors.Join(errs...))
	}
	return results, nil
}

// prepareFile does Phase A work for a single file: read and hash check.
func (e *Engine) prepareFile(path string, settingsChanged bool) (workItem, error) {
	src, err := readSource(path)
	if err != nil {
		return workItem{}, err
	}
	item := workItem{path: path, label: e.label(path), src: src}
	if e.store == nil {
		return item, nil
	}

	existing, err := e.store.FileByPath(item.label)
	if err != nil {
		return workItem{}, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil {
		item.staleID = existing.ID
		item.unchanged = !settingsChanged && existing.Hash == store.ContentHash(src)
	}
	return item, nil
}

// commit persists one analyzed unit. A failed unit removes the rows of
// its previous version.
func (e *Engine) commit(item workItem, r *Result) error {
	if e.store == nil || item.unchanged {
		return nil
	}
	if r.Module == nil {
		if item.staleID == 0 {
			return nil
		}
		return e.store.DeleteFileData(item.staleID)
	}
	batch := store.NewBatch(r.Module)
	batch.File.Hash = r.Hash
	_, err := e.store.CommitBatch(batch)
	return err
}
