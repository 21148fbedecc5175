// Package cleanup purges media belonging to closed rescue cases.  Cases
// themselves are never deleted; only their object-store media and the
// references to it are removed once a case reaches a terminal state.
package cleanup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CaseMedia is the slice of the case store the cleaner needs.
// Implemented by repository.CaseRepo.
type CaseMedia interface {
	MediaRefs(ctx context.Context, caseID string) (photoKey, cropKey *string, err error)
	ClearMediaRefs(ctx context.Context, caseID string) error
	SweepCandidates(ctx context.Context, closedBefore time.Time, limit int) ([]string, error)
}

// ObjectDeleter deletes one stored object.  Implemented by
// storage.S3Store.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Report summarizes one sweep run for observability.
type Report struct {
	Cleaned int // cases whose references were cleared
	Failed  int // cases where clearing itself failed
}

// Cleaner runs the two media-purge paths: immediate cleanup right after
// a terminal transition, and the periodic sweep that backstops cases
// whose immediate cleanup never ran (crash between commit and cleanup).
type Cleaner struct {
	cases     CaseMedia
	store     ObjectDeleter
	retention time.Duration
	batch     int
	log       *zap.Logger
}

// NewCleaner wires a Cleaner.  retention is how long after closure media
// is kept; batch bounds one sweep run.
func NewCleaner(cases CaseMedia, store ObjectDeleter, retention time.Duration, batch int, log *zap.Logger) *Cleaner {
	if cases == nil || store == nil {
		panic("nil dependency passed to NewCleaner")
	}
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{cases: cases, store: store, retention: retention, batch: batch, log: log}
}

// CleanupCase purges the media of a single case.  Object deletes run in
// parallel and are best-effort; reference clearing always proceeds so a
// closed case never serves media handles.  Delete failures are logged
// for out-of-band reconciliation because once the reference is cleared
// the sweep will not see this case again.
func (cl *Cleaner) CleanupCase(ctx context.Context, caseID string) error {
	photoKey, cropKey, err := cl.cases.MediaRefs(ctx, caseID)
	if err != nil {
		return err
	}

	var keys []string
	if photoKey != nil {
		keys = append(keys, *photoKey)
	}
	if cropKey != nil {
		keys = append(keys, *cropKey)
	}
	if len(keys) > 0 {
		var wg sync.WaitGroup
		for _, key := range keys {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				if err := cl.store.Delete(ctx, k); err != nil {
					cl.log.Error("cleanup: object delete failed, reference will be cleared anyway",
						zap.String("case_id", caseID), zap.String("object_key", k), zap.Error(err))
				}
			}(key)
		}
		wg.Wait()
	}

	return cl.cases.ClearMediaRefs(ctx, caseID)
}

// Sweep purges media for a bounded batch of cases closed longer than the
// retention window that still hold references.  Per-case errors are
// counted and do not abort the batch.
func (cl *Cleaner) Sweep(ctx context.Context) (Report, error) {
	cutoff := time.Now().UTC().Add(-cl.retention)
	ids, err := cl.cases.SweepCandidates(ctx, cutoff, cl.batch)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, id := range ids {
		if err := cl.CleanupCase(ctx, id); err != nil {
			rep.Failed++
			cl.log.Error("cleanup: sweep case failed", zap.String("case_id", id), zap.Error(err))
			continue
		}
		rep.Cleaned++
	}
	return rep, nil
}

// Run executes Sweep on a fixed interval until the context is cancelled.
// Each run gets its own timeout so one stuck sweep cannot wedge the loop.
func (cl *Cleaner) Run(ctx context.Context, interval time.Duration) {
	cl.log.Info("cleanup: sweep scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cl.log.Info("cleanup: sweep scheduler stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			rep, err := cl.Sweep(runCtx)
			cancel()
			if err != nil {
				cl.log.Error("cleanup: sweep run failed", zap.Error(err))
				continue
			}
			cl.log.Info("cleanup: sweep run finished",
				zap.Int("cleaned", rep.Cleaned), zap.Int("failed", rep.Failed))
		}
	}
}
