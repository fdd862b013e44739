// Package backfill drives batched, idempotent recomputation of composite
// scores across the eligible item population.
//
// The orchestrator keeps an explicit work queue with a small per-entry state
// machine (PENDING -> IN_PROGRESS -> DONE|FAILED) instead of looping over
// all rows. That makes runs resumable after interruption and isolates one
// item's failure from the rest of the batch. Recomputation itself is a pure
// function of current aggregates, so re-running on unchanged items is
// harmless.
package backfill

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
	"github.com/patinalabs/patina/pkg/logger"
	"github.com/patinalabs/patina/pkg/metrics"
)

// Default orchestrator configuration constants.
const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 3
	defaultRunWorkers  = 4
)

// Status is the lifecycle state of one queue entry.
type Status string

// Queue entry states.
const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

// Entry is one item of backfill bookkeeping. Entries are disposable: losing
// them is recoverable by re-scanning eligible items.
type Entry struct {
	ItemID    types.ItemID `json:"item_id"`
	Status    Status       `json:"status"`
	Priority  int          `json:"priority"`
	Attempts  int          `json:"attempt_count"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Progress is the externally visible snapshot of a backfill population.
type Progress struct {
	EligibleTotal int `json:"eligible_total"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Remaining     int `json:"remaining"`
}

// Candidate is one item surfaced by the eligibility scan. Priority orders
// processing (higher first); here it carries the item's activity volume.
type Candidate struct {
	ID       types.ItemID
	Priority int
}

// Scanner surfaces items whose score record is missing or stale.
type Scanner interface {
	ScanEligible(ctx context.Context) ([]Candidate, error)
}

// Computer computes and persists score records. Compute is pure with respect
// to the item's aggregates; Persist overwrites the record in place.
type Computer interface {
	Compute(ctx context.Context, id types.ItemID) (scoring.Record, int64, error)
	Persist(ctx context.Context, id types.ItemID, rec scoring.Record, asOfVersion int64) error
}

// Options controls a single backfill run.
type Options struct {
	// BatchSize bounds how many entries one claim takes. Zero uses the
	// orchestrator default.
	BatchSize int
	// DryRun computes and reports without persisting and without touching
	// the persistent queue state.
	DryRun bool
	// PriorityFloor skips entries below the given priority. Zero means all.
	PriorityFloor int
	// Workers bounds per-batch concurrency. Zero uses the default.
	Workers int
}

// Option applies a construction-time option to the Orchestrator.
type Option func(*Orchestrator)

// WithMaxAttempts bounds retries before an entry is parked FAILED.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithDefaultBatchSize sets the batch size used when a run does not specify
// one.
func WithDefaultBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.defaultBatch = n
		}
	}
}

// WithClock overrides the time source for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the backfill queue and drives runs against it.
type Orchestrator struct {
	scanner  Scanner
	computer Computer

	mu      sync.Mutex
	entries map[types.ItemID]*Entry
	running bool

	maxAttempts  int
	defaultBatch int
	now          func() time.Time

	logger logger.Logger
}

// New creates a backfill orchestrator.
func New(scanner Scanner, computer Computer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scanner:      scanner,
		computer:     computer,
		entries:      make(map[types.ItemID]*Entry),
		maxAttempts:  defaultMaxAttempts,
		defaultBatch: defaultBatchSize,
		now:          time.Now,
		logger:       logger.Get().Named("backfill"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one backfill pass and returns the resulting progress
// snapshot. Runs are repeatable and resumable: pending entries left by an
// interrupted run are consumed before any new scan. Cancellation between
// batches leaves the queue consistent, with no entry stuck IN_PROGRESS.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Progress, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return o.Progress(), ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = o.defaultBatch
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultRunWorkers
	}

	if opts.DryRun {
		return o.dryRun(ctx, batchSize, opts.PriorityFloor)
	}

	// Resume from queue state when pending work exists; otherwise seed the
	// queue from a fresh eligibility scan.
	if o.pendingCount(opts.PriorityFloor) == 0 {
		if err := o.seed(ctx); err != nil {
			return o.Progress(), err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return o.Progress(), err
		}
		batch := o.claim(batchSize, opts.PriorityFloor)
		if len(batch) == 0 {
			break
		}
		o.processBatch(ctx, batch, workers, false)
	}

	progress := o.Progress()
	o.logger.Info(ctx, "backfill run finished",
		logger.Int("eligible_total", progress.EligibleTotal),
		logger.Int("completed", progress.Completed),
		logger.Int("failed", progress.Failed),
		logger.Int("remaining", progress.Remaining),
	)
	return progress, nil
}

// Progress reports the current queue counters. It is safe to call while a
// run is active.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	var p Progress
	p.EligibleTotal = len(o.entries)
	for _, e := range o.entries {
		switch e.Status {
		case StatusDone:
			p.Completed++
		case StatusFailed:
			p.Failed++
		case StatusPending, StatusInProgress:
			p.Remaining++
		}
	}
	metrics.UpdateBackfillRemaining(p.Remaining)
	return p
}

// Entries returns a copy of the queue, FAILED entries included, for operator
// inspection.
func (o *Orchestrator) Entries() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Entry, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// seed merges a fresh eligibility scan into the queue. Entries parked FAILED
// at the attempt cap stay parked for operator visibility; everything else
// surfaced by the scan becomes PENDING again.
func (o *Orchestrator) seed(ctx context.Context) error {
	candidates, err := o.scanner.ScanEligible(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range candidates {
		if existing, ok := o.entries[c.ID]; ok {
			if existing.Status == StatusFailed && existing.Attempts >= o.maxAttempts {
				continue
			}
			existing.Status = StatusPending
			existing.Priority = c.Priority
			existing.UpdatedAt = o.now()
			continue
		}
		o.entries[c.ID] = &Entry{
			ItemID:    c.ID,
			Status:    StatusPending,
			Priority:  c.Priority,
			UpdatedAt: o.now(),
		}
	}
	return nil
}

// pendingCount counts claimable entries at or above the priority floor.
func (o *Orchestrator) pendingCount(priorityFloor int) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	count := 0
	for _, e := range o.entries {
		if o.claimable(e, priorityFloor) {
			count++
		}
	}
	return count
}

// claimable reports whether an entry may be picked up by a claim. Caller
// holds o.mu.
func (o *Orchestrator) claimable(e *Entry, priorityFloor int) bool {
	if e.Priority < priorityFloor {
		return false
	}
	switch e.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return e.Attempts < o.maxAttempts
	case StatusInProgress, StatusDone:
		return false
	}
	return false
}

// claim atomically marks up to n claimable entries IN_PROGRESS and returns
// them. No two claims can take the same entry.
func (o *Orchestrator) claim(n, priorityFloor int) []*Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var claimables []*Entry
	for _, e := range o.entries {
		if o.claimable(e, priorityFloor) {
			claimables = append(claimables, e)
		}
	}
	// Highest priority first, then id, for reproducible batch order.
	sort.Slice(claimables, func(i, j int) bool {
		if claimables[i].Priority != claimables[j].Priority {
			return claimables[i].Priority > claimables[j].Priority
		}
		return claimables[i].ItemID < claimables[j].ItemID
	})

	if len(claimables) > n {
		claimables = claimables[:n]
	}
	for _, e := range claimables {
		e.Status = StatusInProgress
		e.UpdatedAt = o.now()
	}
	return claimables
}

// processBatch recomputes the claimed entries with bounded concurrency. Each
// item is independent: a failure marks only its own entry.
func (o *Orchestrator) processBatch(ctx context.Context, batch []*Entry, workers int, dry bool) {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, entry := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(e *Entry) {
			defer wg.Done()
			defer func() { <-sem }()
			o.processEntry(ctx, e, dry)
		}(entry)
	}
	wg.Wait()
}

// processEntry recomputes one item and settles its queue entry. A canceled
// context releases the entry back to PENDING without consuming an attempt.
func (o *Orchestrator) processEntry(ctx context.Context, e *Entry, dry bool) {
	rec, version, err := o.computer.Compute(ctx, e.ItemID)
	if err == nil && !dry {
		err = o.computer.Persist(ctx, e.ItemID, rec, version)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	e.UpdatedAt = o.now()

	switch {
	case err == nil:
		e.Status = StatusDone
		e.LastError = ""
		metrics.RecordBackfillCompleted()
	case ctx.Err() != nil:
		// Cancellation is not an item failure; release the claim.
		e.Status = StatusPending
	default:
		e.Status = StatusFailed
		e.Attempts++
		e.LastError = err.Error()
		metrics.RecordBackfillFailed()
		o.logger.Warn(ctx, "backfill item failed",
			logger.String("itemID", e.ItemID.String()),
			logger.Int("attempts", e.Attempts),
			logger.Error(err),
		)
	}
}

// dryRun computes over a fresh scan without persisting anything and without
// touching the persistent queue, so a following real run sees identical
// state.
func (o *Orchestrator) dryRun(ctx context.Context, batchSize, priorityFloor int) (Progress, error) {
	candidates, err := o.scanner.ScanEligible(ctx)
	if err != nil {
		return Progress{}, err
	}

	scratch := make([]*Entry, 0, len(candidates))
	for _, c := range candidates {
		if c.Priority < priorityFloor {
			continue
		}
		scratch = append(scratch, &Entry{ItemID: c.ID, Status: StatusPending, Priority: c.Priority})
	}
	sort.Slice(scratch, func(i, j int) bool {
		if scratch[i].Priority != scratch[j].Priority {
			return scratch[i].Priority > scratch[j].Priority
		}
		return scratch[i].ItemID < scratch[j].ItemID
	})

	var p Progress
	p.EligibleTotal = len(scratch)
	for start := 0; start < len(scratch); start += batchSize {
		if err := ctx.Err(); err != nil {
			p.Remaining = p.EligibleTotal - p.Completed - p.Failed
			return p, err
		}
		end := start + batchSize
		if end > len(scratch) {
			end = len(scratch)
		}
		for _, e := range scratch[start:end] {
			if _, _, err := o.computer.Compute(ctx, e.ItemID); err != nil {
				p.Failed++
				continue
			}
			p.Completed++
		}
	}
	p.Remaining = p.EligibleTotal - p.Completed - p.Failed
	return p, nil
}
