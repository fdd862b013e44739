// Package app provides the core business service that implements the
// dependencies required by the HTTP API.
package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	votequeue "github.com/patinalabs/patina/internal/adapters/mq/queue"
	"github.com/patinalabs/patina/internal/adapters/mq/worker"
	"github.com/patinalabs/patina/internal/adapters/repository"
	"github.com/patinalabs/patina/internal/backfill"
	"github.com/patinalabs/patina/internal/domain/dedupe"
	"github.com/patinalabs/patina/internal/domain/elo"
	"github.com/patinalabs/patina/internal/domain/model"
	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
	"github.com/patinalabs/patina/pkg/logger"
	"github.com/patinalabs/patina/pkg/metrics"
)

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	deduper      dedupe.Deduper
	queue        votequeue.Queue
	workerPool   *worker.Pool
	engine       *scoring.Engine
	orchestrator *backfill.Orchestrator

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	shardCount  int
	eloK        float64
	baselineElo float64
	weights     scoring.Weights
	mode        types.ScoringMode
	minActivity int

	backfillBatchSize   int
	backfillMaxAttempts int
	backfillWorkers     int

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerCount sets the number of vote workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the in-memory vote queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the vote-event idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the rating store shard count.
func WithShardCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.shardCount = count
		}
	}
}

// WithEloK sets the Elo K-factor.
func WithEloK(k float64) Option {
	return func(s *Service) {
		if k > 0 {
			s.eloK = k
		}
	}
}

// WithBaselineElo sets the rating assigned to new items.
func WithBaselineElo(baseline float64) Option {
	return func(s *Service) {
		if baseline > 0 {
			s.baselineElo = baseline
		}
	}
}

// WithWeights sets the composite score weights.
func WithWeights(w scoring.Weights) Option {
	return func(s *Service) {
		if w.Elo > 0 && w.Slider > 0 && w.Endorsement > 0 {
			s.weights = w
		}
	}
}

// WithScoringMode sets bootstrap or full scoring.
func WithScoringMode(mode types.ScoringMode) Option {
	return func(s *Service) {
		if mode.Valid() {
			s.mode = mode
		}
	}
}

// WithMinActivity sets the backfill eligibility threshold.
func WithMinActivity(min int) Option {
	return func(s *Service) {
		if min >= 0 {
			s.minActivity = min
		}
	}
}

// WithBackfill sets backfill run defaults.
func WithBackfill(batchSize, maxAttempts, workers int) Option {
	return func(s *Service) {
		if batchSize > 0 {
			s.backfillBatchSize = batchSize
		}
		if maxAttempts > 0 {
			s.backfillMaxAttempts = maxAttempts
		}
		if workers > 0 {
			s.backfillWorkers = workers
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:         0, // worker pool falls back to NumCPU-based default
		queueSize:           100_000,
		dedupeSize:          500_000,
		shardCount:          8,
		eloK:                elo.DefaultK,
		baselineElo:         elo.DefaultBaseline,
		weights:             scoring.DefaultWeights(),
		mode:                types.ModeFull,
		minActivity:         1,
		backfillBatchSize:   100,
		backfillMaxAttempts: 3,
		backfillWorkers:     4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting ranking service...")

	s.store = repository.NewMemStore(ctx,
		repository.WithShardCount(s.shardCount),
		repository.WithBaselineElo(s.baselineElo),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = votequeue.NewInMemoryQueue(votequeue.WithCapacity(s.queueSize))
	s.engine = scoring.NewEngine(
		scoring.WithWeights(s.weights),
		scoring.WithMode(s.mode),
	)

	applier := worker.NewApplier(s.store, worker.WithEloK(s.eloK))
	s.workerPool = worker.NewPool(s.workerCount, s.queue, applier)
	s.workerPool.Start(ctx)

	s.orchestrator = backfill.New(
		&eligibilityScanner{store: s.store, minActivity: s.minActivity},
		&scoreComputer{store: s.store, engine: s.engine},
		backfill.WithMaxAttempts(s.backfillMaxAttempts),
		backfill.WithDefaultBatchSize(s.backfillBatchSize),
	)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("shards", s.shardCount),
		logger.String("mode", string(s.mode)),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ranking service...")

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
}

// SeenAndRecord atomically checks if a vote-event id was seen and records it
// if not. Returns true if the event was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes a vote-event ID from the seen set, allowing a retry.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of remembered event ids.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits a validated vote event for asynchronous processing.
// Returns false on backpressure.
func (s *Service) Enqueue(ctx context.Context, e model.VoteEvent) bool {
	return s.queue.Enqueue(ctx, e)
}

// RegisterItem creates a new ranked item at the baseline rating.
func (s *Service) RegisterItem(ctx context.Context, id types.ItemID) error {
	return s.store.Create(ctx, id)
}

// RetireItem soft-retires an item from ranking.
func (s *Service) RetireItem(ctx context.Context, id types.ItemID) error {
	return s.store.Retire(ctx, id)
}

// ComputeScore recomputes and persists the composite score for one item.
func (s *Service) ComputeScore(ctx context.Context, id types.ItemID) (scoring.Record, error) {
	start := time.Now()
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return scoring.Record{}, err
	}
	rec := s.engine.Score(item.Agg.Scoring())
	if err := s.store.PutScore(ctx, id, rec, item.Version); err != nil {
		return scoring.Record{}, err
	}
	metrics.RecordScoreComputation()
	metrics.RecordScoreComputeLatency(float64(time.Since(start).Milliseconds()))
	return rec, nil
}

// ScoreRecord returns the item's persisted score record.
func (s *Service) ScoreRecord(ctx context.Context, id types.ItemID) (scoring.Record, error) {
	return s.store.GetScore(ctx, id)
}

// Leaderboard returns one deterministic page of the ranking plus the cursor
// for the next page ("" when exhausted).
func (s *Service) Leaderboard(ctx context.Context, limit int, cursor string) ([]types.Entry, string, error) {
	offset, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	entries, total, err := s.store.Leaderboard(ctx, limit, offset)
	if err != nil {
		return nil, "", err
	}
	metrics.RecordLeaderboardQuery()

	next := ""
	if offset+len(entries) < total {
		next = strconv.Itoa(offset + len(entries))
	}
	return entries, next, nil
}

// RunBackfill executes one backfill pass with the orchestrator.
func (s *Service) RunBackfill(ctx context.Context, opts backfill.Options) (backfill.Progress, error) {
	if opts.Workers <= 0 {
		opts.Workers = s.backfillWorkers
	}
	return s.orchestrator.Run(ctx, opts)
}

// BackfillProgress returns the current backfill queue counters.
func (s *Service) BackfillProgress() backfill.Progress {
	return s.orchestrator.Progress()
}

// BackfillEntries returns the backfill queue for operator inspection.
func (s *Service) BackfillEntries() []backfill.Entry {
	return s.orchestrator.Entries()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"scoringMode": string(s.mode),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["totalItems"] = s.store.Count(ctx)
		stats["backfill"] = s.orchestrator.Progress()
	}
	return stats
}

// decodeCursor turns an opaque page cursor back into a rank offset.
func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed cursor %q", model.ErrValidation, cursor)
	}
	return offset, nil
}

// eligibilityScanner adapts the rating store's eligibility scan to the
// backfill orchestrator, using activity volume as priority.
type eligibilityScanner struct {
	store       repository.Store
	minActivity int
}

func (e *eligibilityScanner) ScanEligible(ctx context.Context) ([]backfill.Candidate, error) {
	eligible, err := e.store.ScanEligible(ctx, e.minActivity)
	if err != nil {
		return nil, err
	}
	candidates := make([]backfill.Candidate, len(eligible))
	for i, el := range eligible {
		candidates[i] = backfill.Candidate{ID: el.ID, Priority: el.Activity}
	}
	return candidates, nil
}

// scoreComputer adapts the score engine and store to the backfill computer
// contract.
type scoreComputer struct {
	store  repository.Store
	engine *scoring.Engine
}

func (c *scoreComputer) Compute(ctx context.Context, id types.ItemID) (scoring.Record, int64, error) {
	item, err := c.store.Get(ctx, id)
	if err != nil {
		return scoring.Record{}, 0, err
	}
	metrics.RecordScoreComputation()
	return c.engine.Score(item.Agg.Scoring()), item.Version, nil
}

func (c *scoreComputer) Persist(ctx context.Context, id types.ItemID, rec scoring.Record, asOfVersion int64) error {
	return c.store.PutScore(ctx, id, rec, asOfVersion)
}
