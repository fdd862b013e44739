package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
	"github.com/patinalabs/patina/pkg/metrics"
)

// Sharded, in-memory Store implementation.
//
// The shard map is guarded by a shard RWMutex; mutable rating state is
// guarded by a per-item mutex, so votes on disjoint items never contend.
// Item records are never removed (items are only soft-retired), which keeps
// record pointers stable once fetched from a shard.

// Default store configuration constants.
const (
	defaultShardCount  = 8
	defaultBaselineElo = 1000.0
)

// itemRecord holds one item's state. mu guards everything below it.
type itemRecord struct {
	mu sync.Mutex

	agg        Aggregates
	endorsedBy map[types.VoterID]struct{}
	version    int64

	createdAt time.Time
	retired   bool

	score        *scoring.Record
	scoreVersion int64
}

type shard struct {
	mu    sync.RWMutex
	items map[types.ItemID]*itemRecord
}

// MemStore implements Store with sharded in-memory state.
type MemStore struct {
	shards      []*shard
	baselineElo float64
	now         func() time.Time
}

// NewMemStore creates an in-memory rating store with configuration options.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		baselineElo: defaultBaselineElo,
		now:         time.Now,
	}
	count := defaultShardCount
	cfg := &storeConfig{shardCount: count}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.shardCount > 0 {
		count = cfg.shardCount
	}
	if cfg.baselineElo > 0 {
		s.baselineElo = cfg.baselineElo
	}
	if cfg.now != nil {
		s.now = cfg.now
	}

	s.shards = make([]*shard, count)
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[types.ItemID]*itemRecord)}
	}

	metrics.UpdateStoreShardCount(count)
	metrics.UpdateItemsTracked(0)
	return s
}

func (s *MemStore) shardFor(id types.ItemID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[int(h.Sum32())%len(s.shards)]
}

// lookup fetches the stable record pointer for id.
func (s *MemStore) lookup(id types.ItemID) (*itemRecord, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	rec, ok := sh.items[id]
	sh.mu.RUnlock()
	return rec, ok
}

// guard translates an already-expired context into a transient storage
// error before any state is touched.
func guard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return nil
}

// Create registers a new item at the baseline Elo rating.
func (s *MemStore) Create(ctx context.Context, id types.ItemID) error {
	if err := guard(ctx); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: empty item id", ErrItemNotFound)
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	if _, exists := sh.items[id]; exists {
		sh.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrItemExists, id)
	}
	sh.items[id] = &itemRecord{
		agg:        Aggregates{Elo: s.baselineElo},
		endorsedBy: make(map[types.VoterID]struct{}),
		createdAt:  s.now(),
	}
	// Count re-locks every shard, so the gauge update must happen outside
	// the critical section.
	sh.mu.Unlock()
	metrics.UpdateItemsTracked(s.Count(ctx))
	return nil
}

// Get returns a snapshot of the item.
func (s *MemStore) Get(ctx context.Context, id types.ItemID) (Item, error) {
	if err := guard(ctx); err != nil {
		return Item{}, err
	}
	rec, ok := s.lookup(id)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Item{
		ID:        id,
		Agg:       rec.agg,
		Version:   rec.version,
		CreatedAt: rec.createdAt,
		Retired:   rec.retired,
	}, nil
}

// Update runs fn under the item's lock.
func (s *MemStore) Update(ctx context.Context, id types.ItemID, fn func(*Mutable) error) error {
	if err := guard(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	rec, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.retired {
		return fmt.Errorf("%w: %s", ErrItemRetired, id)
	}
	if err := applyMutation(rec, fn); err != nil {
		return err
	}
	return nil
}

// UpdatePair runs fn with both items locked, acquiring locks in id order.
func (s *MemStore) UpdatePair(ctx context.Context, a, b types.ItemID, fn func(a, b *Mutable) error) error {
	if err := guard(ctx); err != nil {
		return err
	}
	if a == b {
		return fmt.Errorf("%w: pair update on single item %s", ErrItemNotFound, a)
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	recA, ok := s.lookup(a)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, a)
	}
	recB, ok := s.lookup(b)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, b)
	}

	// Fixed global lock order by id prevents deadlock between two
	// concurrent comparisons sharing an item.
	first, second := recA, recB
	if b < a {
		first, second = recB, recA
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if recA.retired {
		return fmt.Errorf("%w: %s", ErrItemRetired, a)
	}
	if recB.retired {
		return fmt.Errorf("%w: %s", ErrItemRetired, b)
	}

	// Stage both mutations on copies so a failing fn leaves neither item
	// changed.
	aggA, aggB := recA.agg, recB.agg
	mutA := &Mutable{Agg: &aggA, endorsed: recA.endorsedBy}
	mutB := &Mutable{Agg: &aggB, endorsed: recB.endorsedBy}
	if err := fn(mutA, mutB); err != nil {
		return err
	}
	commitMutation(recA, aggA, mutA)
	commitMutation(recB, aggB, mutB)
	return nil
}

// applyMutation stages fn on a copy of the aggregates and commits it, with a
// version bump, only when fn succeeds. Caller holds rec.mu.
func applyMutation(rec *itemRecord, fn func(*Mutable) error) error {
	agg := rec.agg
	mut := &Mutable{Agg: &agg, endorsed: rec.endorsedBy}
	if err := fn(mut); err != nil {
		return err
	}
	commitMutation(rec, agg, mut)
	return nil
}

// commitMutation writes back the staged aggregates and any newly recorded
// endorsers. Caller holds rec.mu.
func commitMutation(rec *itemRecord, agg Aggregates, mut *Mutable) {
	rec.agg = agg
	for _, voter := range mut.added {
		rec.endorsedBy[voter] = struct{}{}
	}
	rec.version++
}

// Retire soft-retires the item.
func (s *MemStore) Retire(ctx context.Context, id types.ItemID) error {
	if err := guard(ctx); err != nil {
		return err
	}
	rec, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.retired = true
	return nil
}

// PutScore overwrites the item's score record in place.
func (s *MemStore) PutScore(ctx context.Context, id types.ItemID, scoreRec scoring.Record, asOfVersion int64) error {
	if err := guard(ctx); err != nil {
		return err
	}
	rec, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	copyRec := scoreRec
	rec.score = &copyRec
	rec.scoreVersion = asOfVersion
	return nil
}

// GetScore returns the item's current score record.
func (s *MemStore) GetScore(ctx context.Context, id types.ItemID) (scoring.Record, error) {
	if err := guard(ctx); err != nil {
		return scoring.Record{}, err
	}
	rec, ok := s.lookup(id)
	if !ok {
		return scoring.Record{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.score == nil {
		return scoring.Record{}, fmt.Errorf("%w: %s", ErrScoreNotComputed, id)
	}
	return *rec.score, nil
}

// ScanEligible returns items needing (re)computation: enough activity and a
// missing or stale score record.
func (s *MemStore) ScanEligible(ctx context.Context, minActivity int) ([]Eligible, error) {
	if err := guard(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var out []Eligible
	for _, sh := range s.shards {
		sh.mu.RLock()
		recs := make(map[types.ItemID]*itemRecord, len(sh.items))
		for id, rec := range sh.items {
			recs[id] = rec
		}
		sh.mu.RUnlock()

		for id, rec := range recs {
			rec.mu.Lock()
			eligible := !rec.retired &&
				rec.agg.Activity() >= minActivity &&
				(rec.score == nil || rec.scoreVersion < rec.version)
			activity := rec.agg.Activity()
			rec.mu.Unlock()
			if eligible {
				out = append(out, Eligible{ID: id, Activity: activity})
			}
		}
	}
	// Deterministic scan order keeps backfill runs reproducible.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// rankedRow is the snapshot row used to build a leaderboard page.
type rankedRow struct {
	id           types.ItemID
	score        float64
	confidence   float64
	endorsements int
	comparisons  int
}

// Leaderboard returns one page of the deterministic ranking.
func (s *MemStore) Leaderboard(ctx context.Context, limit, offset int) ([]types.Entry, int, error) {
	if err := guard(ctx); err != nil {
		return nil, 0, err
	}
	if limit < 1 || offset < 0 {
		return nil, 0, ErrInvalidLimit
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	rows := s.snapshotRanked()
	total := len(rows)
	if offset >= total {
		return []types.Entry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	entries := make([]types.Entry, 0, end-offset)
	for i := offset; i < end; i++ {
		r := rows[i]
		entries = append(entries, types.Entry{
			Rank:            i + 1,
			ItemID:          r.id,
			Score:           r.score,
			Confidence:      r.confidence,
			Endorsements:    r.endorsements,
			ComparisonVotes: r.comparisons,
		})
	}
	return entries, total, nil
}

// snapshotRanked copies every scored, active item and sorts the copy by the
// ranking policy. Readers see a point-in-time view; concurrent writes land
// in later snapshots.
func (s *MemStore) snapshotRanked() []rankedRow {
	var rows []rankedRow
	for _, sh := range s.shards {
		sh.mu.RLock()
		recs := make([]*itemRecord, 0, len(sh.items))
		ids := make([]types.ItemID, 0, len(sh.items))
		for id, rec := range sh.items {
			recs = append(recs, rec)
			ids = append(ids, id)
		}
		sh.mu.RUnlock()

		for i, rec := range recs {
			rec.mu.Lock()
			// Zero-activity items are excluded entirely, not ranked last,
			// and unscored items have nothing to rank by yet.
			if rec.retired || rec.score == nil || rec.agg.Activity() == 0 {
				rec.mu.Unlock()
				continue
			}
			rows = append(rows, rankedRow{
				id:           ids[i],
				score:        rec.score.Score,
				confidence:   rec.score.Confidence,
				endorsements: rec.agg.EndorsementCount,
				comparisons:  rec.agg.ComparisonVotes,
			})
			rec.mu.Unlock()
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rankLess(rows[i], rows[j]) })
	return rows
}

// rankLess is the single ordering policy: endorsement count desc, score
// desc, comparison votes desc, then item id asc as the final deterministic
// tiebreaker. Never random.
func rankLess(a, b rankedRow) bool {
	if a.endorsements != b.endorsements {
		return a.endorsements > b.endorsements
	}
	if a.score != b.score {
		return a.score > b.score
	}
	if a.comparisons != b.comparisons {
		return a.comparisons > b.comparisons
	}
	return a.id < b.id
}

// Count returns the number of items tracked.
func (s *MemStore) Count(ctx context.Context) int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.items)
		sh.mu.RUnlock()
	}
	return total
}
