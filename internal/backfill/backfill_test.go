package backfill_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patinalabs/patina/internal/backfill"
	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
	logging "github.com/patinalabs/patina/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeScanner serves a fixed candidate set and counts scans.
type fakeScanner struct {
	mu         sync.Mutex
	candidates []backfill.Candidate
	scans      int
}

func (s *fakeScanner) ScanEligible(_ context.Context) ([]backfill.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	out := make([]backfill.Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

func (s *fakeScanner) scanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

// fakeComputer computes a deterministic record per item and tracks persists.
type fakeComputer struct {
	mu        sync.Mutex
	failing   map[types.ItemID]error
	computed  map[types.ItemID]int
	persisted map[types.ItemID]scoring.Record
	onCompute func(id types.ItemID)
}

func newFakeComputer() *fakeComputer {
	return &fakeComputer{
		failing:   make(map[types.ItemID]error),
		computed:  make(map[types.ItemID]int),
		persisted: make(map[types.ItemID]scoring.Record),
	}
}

func (c *fakeComputer) Compute(_ context.Context, id types.ItemID) (scoring.Record, int64, error) {
	c.mu.Lock()
	c.computed[id]++
	hook := c.onCompute
	err := c.failing[id]
	c.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err != nil {
		return scoring.Record{}, 0, err
	}
	return scoring.Record{Score: float64(len(id)), Confidence: 40}, 1, nil
}

func (c *fakeComputer) Persist(_ context.Context, id types.ItemID, rec scoring.Record, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persisted[id] = rec
	return nil
}

func (c *fakeComputer) persistCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.persisted)
}

func candidates(ids ...types.ItemID) []backfill.Candidate {
	out := make([]backfill.Candidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, backfill.Candidate{ID: id, Priority: len(ids) - i})
	}
	return out
}

func TestOrchestrator_Run(t *testing.T) {
	_ = logging.Init()
	ctx := context.Background()

	Convey("Given an orchestrator over three eligible items", t, func() {
		scanner := &fakeScanner{candidates: candidates("item-a", "item-b", "item-c")}
		computer := newFakeComputer()
		orch := backfill.New(scanner, computer)

		Convey("When a run completes", func() {
			progress, err := orch.Run(ctx, backfill.Options{})
			So(err, ShouldBeNil)

			Convey("Then every item should be computed and persisted", func() {
				So(progress.EligibleTotal, ShouldEqual, 3)
				So(progress.Completed, ShouldEqual, 3)
				So(progress.Failed, ShouldEqual, 0)
				So(progress.Remaining, ShouldEqual, 0)
				So(computer.persistCount(), ShouldEqual, 3)
			})

			Convey("And every entry should be parked DONE", func() {
				for _, e := range orch.Entries() {
					So(e.Status, ShouldEqual, backfill.StatusDone)
					So(e.LastError, ShouldBeEmpty)
				}
			})

			Convey("And an immediate second run should find no new work", func() {
				progress, err := orch.Run(ctx, backfill.Options{})
				So(err, ShouldBeNil)
				So(progress.Completed, ShouldEqual, 3)
				So(scanner.scanCount(), ShouldEqual, 2)
			})
		})

		Convey("When the batch size is smaller than the population", func() {
			progress, err := orch.Run(ctx, backfill.Options{BatchSize: 1})
			So(err, ShouldBeNil)
			So(progress.Completed, ShouldEqual, 3)
		})
	})

	Convey("Given one item that always fails to compute", t, func() {
		scanner := &fakeScanner{candidates: candidates("item-a", "item-b", "item-c")}
		computer := newFakeComputer()
		computer.failing["item-b"] = errors.New("aggregate read failed")
		orch := backfill.New(scanner, computer, backfill.WithMaxAttempts(3))

		progress, err := orch.Run(ctx, backfill.Options{})
		So(err, ShouldBeNil)

		Convey("Then the failure should not block the other items", func() {
			So(progress.Completed, ShouldEqual, 2)
			So(progress.Failed, ShouldEqual, 1)
			So(computer.persistCount(), ShouldEqual, 2)
		})

		Convey("And the failing entry should be retried up to the cap", func() {
			for _, e := range orch.Entries() {
				if e.ItemID == "item-b" {
					So(e.Status, ShouldEqual, backfill.StatusFailed)
					So(e.Attempts, ShouldEqual, 3)
					So(e.LastError, ShouldContainSubstring, "aggregate read failed")
				}
			}
		})

		Convey("And a later run should leave the parked entry alone", func() {
			before := computer.computed["item-b"]
			_, err := orch.Run(ctx, backfill.Options{})
			So(err, ShouldBeNil)
			So(computer.computed["item-b"], ShouldEqual, before)
		})
	})

	Convey("Given a priority floor", t, func() {
		scanner := &fakeScanner{candidates: []backfill.Candidate{
			{ID: "item-busy", Priority: 10},
			{ID: "item-quiet", Priority: 1},
		}}
		computer := newFakeComputer()
		orch := backfill.New(scanner, computer)

		_, err := orch.Run(ctx, backfill.Options{PriorityFloor: 5})
		So(err, ShouldBeNil)

		Convey("Then only entries at or above the floor should be processed", func() {
			So(computer.computed["item-busy"], ShouldEqual, 1)
			So(computer.computed["item-quiet"], ShouldEqual, 0)
		})
	})

	Convey("Given a run already in flight", t, func() {
		scanner := &fakeScanner{candidates: candidates("item-a")}
		computer := newFakeComputer()

		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		computer.onCompute = func(types.ItemID) {
			once.Do(func() { close(started) })
			<-release
		}
		orch := backfill.New(scanner, computer)

		done := make(chan error, 1)
		go func() {
			_, err := orch.Run(ctx, backfill.Options{})
			done <- err
		}()
		<-started

		Convey("When a second run is requested", func() {
			_, err := orch.Run(ctx, backfill.Options{})

			Convey("Then it should be refused", func() {
				So(errors.Is(err, backfill.ErrRunInProgress), ShouldBeTrue)
			})
		})

		close(release)
		So(<-done, ShouldBeNil)
	})
}

func TestOrchestrator_Cancellation(t *testing.T) {
	_ = logging.Init()

	Convey("Given a run canceled mid-flight", t, func() {
		scanner := &fakeScanner{candidates: candidates("item-a", "item-b", "item-c", "item-d")}
		computer := newFakeComputer()

		runCtx, cancel := context.WithCancel(context.Background())
		var once sync.Once
		computer.onCompute = func(types.ItemID) {
			once.Do(cancel)
		}
		orch := backfill.New(scanner, computer)

		_, err := orch.Run(runCtx, backfill.Options{BatchSize: 1, Workers: 1})
		So(err, ShouldNotBeNil)

		Convey("Then no entry should be stuck IN_PROGRESS", func() {
			for _, e := range orch.Entries() {
				So(e.Status, ShouldNotEqual, backfill.StatusInProgress)
			}
		})

		Convey("And a fresh run should resume the pending entries", func() {
			computer.onCompute = nil
			progress, err := orch.Run(context.Background(), backfill.Options{})
			So(err, ShouldBeNil)
			So(progress.Completed, ShouldEqual, 4)
			So(progress.Remaining, ShouldEqual, 0)

			Convey("And no rescan should have been needed", func() {
				So(scanner.scanCount(), ShouldEqual, 1)
			})
		})
	})
}

func TestOrchestrator_DryRun(t *testing.T) {
	_ = logging.Init()
	ctx := context.Background()

	Convey("Given an orchestrator over eligible items", t, func() {
		scanner := &fakeScanner{candidates: candidates("item-a", "item-b")}
		computer := newFakeComputer()
		orch := backfill.New(scanner, computer)

		Convey("When a dry run executes", func() {
			progress, err := orch.Run(ctx, backfill.Options{DryRun: true})
			So(err, ShouldBeNil)

			Convey("Then items should be computed but nothing persisted", func() {
				So(progress.Completed, ShouldEqual, 2)
				So(computer.computed["item-a"], ShouldEqual, 1)
				So(computer.persistCount(), ShouldEqual, 0)
			})

			Convey("And the persistent queue should be untouched", func() {
				So(orch.Entries(), ShouldBeEmpty)
			})

			Convey("And a following real run should behave as if the dry run never happened", func() {
				progress, err := orch.Run(ctx, backfill.Options{})
				So(err, ShouldBeNil)
				So(progress.Completed, ShouldEqual, 2)
				So(computer.persistCount(), ShouldEqual, 2)
			})
		})
	})
}

func TestOrchestrator_EntryTimestamps(t *testing.T) {
	_ = logging.Init()
	ctx := context.Background()

	Convey("Given an orchestrator with a fixed clock", t, func() {
		at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
		scanner := &fakeScanner{candidates: candidates("item-a")}
		orch := backfill.New(scanner, newFakeComputer(), backfill.WithClock(func() time.Time { return at }))

		_, err := orch.Run(ctx, backfill.Options{})
		So(err, ShouldBeNil)

		Convey("Then entries should carry the clock's timestamps", func() {
			entries := orch.Entries()
			So(len(entries), ShouldEqual, 1)
			So(entries[0].UpdatedAt, ShouldEqual, at)
		})
	})
}
