package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patinalabs/patina/internal/adapters/repository"
	"github.com/patinalabs/patina/internal/app"
	"github.com/patinalabs/patina/internal/backfill"
	"github.com/patinalabs/patina/internal/domain/model"
	"github.com/patinalabs/patina/internal/domain/types"
	logging "github.com/patinalabs/patina/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func startService(opts ...app.Option) *app.Service {
	_ = logging.Init()
	svc := app.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return svc
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_Lifecycle(t *testing.T) {
	_ = logging.Init()
	ctx := context.Background()

	Convey("Given a new service", t, func() {
		svc := app.New(app.WithWorkerCount(2), app.WithQueueSize(100))

		Convey("When it starts", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stats should report the running state", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["queueSize"], ShouldEqual, 100)
				So(stats["totalItems"], ShouldEqual, 0)
			})
		})

		Convey("When it stops twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldBeFalse)
		})
	})
}

func TestService_VoteIngestion(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with two items", t, func() {
		svc := startService(app.WithWorkerCount(2), app.WithQueueSize(1000))
		defer svc.Stop()

		So(svc.RegisterItem(ctx, "item-a"), ShouldBeNil)
		So(svc.RegisterItem(ctx, "item-b"), ShouldBeNil)

		Convey("When events flow through dedupe and the queue", func() {
			So(svc.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			So(svc.Enqueue(ctx, model.PairwiseOutcome("evt-1", "item-a", "item-b", time.Now())), ShouldBeTrue)

			Convey("Then a replayed event id should be reported seen", func() {
				So(svc.SeenAndRecord(ctx, "evt-1"), ShouldBeTrue)
				So(svc.Size(), ShouldEqual, 1)
			})

			Convey("And the vote should eventually land in the store", func() {
				So(waitUntil(func() bool {
					rec, err := svc.ComputeScore(ctx, "item-a")
					return err == nil && rec.Components.Elo > 50.0
				}), ShouldBeTrue)
			})
		})

		Convey("When an enqueue fails and the id is unrecorded", func() {
			So(svc.SeenAndRecord(ctx, "evt-2"), ShouldBeFalse)
			svc.Unrecord(ctx, "evt-2")

			Convey("Then the retry should be admitted as new", func() {
				So(svc.SeenAndRecord(ctx, "evt-2"), ShouldBeFalse)
			})
		})
	})
}

func TestService_Scoring(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with a voted item", t, func() {
		svc := startService(app.WithWorkerCount(1))
		defer svc.Stop()

		So(svc.RegisterItem(ctx, "item-a"), ShouldBeNil)
		So(svc.RegisterItem(ctx, "item-b"), ShouldBeNil)

		So(svc.Enqueue(ctx, model.SliderRating("evt-1", "item-a", "voter-1", 80, time.Now())), ShouldBeTrue)
		So(waitUntil(func() bool {
			rec, err := svc.ComputeScore(ctx, "item-a")
			return err == nil && rec.Components.Slider == 80.0
		}), ShouldBeTrue)

		Convey("When the score record is read back", func() {
			rec, err := svc.ScoreRecord(ctx, "item-a")
			So(err, ShouldBeNil)
			So(rec.Score, ShouldAlmostEqual, 80.0, 1e-9)
			So(rec.ConfidenceTier, ShouldEqual, types.TierLow)
		})

		Convey("When an unscored item is read", func() {
			_, err := svc.ScoreRecord(ctx, "item-b")
			So(errors.Is(err, repository.ErrScoreNotComputed), ShouldBeTrue)
		})

		Convey("When an unknown item is scored", func() {
			_, err := svc.ComputeScore(ctx, "missing")
			So(errors.Is(err, repository.ErrItemNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Leaderboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with scored items", t, func() {
		svc := startService(app.WithWorkerCount(1))
		defer svc.Stop()

		ids := []types.ItemID{"item-a", "item-b", "item-c"}
		for i, id := range ids {
			So(svc.RegisterItem(ctx, id), ShouldBeNil)
			value := 60 + float64(i)*10
			So(svc.Enqueue(ctx, model.SliderRating("evt-"+string(id), id, "voter-1", value, time.Now())), ShouldBeTrue)
		}
		So(waitUntil(func() bool {
			for _, id := range ids {
				rec, err := svc.ComputeScore(ctx, id)
				if err != nil || rec.ConfidenceTier == types.TierVeryLow {
					return false
				}
			}
			return true
		}), ShouldBeTrue)

		Convey("When the first page is fetched", func() {
			entries, next, err := svc.Leaderboard(ctx, 2, "")
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 2)
			So(entries[0].ItemID, ShouldEqual, types.ItemID("item-c"))
			So(next, ShouldEqual, "2")

			Convey("Then the cursor should fetch the remainder", func() {
				rest, next, err := svc.Leaderboard(ctx, 2, next)
				So(err, ShouldBeNil)
				So(len(rest), ShouldEqual, 1)
				So(rest[0].Rank, ShouldEqual, 3)
				So(next, ShouldBeEmpty)
			})
		})

		Convey("When a malformed cursor is supplied", func() {
			_, _, err := svc.Leaderboard(ctx, 2, "not-a-cursor")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			_, _, err = svc.Leaderboard(ctx, 2, "-3")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When a retired item drops off the board", func() {
			So(svc.RetireItem(ctx, "item-c"), ShouldBeNil)
			entries, _, err := svc.Leaderboard(ctx, 10, "")
			So(err, ShouldBeNil)
			So(entries[0].ItemID, ShouldEqual, types.ItemID("item-b"))
		})
	})
}

func TestService_Backfill(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with voted but unscored items", t, func() {
		svc := startService(app.WithWorkerCount(1), app.WithMinActivity(1))
		defer svc.Stop()

		for _, id := range []types.ItemID{"item-a", "item-b"} {
			So(svc.RegisterItem(ctx, id), ShouldBeNil)
			So(svc.Enqueue(ctx, model.SliderRating("evt-"+string(id), id, "voter-1", 70, time.Now())), ShouldBeTrue)
		}
		So(waitUntil(func() bool { return svc.GetStats()["queueLength"] == 0 }), ShouldBeTrue)
		// Let the last dequeued event settle into the store.
		So(waitUntil(func() bool {
			rec, err := svc.RunBackfill(ctx, backfill.Options{DryRun: true})
			return err == nil && rec.EligibleTotal == 2
		}), ShouldBeTrue)

		Convey("When a backfill run executes", func() {
			progress, err := svc.RunBackfill(ctx, backfill.Options{})
			So(err, ShouldBeNil)
			So(progress.Completed, ShouldEqual, 2)
			So(progress.Remaining, ShouldEqual, 0)

			Convey("Then the score records should be readable", func() {
				rec, err := svc.ScoreRecord(ctx, "item-a")
				So(err, ShouldBeNil)
				So(rec.Score, ShouldAlmostEqual, 70.0, 1e-9)
			})

			Convey("And progress and entries should reflect the finished run", func() {
				So(svc.BackfillProgress().Completed, ShouldEqual, 2)
				entries := svc.BackfillEntries()
				So(len(entries), ShouldEqual, 2)
				for _, e := range entries {
					So(e.Status, ShouldEqual, backfill.StatusDone)
				}
			})

			Convey("And a rerun with no new votes should find nothing stale", func() {
				progress, err := svc.RunBackfill(ctx, backfill.Options{})
				So(err, ShouldBeNil)
				So(progress.Remaining, ShouldEqual, 0)
			})
		})
	})
}
