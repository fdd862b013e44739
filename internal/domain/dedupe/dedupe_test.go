package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/patinalabs/patina/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When an id is recorded for the first time", func() {
			So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)

			Convey("Then a replay should be reported as seen", func() {
				So(d.SeenAndRecord(ctx, "evt-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an id is unrecorded", func() {
			So(d.SeenAndRecord(ctx, "evt-2"), ShouldBeFalse)
			d.Unrecord(ctx, "evt-2")

			Convey("Then it should be recordable again", func() {
				So(d.SeenAndRecord(ctx, "evt-2"), ShouldBeFalse)
			})
		})

		Convey("When unrecording an unknown id", func() {
			Convey("Then nothing should change", func() {
				d.Unrecord(ctx, "never-seen")
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a deduper with a small bound", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("When more ids arrive than the bound allows", func() {
			for i := 0; i < 5; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("evt-%d", i)), ShouldBeFalse)
			}

			Convey("Then the oldest ids should be forgotten", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "evt-0"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "evt-4"), ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent producers sharing event ids", t, func() {
		d := dedupe.NewInMemoryDeduper()

		const (
			producers = 8
			events    = 200
		)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			recorded int
		)
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < events; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("evt-%d", i)) {
						mu.Lock()
						recorded++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id should be recorded exactly once", func() {
			So(recorded, ShouldEqual, events)
			So(d.Size(), ShouldEqual, events)
		})
	})
}
