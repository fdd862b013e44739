package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager(WithRegistry(prometheus.NewRegistry()))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRegistry(prometheus.NewRegistry()),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "test-namespace")
				So(manager.subsystem, ShouldEqual, "test-subsystem")
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		So(globalManager, ShouldNotBeNil)
		So(GetRegistry(), ShouldEqual, customRegistry)

		Convey("When recording through the package-level helpers", func() {
			// Exercising every helper once catches registration mistakes.
			RecordVoteApplied("comparison")
			RecordEventDuplicate()
			RecordEndorsementDuplicate()
			RecordVoteApplyError()
			RecordVoteApplyLatency(1.5)
			UpdateQueueSize(10)
			UpdateQueueCapacity(100)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError("queue_full")
			UpdateWorkerCount(4)
			UpdateStoreShardCount(8)
			UpdateItemsTracked(42)
			RecordStoreUpdateLatency(0.3)
			RecordStoreQueryLatency(0.7)
			RecordScoreComputation()
			RecordScoreComputeLatency(2.0)
			RecordBackfillCompleted()
			RecordBackfillFailed()
			UpdateBackfillRemaining(3)
			RecordLeaderboardQuery()
			RecordHTTPRequest("leaderboard", "GET", "200")
			RecordHTTPRequestDuration("leaderboard", "GET", "200", 12)

			Convey("Then the registry should gather the collectors", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 10)

				names := make(map[string]bool, len(families))
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["patina_ranking_votes_applied_total"], ShouldBeTrue)
				So(names["patina_ranking_queue_size"], ShouldBeTrue)
				So(names["patina_ranking_http_requests_total"], ShouldBeTrue)
			})
		})
	})
}
