package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry and custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("walker"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithRefreshInterval(3*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then options are applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)
			})

			Convey("Then metrics are registered on that registry", func() {
				manager.governorDelay.Set(1.5)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_walker_governor_delay_seconds"], ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording governor state", func() {
			UpdateGovernorDelay(750 * time.Millisecond)
			before := testutil.ToFloat64(globalManager.governorRequests.WithLabelValues("throttled"))
			RecordGovernorOutcome("throttled")
			RecordGovernorWait(200 * time.Millisecond)

			So(testutil.ToFloat64(globalManager.governorDelay), ShouldAlmostEqual, 0.75)
			So(testutil.ToFloat64(globalManager.governorRequests.WithLabelValues("throttled")), ShouldEqual, before+1)
		})

		Convey("When recording sink calls", func() {
			rows := testutil.ToFloat64(globalManager.sinkRows.WithLabelValues("matches"))
			errs := testutil.ToFloat64(globalManager.sinkErrors.WithLabelValues("matches"))
			RecordSinkUpsert("matches", 4, 10*time.Millisecond, nil)
			RecordSinkUpsert("matches", 0, 10*time.Millisecond, errors.New("down"))

			So(testutil.ToFloat64(globalManager.sinkRows.WithLabelValues("matches")), ShouldEqual, rows+4)
			So(testutil.ToFloat64(globalManager.sinkErrors.WithLabelValues("matches")), ShouldEqual, errs+1)
		})

		Convey("When recording runs", func() {
			now := time.Unix(1_700_000_000, 0)
			RecordRun("done", time.Minute, now)
			So(testutil.ToFloat64(globalManager.runLastSuccess), ShouldEqual, 1)
			So(testutil.ToFloat64(globalManager.runLastUnix), ShouldEqual, float64(now.Unix()))

			RecordRun("aborted", time.Second, now)
			So(testutil.ToFloat64(globalManager.runLastSuccess), ShouldEqual, 0)

			SetRunInProgress(true)
			So(testutil.ToFloat64(globalManager.runInProgress), ShouldEqual, 1)
			SetRunInProgress(false)
			So(testutil.ToFloat64(globalManager.runInProgress), ShouldEqual, 0)
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordAPICall("match_detail", "success", 30*time.Millisecond)
				RecordAPIRetry("match_detail")
				UpdateAPIRateLimitedRatio(0.1)
				RecordMatchFetched()
				RecordMatchSkipped("not_found")
				RecordMatchDuplicate()
				RecordPlayerProcessed("ok")
				UpdateQueueCapacity(10)
				UpdateQueueSize(3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("closed")
				AddWorkerActive(1)
				AddWorkerActive(-1)
				RecordWorkerProcessingLatency(time.Millisecond)
				RecordWorkerError()
				RecordStageDuration("walk_matches", time.Second)
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 1)
				RecordErrorByComponent("walker", "not_found")
				RecordErrorByEndpoint("/run-pipeline", "POST", "server_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
			So(Global(), ShouldEqual, globalManager)
		})
	})
}
