package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the appraisal namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "appraisal")
				So(manager.subsystem, ShouldEqual, "valuation")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "unit")
				So(manager.metricPrefix, ShouldEqual, "x_")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})

			Convey("And the metrics should be registered on the given registry", func() {
				manager.assetsValued.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_x_assets_valued_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.invocations.WithLabelValues("queued"))
			RecordInvocation("queued", 12)
			RecordInvocation("queued", 8)

			Convey("Then the outcome counter should increase", func() {
				after := testutil.ToFloat64(globalManager.invocations.WithLabelValues("queued"))
				So(after-before, ShouldEqual, 2.0)
			})
		})

		Convey("When recording deferred assets", func() {
			before := testutil.ToFloat64(globalManager.assetsDeferred)
			RecordAssetsDeferred(4)

			Convey("Then the counter should increase by the batch size", func() {
				So(testutil.ToFloat64(globalManager.assetsDeferred)-before, ShouldEqual, 4.0)
			})
		})

		Convey("When updating gauges", func() {
			UpdateReportsInProgress(3)
			UpdateQueueSize(7)
			UpdateWorkerActiveCount(2)

			Convey("Then they should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.reportsInProgress), ShouldEqual, 3.0)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7.0)
				So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 2.0)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordAssetValued()
					RecordAssetFailed("classifier")
					RecordReportsPurged(2)
					RecordSaleCandidate("explicit_event")
					RecordLastSale("found")
					RecordCollectionCache("hit")
					RecordOracleQuote("historical", "estimate")
					RecordProviderCall("market", "ok", 42)
					RecordProviderRetry("market")
					RecordLimiterWait("history", 3)
					RecordEventPublished("ok")
					RecordHTTPRequest("advance", "POST", "200")
					RecordHTTPRequestDuration("advance", "POST", "200", 5)
					UpdateQueueCapacity(100)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordWorkerProcessingLatency(10)
					RecordWorkerError()
					RecordErrorByComponent("oracle", "upstream")
					RecordErrorByEndpoint("advance", "POST", "not_found")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(12)
					UpdateSystemCPUPercent(3.5)
					RecordSystemGCPauseTime(0.4)
				}, ShouldNotPanic)
			})
		})

		Convey("When fetching the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
