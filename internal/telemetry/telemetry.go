// Package telemetry exposes the small Prometheus surface spec.md §7
// allows (AICLK, hang counts, ARC latency) without pulling in the
// "specific telemetry tag lists" its Non-goals exclude.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry publishes one chip's runtime health metrics. It satisfies
// ttdevice.Telemetry without ttdevice importing this package.
type Telemetry struct {
	aiclk      prometheus.Gauge
	hangs      prometheus.Counter
	arcLatency prometheus.Histogram
}

// New registers a Telemetry's metrics against reg, labelled by deviceID so
// a process monitoring several chips gets one series per chip. Passing a
// fresh prometheus.NewRegistry() per test keeps registrations isolated.
func New(reg prometheus.Registerer, deviceID int) *Telemetry {
	labels := prometheus.Labels{"device_id": strconv.Itoa(deviceID)}

	t := &Telemetry{
		aiclk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tt_umd",
			Name:        "aiclk_mhz",
			Help:        "Last observed AICLK frequency in MHz.",
			ConstLabels: labels,
		}),
		hangs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tt_umd",
			Name:        "hang_detected_total",
			Help:        "Number of times IsHardwareHung reported a corroborated hang.",
			ConstLabels: labels,
		}),
		arcLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tt_umd",
			Name:        "arc_message_latency_seconds",
			Help:        "Round-trip latency of ARC mailbox/queue messages.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	reg.MustRegister(t.aiclk, t.hangs, t.arcLatency)

	return t
}

func (t *Telemetry) ObserveAiclk(mhz int) { t.aiclk.Set(float64(mhz)) }

func (t *Telemetry) IncHang() { t.hangs.Inc() }

func (t *Telemetry) ObserveArcLatency(d time.Duration) { t.arcLatency.Observe(d.Seconds()) }
