// Package metrics exposes device and connection counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	Frames      prometheus.Counter
	FrameErrors *prometheus.CounterVec
	Force       prometheus.Gauge
	Peak        prometheus.Gauge
	Connected   prometheus.Gauge
	Commands    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linescale_frames_total",
			Help: "Reading frames decoded from the device",
		}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linescale_frame_errors_total",
			Help: "Frames dropped because they failed to decode",
		}, []string{"reason"}),
		Force: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linescale_force",
			Help: "Last force reading (units: device unit)",
		}),
		Peak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linescale_peak_force",
			Help: "Session peak force (units: device unit)",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linescale_connected",
			Help: "1 while a device is connected",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linescale_commands_total",
			Help: "Commands sent to the device",
		}, []string{"command"}),
	}
	if reg != nil {
		reg.MustRegister(c.Frames, c.FrameErrors, c.Force, c.Peak, c.Connected, c.Commands)
	}
	return c
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
