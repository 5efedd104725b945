package timing

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter publishes Stats as Prometheus metrics
type Exporter struct {
	averages *prometheus.GaugeVec
	fps      prometheus.Gauge
	frames   prometheus.Counter

	lastFrames uint64
}

// NewExporter registers the frame metrics on reg
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		averages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "particlesim",
				Name:      "phase_seconds",
				Help:      "Rolling average duration of a frame phase",
			},
			[]string{"phase"},
		),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "particlesim",
			Name:      "frames_per_second",
			Help:      "Frame rate derived from the rolling frame time",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "particlesim",
			Name:      "frames_total",
			Help:      "Frames rendered",
		}),
	}
	for _, c := range []prometheus.Collector{e.averages, e.fps, e.frames} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering frame metrics")
		}
	}
	return e, nil
}

// Observe updates every metric from s
func (e *Exporter) Observe(s Stats) {
	for phase, avg := range s.Averages {
		e.averages.WithLabelValues(phase).Set(avg.Seconds())
	}
	e.fps.Set(s.FPS)
	if s.Frames > e.lastFrames {
		e.frames.Add(float64(s.Frames - e.lastFrames))
		e.lastFrames = s.Frames
	}
}
