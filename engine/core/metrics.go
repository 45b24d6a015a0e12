package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const AVG_COUNT uint8 = 30

// FrameMetrics keeps a rolling average of the frame time and the frames per second.
type FrameMetrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		MStimes: [AVG_COUNT]float64{0},
	}
}

func (m *FrameMetrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := (frameElapsedTime * 1000.0)
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}

		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++
}

func (m *FrameMetrics) FPSValue() float64 {
	return m.FPS
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.MSavg
}

// LoaderMetrics are the collectors exported by the asset driver. Every
// counter is labelled with the loadable kind ("asset", "bundle", ...).
type LoaderMetrics struct {
	Loads    *prometheus.CounterVec
	Unloads  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Loading  prometheus.Gauge
	Unused   prometheus.Gauge
}

// NewLoaderMetrics creates the loader collectors and registers them with reg.
// A nil registerer keeps the collectors unregistered.
func NewLoaderMetrics(reg prometheus.Registerer) *LoaderMetrics {
	f := promauto.With(reg)
	return &LoaderMetrics{
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anima",
			Subsystem: "content",
			Name:      "loads_total",
			Help:      "Number of loadables that started loading.",
		}, []string{"kind"}),
		Unloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anima",
			Subsystem: "content",
			Name:      "unloads_total",
			Help:      "Number of loadables reclaimed by the driver.",
		}, []string{"kind"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anima",
			Subsystem: "content",
			Name:      "failures_total",
			Help:      "Number of loadables that finished with an error.",
		}, []string{"kind"}),
		Loading: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "anima",
			Subsystem: "content",
			Name:      "loading",
			Help:      "Entries in the loading list after the last tick.",
		}),
		Unused: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "anima",
			Subsystem: "content",
			Name:      "unused",
			Help:      "Entries waiting for reclamation after the last tick.",
		}),
	}
}
