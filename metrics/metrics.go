// Package metrics exposes the sampling pipeline to prometheus.
//
// All methods are safe on a nil *Pipeline, which records nothing. The collectors
// are resolved up front so recording on the sampling path does not allocate.
package metrics

import (
	"github.com/gr-butler/tiltcompass/direction"
	"github.com/prometheus/client_golang/prometheus"
)

type Pipeline struct {
	samples      map[direction.Direction]prometheus.Counter
	dropped      prometheus.Counter
	degenerate   prometheus.Counter
	sensorErrors prometheus.Counter
	drainedBytes prometheus.Counter
	sinkErrors   prometheus.Counter
	bufferUsed   prometheus.Gauge
	direction    prometheus.Gauge
}

func New(reg prometheus.Registerer) (*Pipeline, error) {
	samples := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilt_samples_total",
			Help: "Classified samples by direction",
		},
		[]string{"direction"},
	)
	p := &Pipeline{
		samples: map[direction.Direction]prometheus.Counter{},
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilt_samples_dropped_total",
			Help: "Samples dropped because the telemetry buffer was full",
		}),
		degenerate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilt_samples_degenerate_total",
			Help: "Samples skipped because the acceleration vector was zero",
		}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilt_sensor_errors_total",
			Help: "Failed accelerometer reads, retries included",
		}),
		drainedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilt_drained_bytes_total",
			Help: "Bytes drained from the telemetry buffer",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilt_sink_errors_total",
			Help: "Drained chunks the sink failed to take",
		}),
		bufferUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tilt_buffer_used_bytes",
			Help: "Committed bytes waiting in the telemetry buffer",
		}),
		direction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tilt_direction",
			Help: "Current direction, 0 North clockwise to 7 NorthWest, -1 flat",
		}),
	}
	for _, d := range append(direction.All[:], direction.Flat) {
		p.samples[d] = samples.WithLabelValues(d.String())
	}
	for _, c := range []prometheus.Collector{
		samples, p.dropped, p.degenerate, p.sensorErrors,
		p.drainedBytes, p.sinkErrors, p.bufferUsed, p.direction,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) Sample(d direction.Direction) {
	if p == nil {
		return
	}
	if c, ok := p.samples[d]; ok {
		c.Inc()
	}
	p.direction.Set(float64(d))
}

func (p *Pipeline) Dropped() {
	if p == nil {
		return
	}
	p.dropped.Inc()
}

func (p *Pipeline) Degenerate() {
	if p == nil {
		return
	}
	p.degenerate.Inc()
}

func (p *Pipeline) SensorError() {
	if p == nil {
		return
	}
	p.sensorErrors.Inc()
}

func (p *Pipeline) Drained(n int) {
	if p == nil {
		return
	}
	p.drainedBytes.Add(float64(n))
}

func (p *Pipeline) SinkError() {
	if p == nil {
		return
	}
	p.sinkErrors.Inc()
}

func (p *Pipeline) BufferUsed(n int) {
	if p == nil {
		return
	}
	p.bufferUsed.Set(float64(n))
}
