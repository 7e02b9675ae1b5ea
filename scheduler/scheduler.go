// Package scheduler runs the sampling loop.
//
// The loop is single threaded and cooperative. Each pass either services a
// timer tick (read the accelerometer, classify, show the direction, queue a
// record) or, when no tick is due, drains what it can from the telemetry
// buffer. When there was nothing to drain it calls the idle hook.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gr-butler/tiltcompass/buffer"
	"github.com/gr-butler/tiltcompass/data"
	"github.com/gr-butler/tiltcompass/direction"
	"github.com/gr-butler/tiltcompass/metrics"
	"github.com/gr-butler/tiltcompass/vector"
	logger "github.com/sirupsen/logrus"
)

// DefaultIdle is how long the default idle hook sleeps.
const DefaultIdle = time.Millisecond

// Source reads one raw accelerometer sample.
type Source interface {
	Read() (vector.Raw, error)
}

// Annunciator shows a direction. Flat means all outputs off.
type Annunciator interface {
	Show(d direction.Direction) error
}

// Timer reports, without blocking, whether a sampling tick is due.
type Timer interface {
	Fired() bool
}

// IdleFunc is called when there is neither a tick nor anything to drain.
// It is the place for a platform low power wait.
type IdleFunc func()

type Config struct {
	Source      Source
	Annunciator Annunciator
	Producer    *buffer.Producer
	Consumer    *buffer.Consumer
	Timer       Timer

	// Optional.
	Idle    IdleFunc
	Sink    io.Writer // drained bytes go here, io.Discard when nil
	Policy  SensorPolicy
	Log     *logger.Entry
	Metrics *metrics.Pipeline
	Status  *data.Status
	Now     func() time.Time
}

type Scheduler struct {
	source      Source
	annunciator Annunciator
	producer    *buffer.Producer
	consumer    *buffer.Consumer
	timer       Timer
	idle        IdleFunc
	sink        io.Writer
	policy      SensorPolicy
	log         *logger.Entry
	metrics     *metrics.Pipeline
	status      *data.Status
	now         func() time.Time

	seq    uint16
	record data.Record
}

func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("scheduler: no sensor source")
	case cfg.Annunciator == nil:
		return nil, errors.New("scheduler: no annunciator")
	case cfg.Producer == nil || cfg.Consumer == nil:
		return nil, errors.New("scheduler: no telemetry buffer")
	case cfg.Timer == nil:
		return nil, errors.New("scheduler: no timer")
	case cfg.Policy.Retries < 0:
		return nil, fmt.Errorf("scheduler: negative retry count %d", cfg.Policy.Retries)
	}
	if cfg.Producer.Capacity() < data.RecordLen {
		return nil, fmt.Errorf("scheduler: buffer of %d bytes cannot hold a %d byte record", cfg.Producer.Capacity(), data.RecordLen)
	}

	s := &Scheduler{
		source:      cfg.Source,
		annunciator: cfg.Annunciator,
		producer:    cfg.Producer,
		consumer:    cfg.Consumer,
		timer:       cfg.Timer,
		idle:        cfg.Idle,
		sink:        cfg.Sink,
		policy:      cfg.Policy,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
		status:      cfg.Status,
		now:         cfg.Now,
	}
	if s.idle == nil {
		s.idle = SleepIdle(DefaultIdle)
	}
	if s.sink == nil {
		s.sink = io.Discard
	}
	if s.policy.Escalate == nil {
		s.policy.Escalate = escalate
	}
	if s.log == nil {
		s.log = logger.NewEntry(logger.StandardLogger())
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run loops until ctx is done or a sensor failure is escalated.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("main loop")
	done := ctx.Done()
	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
}

// Step runs one pass of the loop.
func (s *Scheduler) Step() error {
	if s.timer.Fired() {
		return s.produceSample()
	}
	if !s.attemptDrain() {
		s.idle()
	}
	return nil
}

func (s *Scheduler) debug() bool {
	return s.log.Logger.IsLevelEnabled(logger.DebugLevel)
}

func (s *Scheduler) produceSample() error {
	raw, ok, err := s.readSensor()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	u, err := vector.Normalize(raw)
	if err != nil {
		s.log.WithError(err).Warn("Skipping sample")
		s.metrics.Degenerate()
		if s.status != nil {
			s.status.Degenerate()
		}
		return nil
	}

	d := direction.Classify(u)
	if s.debug() {
		s.log.Debugf("g_unit %v direction %v", u, d)
	}
	if err := s.annunciator.Show(d); err != nil {
		s.log.WithError(err).Error("Failed to show direction")
	}
	s.metrics.Sample(d)
	if s.status != nil {
		s.status.Sample(s.now(), d, u)
	}

	s.enqueue(d, u)
	s.metrics.BufferUsed(s.producer.Used())
	return nil
}

func (s *Scheduler) readSensor() (vector.Raw, bool, error) {
	var err error
	for attempt := 0; attempt <= s.policy.Retries; attempt++ {
		var raw vector.Raw
		raw, err = s.source.Read()
		if err == nil {
			return raw, true, nil
		}
		s.metrics.SensorError()
		if s.status != nil {
			s.status.SensorError()
		}
		s.log.WithError(err).Warnf("Sensor read failed (attempt %d of %d)", attempt+1, s.policy.Retries+1)
	}
	if esc := s.policy.Escalate(err); esc != nil {
		return vector.Raw{}, false, esc
	}
	return vector.Raw{}, false, nil
}

// enqueue queues a record if there is room. A full buffer drops the sample,
// the gap shows up in the sequence numbers downstream.
func (s *Scheduler) enqueue(d direction.Direction, u vector.Unit) {
	s.record = data.Record{Seq: s.seq, Direction: d, Unit: u}
	s.seq++

	g, err := s.producer.ReserveExact(data.RecordLen)
	if errors.Is(err, buffer.ErrBufferFull) {
		s.metrics.Dropped()
		if s.status != nil {
			s.status.Dropped()
		}
		if s.debug() {
			s.log.Debugf("Buffer full, dropped record %d", s.record.Seq)
		}
		return
	}
	if err != nil {
		// every grant is committed before we get here again
		panic(fmt.Sprintf("scheduler: reserve failed: %v", err))
	}
	s.record.Encode(g.Bytes())
	g.Commit(data.RecordLen)
}

// attemptDrain hands one contiguous chunk to the sink and releases it, whether
// or not the sink took it. It reports false when the buffer was empty.
func (s *Scheduler) attemptDrain() bool {
	g, err := s.consumer.Read()
	if err != nil {
		return false
	}
	n := g.Len()
	if _, err := s.sink.Write(g.Bytes()); err != nil {
		s.log.WithError(err).Error("Sink write failed, data discarded")
		s.metrics.SinkError()
	}
	g.Release(n)
	s.metrics.Drained(n)
	if s.status != nil {
		s.status.Drained(n)
	}
	return true
}
