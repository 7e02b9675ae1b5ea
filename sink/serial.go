package sink

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gr-butler/tiltcompass/metrics"
	logger "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const serialCloseTimeout = 2 * time.Second

var openPort = serial.Open

// Serial forwards the raw record stream to a serial port, typically the USB
// gadget port of the board. Port writes run on their own goroutine behind a
// bounded queue of chunks; a chunk that does not fit is dropped, so a port
// nobody reads never holds up the caller.
type Serial struct {
	port    serial.Port
	name    string
	queue   chan []byte
	done    chan struct{}
	log     *logger.Entry
	metrics *metrics.Pipeline
	dropped atomic.Uint64
	failed  atomic.Uint64
	closed  bool
	// how long Close waits for the queue to empty
	closeTimeout time.Duration
}

func OpenSerial(name string, baud, queue int, log *logger.Entry, m *metrics.Pipeline) (*Serial, error) {
	if queue <= 0 {
		return nil, fmt.Errorf("sink: serial queue must be > 0, got %d", queue)
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("sink: open serial %v: %w", name, err)
	}
	log.Infof("Serial sink on %v at %d baud", name, baud)
	s := &Serial{
		port:    port,
		name:    name,
		queue:   make(chan []byte, queue),
		done:    make(chan struct{}),
		log:     log,
		metrics: m,

		closeTimeout: serialCloseTimeout,
	}
	go s.run()
	return s, nil
}

func (s *Serial) run() {
	defer close(s.done)
	for chunk := range s.queue {
		for len(chunk) > 0 {
			n, err := s.port.Write(chunk)
			if err == nil && n == 0 {
				err = fmt.Errorf("sink: zero length write to %v", s.name)
			}
			if err != nil {
				s.log.WithError(err).Errorf("Serial write failed, %d bytes lost", len(chunk))
				s.failed.Add(1)
				s.metrics.SinkError()
				break
			}
			chunk = chunk[n:]
		}
	}
}

// Write queues a copy of p for the port and never blocks. When the queue is
// full the chunk is dropped and counted.
func (s *Serial) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("sink: serial sink %v closed", s.name)
	}
	if len(p) == 0 {
		return 0, nil
	}
	chunk := append([]byte(nil), p...)
	select {
	case s.queue <- chunk:
	default:
		s.dropped.Add(uint64(len(p)))
		s.metrics.SinkError()
	}
	return len(p), nil
}

// Dropped counts bytes lost to a full queue.
func (s *Serial) Dropped() uint64 {
	return s.dropped.Load()
}

// Failed counts chunks the port refused.
func (s *Serial) Failed() uint64 {
	return s.failed.Load()
}

// Close gives queued chunks a short while to reach the port, then closes it.
func (s *Serial) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.queue)
	select {
	case <-s.done:
	case <-time.After(s.closeTimeout):
		s.log.Warnf("Serial port %v not draining, closing with data queued", s.name)
	}
	err := s.port.Close()
	<-s.done
	return err
}
