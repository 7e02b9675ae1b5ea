package data

import (
	"sync"
	"time"

	"github.com/gr-butler/tiltcompass/direction"
	"github.com/gr-butler/tiltcompass/vector"
)

// holder for the latest sample and the pipeline counters, read by the web handler

type Snapshot struct {
	Time         time.Time `json:"time"`
	Direction    string    `json:"direction"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Z            float64   `json:"z"`
	Samples      uint64    `json:"samples"`
	Dropped      uint64    `json:"dropped"`
	Degenerate   uint64    `json:"degenerate"`
	SensorErrors uint64    `json:"sensor_errors"`
	DrainedBytes uint64    `json:"drained_bytes"`
}

type Status struct {
	lock sync.RWMutex
	snap Snapshot
	dir  direction.Direction
}

func NewStatus() *Status {
	return &Status{dir: direction.Flat, snap: Snapshot{Direction: direction.Flat.String()}}
}

func (s *Status) Sample(t time.Time, d direction.Direction, u vector.Unit) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snap.Time = t
	if d != s.dir {
		s.dir = d
		s.snap.Direction = d.String()
	}
	s.snap.X, s.snap.Y, s.snap.Z = u.X, u.Y, u.Z
	s.snap.Samples++
}

func (s *Status) Dropped() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snap.Dropped++
}

func (s *Status) Degenerate() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snap.Degenerate++
}

func (s *Status) SensorError() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snap.SensorErrors++
}

func (s *Status) Drained(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snap.DrainedBytes += uint64(n)
}

// Direction is the last classified direction.
func (s *Status) Direction() direction.Direction {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.dir
}

func (s *Status) Snapshot() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.snap
}
