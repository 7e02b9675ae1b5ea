package sensors

import (
	"math"

	"github.com/gr-butler/tiltcompass/vector"
)

const (
	simOneG       = 1 << 14
	simStepDeg    = 15
	simTiltFactor = 0.5
)

// Simulated walks the tilt around the compass one step per read, then rests
// flat for a turn. Used in test mode when there is no sensor on the bus.
type Simulated struct {
	n int
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Read() (vector.Raw, error) {
	n := s.n
	s.n++

	perTurn := 360 / simStepDeg
	if (n/perTurn)%2 == 1 {
		return vector.Raw{Z: simOneG}, nil
	}
	r := float64(n%perTurn) * simStepDeg * math.Pi / 180
	h := simOneG * simTiltFactor
	return vector.Raw{
		X: int32(math.Round(h * math.Sin(r))),
		Y: int32(math.Round(h * math.Cos(r))),
		Z: int32(math.Round(simOneG * math.Sqrt(1-simTiltFactor*simTiltFactor))),
	}, nil
}
