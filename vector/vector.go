// Package vector turns raw accelerometer readings into dimensionless unit vectors.
package vector

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerateVector is returned for a sample whose magnitude is zero or not finite.
// Such a sample carries no direction and must be skipped.
var ErrDegenerateVector = errors.New("vector: degenerate vector")

// Raw is a single three axis reading in sensor native units.
type Raw struct {
	X int32
	Y int32
	Z int32
}

// Unit is a vector of length one.
type Unit struct {
	X float64
	Y float64
	Z float64
}

func (r Raw) vec() r3.Vec {
	return r3.Vec{X: float64(r.X), Y: float64(r.Y), Z: float64(r.Z)}
}

// G scales the raw reading to multiples of standard gravity.
func (r Raw) G(gPerLSB float64) (x, y, z float64) {
	v := r3.Scale(gPerLSB, r.vec())
	return v.X, v.Y, v.Z
}

func (r Raw) String() string {
	return fmt.Sprintf("(%d, %d, %d)", r.X, r.Y, r.Z)
}

// Normalize divides the sample by its euclidean norm.
func Normalize(raw Raw) (Unit, error) {
	v := raw.vec()
	n := r3.Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Unit{}, fmt.Errorf("%w: %v", ErrDegenerateVector, raw)
	}
	u := r3.Scale(1/n, v)
	return Unit{X: u.X, Y: u.Y, Z: u.Z}, nil
}

// Norm returns the euclidean length of u.
func (u Unit) Norm() float64 {
	return r3.Norm(r3.Vec{X: u.X, Y: u.Y, Z: u.Z})
}

func (u Unit) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", u.X, u.Y, u.Z)
}
