// Package direction classifies a gravity unit vector into the tilt of the board.
//
// The board is flat when the gravity vector is within +/-5 degrees of the z axis.
// Otherwise the tilt falls into one of eight compass sectors of 45 degrees each,
// North pointing along +y and East along +x.
package direction

import (
	"fmt"
	"math"
	"strings"

	"github.com/gr-butler/tiltcompass/vector"
)

// FlatThreshold is cos(85 degrees). Below it on both x and y the board counts as level.
const FlatThreshold = 0.087

type Direction int

const (
	Flat Direction = iota - 1
	North
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// Count is the number of tilted directions.
const Count = 8

// All lists the tilted directions clockwise from North.
var All = [Count]Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// FlatCode is the record code used for Flat.
const FlatCode = 0xFF

var names = map[Direction]string{
	Flat:      "Flat",
	North:     "North",
	NorthEast: "NorthEast",
	East:      "East",
	SouthEast: "SouthEast",
	South:     "South",
	SouthWest: "SouthWest",
	West:      "West",
	NorthWest: "NorthWest",
}

var short = map[string]Direction{
	"flat": Flat,
	"n":    North,
	"ne":   NorthEast,
	"e":    East,
	"se":   SouthEast,
	"s":    South,
	"sw":   SouthWest,
	"w":    West,
	"nw":   NorthWest,
}

func (d Direction) String() string {
	if n, ok := names[d]; ok {
		return n
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Valid reports whether d is Flat or one of the eight tilted directions.
func (d Direction) Valid() bool {
	return d >= Flat && d <= NorthWest
}

// Code is the single byte used for d in telemetry records.
func (d Direction) Code() byte {
	if d == Flat || !d.Valid() {
		return FlatCode
	}
	return byte(d)
}

// FromCode is the inverse of Code.
func FromCode(c byte) (Direction, error) {
	if c == FlatCode {
		return Flat, nil
	}
	d := Direction(c)
	if c >= Count {
		return Flat, fmt.Errorf("direction: invalid code 0x%02X", c)
	}
	return d, nil
}

// ParseDirection accepts "North", "north_east", "north-east", "NE" and the like.
func ParseDirection(s string) (Direction, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	if d, ok := short[k]; ok {
		return d, nil
	}
	k = strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
	for d, n := range names {
		if strings.ToLower(n) == k {
			return d, nil
		}
	}
	return Flat, fmt.Errorf("direction: unknown direction %q", s)
}

// IsFlat reports whether the board is within the flat threshold.
func IsFlat(u vector.Unit) bool {
	return math.Abs(u.X) <= FlatThreshold && math.Abs(u.Y) <= FlatThreshold
}

// AngleNormalized is atan2(y, x) in quadrant units, one unit per 90 degrees,
// mapped onto [0, 4).
func AngleNormalized(y, x float64) float64 {
	a := math.Atan2(y, x) / (math.Pi / 2)
	if a < 0 {
		a += 4
	}
	if a >= 4 {
		// a tiny negative angle rounds up to 4 after the shift
		a = 0
	}
	return a
}

// FromAngle maps a normalized angle onto its sector. Upper bounds are inclusive,
// North takes the wraparound. Any value that matches no sector is a bug in the
// caller and panics.
func FromAngle(a float64) Direction {
	switch {
	case a > 3.75 || a <= 0.25:
		return North
	case a > 0.25 && a <= 0.75:
		return NorthEast
	case a > 0.75 && a <= 1.25:
		return East
	case a > 1.25 && a <= 1.75:
		return SouthEast
	case a > 1.75 && a <= 2.25:
		return South
	case a > 2.25 && a <= 2.75:
		return SouthWest
	case a > 2.75 && a <= 3.25:
		return West
	case a > 3.25 && a <= 3.75:
		return NorthWest
	}
	panic(fmt.Sprintf("direction: normalized angle %v matches no sector", a))
}

// Classify returns Flat for a level board, otherwise the tilt direction.
func Classify(u vector.Unit) Direction {
	if IsFlat(u) {
		return Flat
	}
	return FromAngle(AngleNormalized(u.X, u.Y))
}
