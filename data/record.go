// Package data defines the telemetry record carried through the ring buffer
// and the status snapshot shown on the web endpoint.
package data

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gr-butler/tiltcompass/direction"
	"github.com/gr-butler/tiltcompass/vector"
)

const (
	// RecordLen is the fixed size of an encoded record.
	RecordLen = 16
	// Magic starts every record.
	Magic byte = 0xA5
)

var ErrBadRecord = errors.New("data: bad record")

// Record is one classified sample.
//
//	0     magic 0xA5
//	1     direction code, 0..7 clockwise from North, 0xFF flat
//	2:4   sequence, uint16 little endian
//	4:8   x, float32 little endian
//	8:12  y
//	12:16 z
type Record struct {
	Seq       uint16              `json:"seq"`
	Direction direction.Direction `json:"-"`
	Unit      vector.Unit         `json:"unit"`
}

// Encode writes r into dst, which must hold at least RecordLen bytes.
func (r *Record) Encode(dst []byte) {
	_ = dst[RecordLen-1]
	dst[0] = Magic
	dst[1] = r.Direction.Code()
	binary.LittleEndian.PutUint16(dst[2:4], r.Seq)
	binary.LittleEndian.PutUint32(dst[4:8], math.Float32bits(float32(r.Unit.X)))
	binary.LittleEndian.PutUint32(dst[8:12], math.Float32bits(float32(r.Unit.Y)))
	binary.LittleEndian.PutUint32(dst[12:16], math.Float32bits(float32(r.Unit.Z)))
}

// Decode parses the first RecordLen bytes of b.
func Decode(b []byte) (Record, error) {
	if len(b) < RecordLen {
		return Record{}, fmt.Errorf("%w: short record of %d bytes", ErrBadRecord, len(b))
	}
	if b[0] != Magic {
		return Record{}, fmt.Errorf("%w: magic 0x%02X", ErrBadRecord, b[0])
	}
	d, err := direction.FromCode(b[1])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return Record{
		Seq:       binary.LittleEndian.Uint16(b[2:4]),
		Direction: d,
		Unit: vector.Unit{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[12:16]))),
		},
	}, nil
}

// Assembler rebuilds records from a byte stream that may split them anywhere,
// as the ring buffer does at its wraparound. It is an io.Writer.
type Assembler struct {
	buf     [RecordLen]byte
	n       int
	handle  func(Record) error
	skipped uint64
}

func NewAssembler(handle func(Record) error) *Assembler {
	return &Assembler{handle: handle}
}

// Write always consumes all of p. Bytes that cannot start a record are skipped
// until the next magic byte. The first handler or decode error is returned.
func (a *Assembler) Write(p []byte) (int, error) {
	var first error
	for _, b := range p {
		if a.n == 0 && b != Magic {
			a.skipped++
			continue
		}
		a.buf[a.n] = b
		a.n++
		if a.n < RecordLen {
			continue
		}
		a.n = 0
		r, err := Decode(a.buf[:])
		if err == nil {
			err = a.handle(r)
		} else {
			a.skipped += RecordLen
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return len(p), first
}

// Skipped counts bytes thrown away while looking for record boundaries.
func (a *Assembler) Skipped() uint64 {
	return a.skipped
}
