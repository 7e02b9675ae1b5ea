package data

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gr-butler/tiltcompass/direction"
	"github.com/gr-butler/tiltcompass/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	r := Record{Seq: 0x0102, Direction: direction.SouthWest, Unit: vector.Unit{X: 0, Y: 0, Z: 1}}
	b := make([]byte, RecordLen)
	r.Encode(b)

	assert.Equal(t, []byte{
		0xA5, 5, 0x02, 0x01,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0x80, 0x3F,
	}, b)
}

func TestDecode(t *testing.T) {
	in := Record{Seq: 65535, Direction: direction.Flat, Unit: vector.Unit{X: 0.5, Y: -0.25, Z: 0.75}}
	b := make([]byte, RecordLen)
	in.Encode(b)

	out, err := Decode(b)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode(make([]byte, 4))
	assert.True(t, errors.Is(err, ErrBadRecord))

	b := make([]byte, RecordLen)
	_, err = Decode(b)
	assert.True(t, errors.Is(err, ErrBadRecord), "no magic")

	b[0] = Magic
	b[1] = 9
	_, err = Decode(b)
	assert.True(t, errors.Is(err, ErrBadRecord), "bad direction")
}

func TestAssemblerSplitWrites(t *testing.T) {
	var got []Record
	a := NewAssembler(func(r Record) error {
		got = append(got, r)
		return nil
	})

	var stream []byte
	for i := 0; i < 3; i++ {
		b := make([]byte, RecordLen)
		r := Record{Seq: uint16(i), Direction: direction.All[i], Unit: vector.Unit{X: 1}}
		r.Encode(b)
		stream = append(stream, b...)
	}

	// split the way a wrapped ring buffer would hand it over
	for _, chunk := range [][]byte{stream[:5], stream[5:16], stream[16:40], stream[40:]} {
		n, err := a.Write(chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}

	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, uint16(i), r.Seq)
		assert.Equal(t, direction.All[i], r.Direction)
	}
	assert.Equal(t, uint64(0), a.Skipped())
}

func TestAssemblerResyncs(t *testing.T) {
	count := 0
	a := NewAssembler(func(Record) error {
		count++
		return nil
	})
	b := make([]byte, RecordLen)
	r := Record{Direction: direction.North}
	r.Encode(b)

	_, err := a.Write(append([]byte{0x00, 0x13}, b...))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(2), a.Skipped())
}

func TestAssemblerReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAssembler(func(Record) error { return boom })
	b := make([]byte, RecordLen)
	(&Record{}).Encode(b)
	n, err := a.Write(b)
	assert.Equal(t, RecordLen, n)
	assert.ErrorIs(t, err, boom)
}
