package buffer

import (
	"bytes"
	"math/rand"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, p *Producer, payload []byte) {
	t.Helper()
	g, err := p.ReserveExact(len(payload))
	require.NoError(t, err)
	copy(g.Bytes(), payload)
	g.Commit(len(payload))
}

func seq(start byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	p, c := New(64)

	first := seq(1, 16)
	write(t, p, first)

	g, err := c.Read()
	require.NoError(t, err)
	got := append([]byte(nil), g.Bytes()...)

	// a second write before the release must not show up in the open grant
	write(t, p, seq(100, 16))
	assert.Equal(t, first, g.Bytes())
	g.Release(g.Len())

	assert.Equal(t, first, got)

	g, err = c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(100, 16), g.Bytes())
	g.Release(16)

	_, err = c.Read()
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

func TestFullReserveLeavesStateAlone(t *testing.T) {
	p, c := New(64)
	for i := 0; i < 3; i++ {
		write(t, p, seq(byte(i*16), 16))
	}
	assert.Equal(t, 48, p.Used())

	_, err := p.ReserveExact(32)
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, 48, p.Used())
	assert.Equal(t, 48, c.Used())

	// the failed reserve did not leave a grant open
	g, err := p.ReserveExact(16)
	require.NoError(t, err)
	g.Commit(16)
	assert.Equal(t, 64, p.Used())

	r, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(0, 48), r.Bytes()[:48])
}

func TestReserveLargerThanCapacity(t *testing.T) {
	p, _ := New(8)
	_, err := p.ReserveExact(9)
	assert.ErrorIs(t, err, ErrBufferFull)
	_, err = p.ReserveExact(-1)
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestReadIsIdempotent(t *testing.T) {
	p, c := New(32)
	write(t, p, seq(0, 10))

	g1, err := c.Read()
	require.NoError(t, err)
	write(t, p, seq(10, 5))
	g2, err := c.Read()
	require.NoError(t, err)

	assert.Equal(t, g1.Bytes(), g2.Bytes())
	assert.Equal(t, 10, g2.Len())
	g2.Release(10)

	g3, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(10, 5), g3.Bytes())
}

func TestSecondReserveWhileOpen(t *testing.T) {
	p, _ := New(32)
	g, err := p.ReserveExact(4)
	require.NoError(t, err)
	_, err = p.ReserveExact(4)
	assert.ErrorIs(t, err, ErrGrantInProgress)
	g.Commit(0)
	_, err = p.ReserveExact(4)
	assert.NoError(t, err)
}

func TestCommitZeroPublishesNothing(t *testing.T) {
	p, c := New(32)
	g, err := p.ReserveExact(16)
	require.NoError(t, err)
	g.Commit(0)
	assert.Equal(t, 0, p.Used())
	_, err = c.Read()
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

func TestPartialCommitAndRelease(t *testing.T) {
	p, c := New(32)
	g, err := p.ReserveExact(16)
	require.NoError(t, err)
	copy(g.Bytes(), seq(0, 16))
	g.Commit(6)

	r, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(0, 6), r.Bytes())
	r.Release(2)

	r, err = c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(2, 4), r.Bytes())
}

func TestOverCommitPanics(t *testing.T) {
	p, _ := New(32)
	g, err := p.ReserveExact(4)
	require.NoError(t, err)
	assert.Panics(t, func() { g.Commit(5) })
	g.Commit(4)
	assert.Panics(t, func() { g.Commit(0) })
}

func TestOverReleasePanics(t *testing.T) {
	p, c := New(32)
	write(t, p, seq(0, 4))
	r, err := c.Read()
	require.NoError(t, err)
	assert.Panics(t, func() { r.Release(5) })
	r.Release(4)
	assert.Panics(t, func() { r.Release(0) })
}

func TestWraparound(t *testing.T) {
	p, c := New(64)
	for i := 0; i < 3; i++ {
		write(t, p, seq(byte(i*16), 16))
	}
	r, err := c.Read()
	require.NoError(t, err)
	r.Release(32)

	// 16 bytes left at the tail, 20 do not fit there, so the grant wraps to the front
	write(t, p, seq(200, 20))
	assert.Equal(t, 36, p.Used())

	r, err = c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(32, 16), r.Bytes(), "first the old tail")
	r.Release(r.Len())

	r, err = c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(200, 20), r.Bytes(), "then the wrapped grant")
	r.Release(r.Len())
	assert.Equal(t, 0, c.Used())
}

func TestWrappedGrantMustNotReachRead(t *testing.T) {
	p, c := New(64)
	write(t, p, seq(0, 48))
	r, err := c.Read()
	require.NoError(t, err)
	r.Release(16)

	// 16 free at the tail, 16 free at the front but the front would touch read
	_, err = p.ReserveExact(20)
	assert.ErrorIs(t, err, ErrBufferFull)
	_, err = p.ReserveExact(16)
	require.NoError(t, err, "tail still fits")
}

func TestCapacityInvariantRandomised(t *testing.T) {
	const capacity = 64
	p, c := New(capacity)
	rng := rand.New(rand.NewSource(7))

	var want bytes.Buffer
	var got bytes.Buffer
	var counter byte
	for i := 0; i < 5000; i++ {
		if rng.Intn(2) == 0 {
			n := rng.Intn(24) + 1
			before := p.Used()
			g, err := p.ReserveExact(n)
			if err != nil {
				require.ErrorIs(t, err, ErrBufferFull)
				require.Equal(t, before, p.Used())
				continue
			}
			commit := rng.Intn(n + 1)
			for j := 0; j < commit; j++ {
				g.Bytes()[j] = counter
				want.WriteByte(counter)
				counter++
			}
			g.Commit(commit)
		} else {
			r, err := c.Read()
			if err != nil {
				require.ErrorIs(t, err, ErrEmptyBuffer)
				require.Equal(t, 0, c.Used())
				continue
			}
			n := rng.Intn(r.Len() + 1)
			got.Write(r.Bytes()[:n])
			r.Release(n)
		}
		require.LessOrEqual(t, p.Used(), capacity)
	}
	for {
		r, err := c.Read()
		if err != nil {
			break
		}
		got.Write(r.Bytes())
		r.Release(r.Len())
	}
	assert.Equal(t, want.Bytes(), got.Bytes())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 200000
	p, c := New(128)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var next byte
		for sent := 0; sent < total; {
			n := 1 + sent%13
			if total-sent < n {
				n = total - sent
			}
			g, err := p.ReserveExact(n)
			if err != nil {
				runtime.Gosched()
				continue
			}
			for i := range g.Bytes() {
				g.Bytes()[i] = next
				next++
			}
			g.Commit(n)
			sent += n
		}
	}()

	var expect byte
	for received := 0; received < total; {
		r, err := c.Read()
		if err != nil {
			runtime.Gosched()
			continue
		}
		for _, b := range r.Bytes() {
			if b != expect {
				t.Fatalf("byte %d: got %d want %d", received, b, expect)
			}
			expect++
			received++
		}
		r.Release(r.Len())
	}
	wg.Wait()
}

func TestNewRejectsBadCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}
