// Package buffer is a fixed capacity single producer / single consumer byte queue.
//
// New splits the queue into a Producer and a Consumer. Each side works on
// contiguous windows of the backing array called grants: the producer reserves
// a window, fills it and commits, the consumer reads whatever is committed and
// releases what it used. The two sides share nothing but the atomically updated
// indices, so each handle may live on its own goroutine. A handle itself is not
// safe for concurrent use.
//
// Nothing is allocated after New.
package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrBufferFull means there is no contiguous free window of the requested size.
	// The queue is unchanged.
	ErrBufferFull = errors.New("buffer: full")
	// ErrEmptyBuffer means nothing is committed and waiting to be read.
	ErrEmptyBuffer = errors.New("buffer: empty")
	// ErrGrantInProgress means the producer still holds an uncommitted grant.
	ErrGrantInProgress = errors.New("buffer: grant in progress")
)

type ring struct {
	data []byte

	// write is where the next grant starts, read is the first unreleased byte.
	// last marks the end of valid data once write has wrapped to the front and
	// read has not caught up yet.
	write atomic.Uint32
	read  atomic.Uint32
	last  atomic.Uint32
}

// Producer is the writing side of the queue.
type Producer struct {
	r       *ring
	grant   WriteGrant
	open    bool
	reserve uint32 // end of the open grant
}

// Consumer is the reading side of the queue.
type Consumer struct {
	r     *ring
	grant ReadGrant
	open  bool
}

// WriteGrant is an exclusive window for the producer to fill.
type WriteGrant struct {
	p   *Producer
	buf []byte
}

// ReadGrant is an exclusive window over committed bytes.
type ReadGrant struct {
	c   *Consumer
	buf []byte
}

// New allocates a queue of capacity bytes and returns its only producer and consumer.
func New(capacity int) (*Producer, *Consumer) {
	if capacity <= 0 || uint64(capacity) >= 1<<32 {
		panic(fmt.Sprintf("buffer: invalid capacity %d", capacity))
	}
	r := &ring{data: make([]byte, capacity)}
	r.last.Store(uint32(capacity))
	p := &Producer{r: r}
	p.grant.p = p
	c := &Consumer{r: r}
	c.grant.c = c
	return p, c
}

func (r *ring) capacity() uint32 {
	return uint32(len(r.data))
}

// used counts committed bytes not yet released. It is only a snapshot when the
// other side is active.
func (r *ring) used() int {
	w := r.write.Load()
	rd := r.read.Load()
	if w >= rd {
		return int(w - rd)
	}
	return int(r.last.Load()-rd) + int(w)
}

// ReserveExact grants exactly n contiguous bytes or fails with ErrBufferFull.
// A failed reserve leaves the queue untouched.
func (p *Producer) ReserveExact(n int) (*WriteGrant, error) {
	if p.open {
		return nil, ErrGrantInProgress
	}
	r := p.r
	max := r.capacity()
	if n < 0 || uint64(n) > uint64(max) {
		return nil, ErrBufferFull
	}
	sz := uint32(n)
	write := r.write.Load()
	read := r.read.Load()

	var start uint32
	switch {
	case write < read:
		// already wrapped, the free window runs up to read and must not touch it
		if write+sz >= read {
			return nil, ErrBufferFull
		}
		start = write
	case write+sz <= max:
		start = write
	default:
		// wrap to the front, keeping at least one byte between the grant and read
		if sz >= read {
			return nil, ErrBufferFull
		}
		start = 0
	}

	p.reserve = start + sz
	p.open = true
	p.grant.buf = r.data[start : start+sz]
	return &p.grant, nil
}

// Used is the number of committed bytes waiting for the consumer.
func (p *Producer) Used() int { return p.r.used() }

// Capacity is the fixed size of the queue.
func (p *Producer) Capacity() int { return len(p.r.data) }

// Bytes is the granted window.
func (g *WriteGrant) Bytes() []byte { return g.buf }

// Len is the size of the granted window.
func (g *WriteGrant) Len() int { return len(g.buf) }

// Commit publishes the first n bytes of the grant and gives the rest back.
// Commit(0) releases the grant without publishing anything. Committing more
// than was granted, or committing twice, panics.
func (g *WriteGrant) Commit(n int) {
	p := g.p
	if !p.open {
		panic("buffer: commit without an open write grant")
	}
	if n < 0 || n > len(g.buf) {
		panic(fmt.Sprintf("buffer: commit of %d bytes exceeds grant of %d", n, len(g.buf)))
	}
	r := p.r
	write := r.write.Load()
	newWrite := p.reserve - uint32(len(g.buf)-n)
	max := r.capacity()

	if newWrite < write && write != max {
		// wrapped: everything from write to the end is dead space
		r.last.Store(write)
	} else if newWrite > r.last.Load() {
		r.last.Store(max)
	}
	r.write.Store(newWrite)

	g.buf = nil
	p.open = false
}

// Read grants all committed bytes that are contiguous from the read position.
// A record written across the end of the queue comes back in two reads.
// Reading again before Release returns the same grant.
func (c *Consumer) Read() (*ReadGrant, error) {
	if c.open {
		return &c.grant, nil
	}
	r := c.r
	write := r.write.Load()
	last := r.last.Load()
	read := r.read.Load()

	if read == last && write < read {
		read = 0
		r.read.Store(0)
	}

	end := write
	if write < read {
		end = last
	}
	if end == read {
		return nil, ErrEmptyBuffer
	}

	c.open = true
	c.grant.buf = r.data[read:end]
	return &c.grant, nil
}

// Used is the number of committed bytes waiting to be read.
func (c *Consumer) Used() int { return c.r.used() }

// Capacity is the fixed size of the queue.
func (c *Consumer) Capacity() int { return len(c.r.data) }

// Bytes is the readable window.
func (g *ReadGrant) Bytes() []byte { return g.buf }

// Len is the size of the readable window.
func (g *ReadGrant) Len() int { return len(g.buf) }

// Release frees the first n bytes of the grant. Releasing more than was
// granted, or releasing twice, panics.
func (g *ReadGrant) Release(n int) {
	c := g.c
	if !c.open {
		panic("buffer: release without an open read grant")
	}
	if n < 0 || n > len(g.buf) {
		panic(fmt.Sprintf("buffer: release of %d bytes exceeds grant of %d", n, len(g.buf)))
	}
	c.r.read.Add(uint32(n))
	g.buf = nil
	c.open = false
}
