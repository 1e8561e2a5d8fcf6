package audio

import "sync"

// Ring is a fixed-capacity circular store of float32 samples with a single
// writer (the capture callback) and a single reader (the hotword loop).
// The sample array and the write cursor are guarded by one mutex, and the
// critical sections are plain copies so a write never stalls the callback
// for longer than the copy itself.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	cursor  int
	written uint64
}

// NewRing allocates a ring holding capacity samples. Capacity must be > 0.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("audio: ring capacity must be positive")
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Write appends samples, overwriting the oldest data once the ring is full.
// A write larger than the capacity keeps only its newest Cap() samples.
func (r *Ring) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := len(r.buf)
	r.written += uint64(len(samples))
	if len(samples) >= c {
		copy(r.buf, samples[len(samples)-c:])
		r.cursor = 0
		return
	}
	n := copy(r.buf[r.cursor:], samples)
	if n < len(samples) {
		copy(r.buf, samples[n:])
	}
	r.cursor = (r.cursor + len(samples)) % c
}

// ReadLast returns a copy of the most recent min(n, Cap(), Available())
// samples in chronological order.
func (r *Ring) ReadLast(n int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := len(r.buf)
	if n > c {
		n = c
	}
	if avail := r.availableLocked(); n > avail {
		n = avail
	}
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	start := r.cursor - n
	if start >= 0 {
		copy(out, r.buf[start:r.cursor])
		return out
	}
	// range straddles index 0: tail of the array, then its head
	start += c
	k := copy(out, r.buf[start:])
	copy(out[k:], r.buf[:r.cursor])
	return out
}

// Available reports how many samples a ReadLast can currently return.
func (r *Ring) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableLocked()
}

func (r *Ring) availableLocked() int {
	if r.written >= uint64(len(r.buf)) {
		return len(r.buf)
	}
	return int(r.written)
}

// Written returns the total number of samples ever written.
func (r *Ring) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Reset discards the stored history. Subsequent reads see only samples
// written after the reset.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.cursor = 0
	r.written = 0
	r.mu.Unlock()
}
