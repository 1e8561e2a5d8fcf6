// Package vision holds the latest camera frame and answers questions about
// it with a vision-language model.
package vision

import (
	"errors"
	"sync"
	"time"
)

// ErrNoFrame is returned when no camera frame has been captured yet.
var ErrNoFrame = errors.New("vision: no frame captured")

// Frame is an encoded camera image. Data is owned by the frame and never
// mutated after Set.
type Frame struct {
	Data       []byte
	Format     string // "jpeg" or "png"
	Width      int
	Height     int
	CapturedAt time.Time
}

// FrameSource is an overwrite-latest cell for camera frames. Writers call
// Set at their own cadence; readers get the most recent frame.
type FrameSource struct {
	mu     sync.RWMutex
	latest *Frame
	count  uint64
}

func NewFrameSource() *FrameSource { return &FrameSource{} }

// Set replaces the stored frame with a private copy of f.
func (s *FrameSource) Set(f Frame) {
	cp := f
	cp.Data = append([]byte(nil), f.Data...)
	if cp.CapturedAt.IsZero() {
		cp.CapturedAt = time.Now()
	}
	s.mu.Lock()
	s.latest = &cp
	s.count++
	s.mu.Unlock()
}

// Get returns the latest frame and whether one exists. The returned Data
// must be treated as read-only; it is shared with other readers.
func (s *FrameSource) Get() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Frame{}, false
	}
	return *s.latest, true
}

// Count reports how many frames have been stored.
func (s *FrameSource) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
