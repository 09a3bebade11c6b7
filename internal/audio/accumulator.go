// Package audio provides microphone capture and the sample buffering,
// encoding, and level primitives the transcription pipeline is built on.
package audio

import "sync"

// Accumulator is a bounded, mutex-guarded buffer of mono float32 samples.
// A capture callback appends on one goroutine while the scheduler snapshots
// on another; when an append would exceed the cap, the oldest samples are
// dropped so the buffer always holds the most recent capSamples.
type Accumulator struct {
	mu  sync.Mutex
	buf []float32
	cap int
}

// NewAccumulator creates an accumulator holding at most capSamples samples.
func NewAccumulator(capSamples int) *Accumulator {
	return &Accumulator{
		buf: make([]float32, 0, capSamples),
		cap: capSamples,
	}
}

// Append adds samples, discarding the oldest excess beyond the cap.
func (a *Accumulator) Append(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(samples) >= a.cap {
		// Incoming chunk alone fills the window.
		a.buf = a.buf[:a.cap]
		copy(a.buf, samples[len(samples)-a.cap:])
		return
	}

	a.buf = append(a.buf, samples...)
	if excess := len(a.buf) - a.cap; excess > 0 {
		copy(a.buf, a.buf[excess:])
		a.buf = a.buf[:a.cap]
	}
}

// Snapshot returns a copy of the current contents.
func (a *Accumulator) Snapshot() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]float32, len(a.buf))
	copy(out, a.buf)
	return out
}

// Clear resets the buffer to empty, keeping its capacity.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	a.buf = a.buf[:0]
	a.mu.Unlock()
}

// Len returns the current number of buffered samples.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}
