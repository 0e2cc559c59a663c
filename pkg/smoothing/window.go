package smoothing

import (
	"fmt"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// Window is a bounded FIFO of the most recent distributions. When full, a
// push evicts the oldest entry. Mean is recomputed from the held entries on
// every call, so its result depends only on what is currently in the window.
type Window struct {
	entries []vision.Distribution
	head    int // index of the oldest entry
	size    int
	dim     int
}

// NewWindow creates a window holding at most capacity distributions of the
// given dimension.
func NewWindow(capacity, dim int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be >= 1, got %d", capacity)
	}
	if dim < 1 {
		return nil, fmt.Errorf("window dimension must be >= 1, got %d", dim)
	}
	return &Window{
		entries: make([]vision.Distribution, capacity),
		dim:     dim,
	}, nil
}

// Push appends d, evicting the oldest entry when the window is full.
func (w *Window) Push(d vision.Distribution) error {
	if len(d) != w.dim {
		return fmt.Errorf("%w: window holds %d scores, got %d", vision.ErrShapeMismatch, w.dim, len(d))
	}

	entry := d.Clone()
	if w.size == len(w.entries) {
		w.entries[w.head] = entry
		w.head = (w.head + 1) % len(w.entries)
	} else {
		w.entries[(w.head+w.size)%len(w.entries)] = entry
		w.size++
	}
	return nil
}

// Mean returns the element-wise mean of the entries, summed oldest first.
// ok is false when the window holds nothing.
func (w *Window) Mean() (mean vision.Distribution, ok bool) {
	if w.size == 0 {
		return nil, false
	}
	out := make(vision.Distribution, w.dim)
	for k := 0; k < w.size; k++ {
		for i, v := range w.entries[(w.head+k)%len(w.entries)] {
			out[i] += v
		}
	}
	n := float64(w.size)
	for i := range out {
		out[i] /= n
	}
	return out, true
}

// Len returns the number of entries held.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.entries) }

// Reset drops all entries.
func (w *Window) Reset() {
	for i := range w.entries {
		w.entries[i] = nil
	}
	w.head, w.size = 0, 0
}
