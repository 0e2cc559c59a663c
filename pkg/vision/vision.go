// Package vision defines the contracts between the camera, the classifier and
// the rest of the pipeline.
//
// Nothing in this package depends on OpenCV. The gocv-backed implementations
// live in pkg/vision/opencv, and an out-of-process classifier lives in
// pkg/vision/worker. Tests for the pipeline use the mocks in this package.
//
// Example usage:
//
//	labels, _ := vision.NewLabels([]string{"banana", "copo", "maca"})
//	dist, _ := classifier.Classify(frame)
//	idx, conf := vision.TopLabel(dist)
//	fmt.Printf("%s: %.1f%%\n", labels.Name(idx), conf*100)
package vision

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Frame is a single captured image. Frames own native memory in the OpenCV
// backend, so every frame must be closed by whoever received it.
type Frame interface {
	// Bounds returns the pixel dimensions of the frame.
	Bounds() image.Rectangle

	// Close releases the frame.
	Close() error
}

// FrameSource yields frames on demand.
type FrameSource interface {
	// Next blocks until the next frame is available. It returns
	// ErrSourceExhausted when the device has no more frames.
	Next() (Frame, error)

	// Close releases the device.
	Close() error
}

// Classifier maps a frame to a probability distribution over a fixed label
// set. Preprocessing (resize, normalize) is the classifier's concern.
type Classifier interface {
	// Classify runs inference on the frame.
	Classify(frame Frame) (Distribution, error)

	// Close releases the loaded model.
	Close() error
}

// Sizer is implemented by classifiers that can report how many scores they
// produce without a captured frame.
type Sizer interface {
	OutputSize() (int, error)
}

// CheckOutputSize verifies that clf yields one score per label. Classifiers
// that are not Sizers pass and are checked per frame instead.
func CheckOutputSize(clf Classifier, labels Labels) error {
	s, ok := clf.(Sizer)
	if !ok {
		return nil
	}
	n, err := s.OutputSize()
	if err != nil {
		return fmt.Errorf("query output size: %w", err)
	}
	if n != len(labels) {
		return fmt.Errorf("%w: model produces %d scores for %d labels", ErrShapeMismatch, n, len(labels))
	}
	return nil
}

// Labels is the ordered label set of a loaded model. Index i of a
// Distribution is the score of Labels[i].
type Labels []string

// NewLabels validates a label list: it must be non-empty, with no empty or
// duplicate names.
func NewLabels(names []string) (Labels, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: label set is empty", ErrInvalidLabels)
	}
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: label %d is empty", ErrInvalidLabels, i)
		}
		if j, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %q appears at %d and %d", ErrInvalidLabels, n, j, i)
		}
		seen[n] = i
	}
	out := make(Labels, len(names))
	copy(out, names)
	return out, nil
}

// Name returns the label at index i, or "" when i is out of range.
func (l Labels) Name(i int) string {
	if i < 0 || i >= len(l) {
		return ""
	}
	return l[i]
}

// Index returns the index of name, or -1.
func (l Labels) Index(name string) int {
	for i, n := range l {
		if n == name {
			return i
		}
	}
	return -1
}

// Contains reports whether name is in the set.
func (l Labels) Contains(name string) bool {
	return l.Index(name) >= 0
}

// Distribution holds one score per label index, summing to roughly 1.
type Distribution []float64

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	if d == nil {
		return nil
	}
	out := make(Distribution, len(d))
	copy(out, d)
	return out
}

// TopLabel returns the index and score of the highest entry. Ties resolve to
// the lowest index and NaN scores are skipped. An empty or all-NaN
// distribution yields (-1, 0).
func TopLabel(d Distribution) (int, float64) {
	best := -1
	bestScore := 0.0
	for i, v := range d {
		if math.IsNaN(v) {
			continue
		}
		if best == -1 || v > bestScore {
			best = i
			bestScore = v
		}
	}
	return best, bestScore
}

// Prediction is a label with its confidence.
type Prediction struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TopK returns the k best-scoring labels, highest first. Equal scores keep
// label order.
func TopK(d Distribution, labels Labels, k int) []Prediction {
	if k <= 0 || len(d) == 0 {
		return nil
	}
	idx := make([]int, len(d))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return d[idx[a]] > d[idx[b]]
	})
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Prediction, 0, k)
	for _, i := range idx[:k] {
		out = append(out, Prediction{Index: i, Label: labels.Name(i), Confidence: d[i]})
	}
	return out
}

// CheckShape returns ErrShapeMismatch when d does not have one score per
// label, and ErrInvalidScore when a score is NaN or infinite.
func CheckShape(d Distribution, labels Labels) error {
	if len(d) != len(labels) {
		return fmt.Errorf("%w: got %d scores for %d labels", ErrShapeMismatch, len(d), len(labels))
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v for %q", ErrInvalidScore, v, labels.Name(i))
		}
	}
	return nil
}
