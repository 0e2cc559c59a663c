package vision

import (
	"image"
	"sync"
)

// MockFrame is an in-memory Frame for tests.
type MockFrame struct {
	// Seq is the position of the frame in its source.
	Seq int

	// Size is returned by Bounds. Zero means 640x480.
	Size image.Point

	mu     sync.Mutex
	closed int
}

// Bounds implements Frame.
func (f *MockFrame) Bounds() image.Rectangle {
	if f.Size == (image.Point{}) {
		return image.Rect(0, 0, 640, 480)
	}
	return image.Rectangle{Max: f.Size}
}

// Close implements Frame.
func (f *MockFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Closed returns how many times Close was called.
func (f *MockFrame) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// MockSource implements FrameSource for testing. By default it yields Frames
// MockFrames and then ErrSourceExhausted.
type MockSource struct {
	// Frames is how many frames to yield before reporting exhaustion.
	Frames int

	// NextFunc overrides the default behavior when set.
	NextFunc func(seq int) (Frame, error)

	mu      sync.Mutex
	seq     int
	closed  int
	emitted []*MockFrame
}

// NewMockSource creates a source yielding n frames.
func NewMockSource(n int) *MockSource {
	return &MockSource{Frames: n}
}

// Next implements FrameSource.
func (s *MockSource) Next() (Frame, error) {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	if s.NextFunc != nil {
		return s.NextFunc(seq)
	}
	if seq >= s.Frames {
		return nil, ErrSourceExhausted
	}
	f := &MockFrame{Seq: seq}
	s.mu.Lock()
	s.emitted = append(s.emitted, f)
	s.mu.Unlock()
	return f, nil
}

// Close implements FrameSource.
func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// CloseCount returns how many times Close was called.
func (s *MockSource) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emitted returns the frames handed out by the default Next.
func (s *MockSource) Emitted() []*MockFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MockFrame, len(s.emitted))
	copy(out, s.emitted)
	return out
}

// MockClassifier implements Classifier for testing.
type MockClassifier struct {
	// ClassifyFunc is called when Classify is invoked. When nil, the
	// classifier replays Script, repeating its last entry.
	ClassifyFunc func(frame Frame) (Distribution, error)

	// Script is the sequence of distributions to return.
	Script []Distribution

	// Size is reported by OutputSize. Zero means the length of Script[0].
	Size int

	mu     sync.Mutex
	calls  int
	closed int
}

// NewMockClassifier returns a classifier that replays the given distributions.
func NewMockClassifier(script ...Distribution) *MockClassifier {
	return &MockClassifier{Script: script}
}

// Classify implements Classifier.
func (m *MockClassifier) Classify(frame Frame) (Distribution, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(frame)
	}
	if len(m.Script) == 0 {
		return nil, ErrShapeMismatch
	}
	if call >= len(m.Script) {
		call = len(m.Script) - 1
	}
	return m.Script[call].Clone(), nil
}

// OutputSize implements Sizer. It does not count as a Classify call.
func (m *MockClassifier) OutputSize() (int, error) {
	if m.Size > 0 {
		return m.Size, nil
	}
	if len(m.Script) > 0 {
		return len(m.Script[0]), nil
	}
	return 0, nil
}

// Close implements Classifier.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Calls returns how many times Classify was invoked.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CloseCount returns how many times Close was called.
func (m *MockClassifier) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// OneHot returns a distribution of size n with all mass on index i.
func OneHot(n, i int) Distribution {
	d := make(Distribution, n)
	if i >= 0 && i < n {
		d[i] = 1
	}
	return d
}
