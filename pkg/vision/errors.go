package vision

import "errors"

// Sentinel errors for common conditions.
var (
	// ErrSourceExhausted is returned by FrameSource.Next when no further
	// frames can be read (device unplugged, end of file).
	ErrSourceExhausted = errors.New("vision: frame source exhausted")

	// ErrShapeMismatch is returned when a classifier output does not match
	// the label set.
	ErrShapeMismatch = errors.New("vision: classifier output does not match label set")

	// ErrInvalidScore is returned when a classifier output holds NaN or
	// infinite scores.
	ErrInvalidScore = errors.New("vision: classifier output is not finite")

	// ErrUnsupportedFrame is returned when a classifier receives a frame type
	// it cannot read.
	ErrUnsupportedFrame = errors.New("vision: unsupported frame type")

	// ErrInvalidLabels is returned for empty or duplicate label sets.
	ErrInvalidLabels = errors.New("vision: invalid label set")
)
