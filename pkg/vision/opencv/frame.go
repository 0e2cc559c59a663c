// Package opencv implements the vision contracts with gocv: a webcam
// FrameSource, an OpenCV DNN Classifier, a preview Window and still-image
// loading.
package opencv

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame is a BGR image owned by gocv. Close releases the native memory.
type Frame struct {
	mat  gocv.Mat
	once sync.Once
}

// NewFrame wraps mat. The frame takes ownership of it.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{mat: mat}
}

// Mat returns the underlying matrix. It is invalid after Close.
func (f *Frame) Mat() *gocv.Mat { return &f.mat }

// Bounds implements vision.Frame.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// JPEG encodes the frame for previews.
func (f *Frame) JPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.mat)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close implements vision.Frame.
func (f *Frame) Close() error {
	var err error
	f.once.Do(func() { err = f.mat.Close() })
	return err
}
