package opencv

import (
	"fmt"

	"gocv.io/x/gocv"
)

// LoadImage reads a still image from disk as a Frame.
func LoadImage(path string) (*Frame, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("read image %s: unreadable or unsupported", path)
	}
	return NewFrame(mat), nil
}
