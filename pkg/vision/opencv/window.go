package opencv

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-itemsense/pkg/pipeline"
	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// errWindowClosed is returned by Show once the operator closed the window.
var errWindowClosed = errors.New("display window closed")

const (
	keyQ   = 'q'
	keyEsc = 27
)

var (
	overlayBackground = color.RGBA{0, 0, 0, 0}
	overlayText       = color.RGBA{255, 255, 255, 0}
)

// Window is a pipeline.Display backed by a HighGUI window.
type Window struct {
	win     *gocv.Window
	visible bool
}

var _ pipeline.Display = (*Window)(nil)

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show draws the overlay on frame and displays it. It returns false when the
// operator pressed q or Esc.
func (w *Window) Show(frame vision.Frame, overlay pipeline.Overlay) (bool, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return false, vision.ErrUnsupportedFrame
	}
	if w.visible && !w.win.IsOpen() {
		return false, errWindowClosed
	}

	img := f.Mat()
	for i, line := range overlay.Lines {
		drawLabel(img, line, image.Pt(30, 60+i*50))
	}
	drawLabel(img, overlay.Status, image.Pt(30, img.Rows()-30))

	w.win.IMShow(*img)
	w.visible = true

	switch w.win.WaitKey(1) & 0xff {
	case keyQ, keyEsc:
		return false, nil
	}
	return true, nil
}

// drawLabel writes text at pos over a filled black box.
func drawLabel(img *gocv.Mat, text string, pos image.Point) {
	const (
		scale     = 1.0
		thickness = 2
	)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, thickness)
	box := image.Rect(pos.X-5, pos.Y-size.Y-10, pos.X+size.X+5, pos.Y+10)
	gocv.Rectangle(img, box, overlayBackground, -1)
	gocv.PutText(img, text, pos, gocv.FontHersheySimplex, scale, overlayText, thickness)
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
