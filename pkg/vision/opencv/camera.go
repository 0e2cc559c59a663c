package opencv

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// CameraConfig configures a Camera.
type CameraConfig struct {
	// Device is a camera index ("0") or a file/stream path.
	Device string `yaml:"device"`

	// Width and Height request a capture size. Zero keeps the driver default.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DefaultCameraConfig returns the first attached webcam.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Device: "0"}
}

// Camera is a vision.FrameSource reading from a gocv VideoCapture.
type Camera struct {
	cfg    CameraConfig
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	closed bool
}

var _ vision.FrameSource = (*Camera)(nil)

// OpenCamera opens the configured device. If logger is nil, slog.Default()
// is used.
func OpenCamera(cfg CameraConfig, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var device interface{} = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %q: device not available", cfg.Device)
	}

	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	logger.Info("camera opened", "device", cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))

	return &Camera{cfg: cfg, logger: logger, cap: vc}, nil
}

// Next implements vision.FrameSource. A failed or empty read reports
// vision.ErrSourceExhausted.
func (c *Camera) Next() (vision.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, vision.ErrSourceExhausted
	}

	mat := gocv.NewMat()
	if ok := c.cap.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: camera %q returned no frame", vision.ErrSourceExhausted, c.cfg.Device)
	}
	return NewFrame(mat), nil
}

// Close releases the device. Calling it more than once is a no-op.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Debug("camera released", "device", c.cfg.Device)
	return c.cap.Close()
}
