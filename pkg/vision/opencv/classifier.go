package opencv

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// Tensor layouts accepted by ClassifierConfig.Layout.
const (
	// LayoutNHWC feeds a [1,H,W,3] tensor, as Keras exports expect.
	LayoutNHWC = "nhwc"

	// LayoutNCHW feeds a [1,3,H,W] blob, as most ONNX vision models expect.
	LayoutNCHW = "nchw"
)

// ClassifierConfig configures a DNNClassifier.
type ClassifierConfig struct {
	// ModelPath is an ONNX, TensorFlow or Caffe model readable by cv::dnn.
	ModelPath string `yaml:"model_path"`

	// InputSize is the square edge the frame is resized to.
	InputSize int `yaml:"input_size"`

	// Layout is LayoutNHWC or LayoutNCHW.
	Layout string `yaml:"layout"`

	// Softmax normalizes raw logits. Leave false for models ending in softmax.
	Softmax bool `yaml:"softmax"`
}

// DefaultClassifierConfig returns settings for a Keras classifier exported to
// ONNX.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		InputSize: 224,
		Layout:    LayoutNHWC,
	}
}

// Validate checks the configuration.
func (c ClassifierConfig) Validate() error {
	if c.InputSize < 1 {
		return fmt.Errorf("input_size must be >= 1, got %d", c.InputSize)
	}
	if c.Layout != LayoutNHWC && c.Layout != LayoutNCHW {
		return fmt.Errorf("layout must be %q or %q, got %q", LayoutNHWC, LayoutNCHW, c.Layout)
	}
	return nil
}

// DNNClassifier runs a model with OpenCV's dnn module. Frames are resized to
// InputSize, kept in BGR order and scaled to [0,1].
type DNNClassifier struct {
	net gocv.Net
	cfg ClassifierConfig
	mu  sync.Mutex
}

var (
	_ vision.Classifier = (*DNNClassifier)(nil)
	_ vision.Sizer      = (*DNNClassifier)(nil)
)

// NewDNNClassifier loads the model at cfg.ModelPath.
func NewDNNClassifier(cfg ClassifierConfig) (*DNNClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNNClassifier{net: net, cfg: cfg}, nil
}

// Classify implements vision.Classifier. Only *Frame is supported.
func (c *DNNClassifier) Classify(frame vision.Frame) (vision.Distribution, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", vision.ErrUnsupportedFrame, frame)
	}
	return c.ClassifyMat(*f.Mat())
}

// ClassifyMat runs inference on a BGR image.
func (c *DNNClassifier) ClassifyMat(img gocv.Mat) (vision.Distribution, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	input, err := c.tensor(img)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	c.net.SetInput(input, "")
	output := c.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	dist := make(vision.Distribution, len(data))
	for i, v := range data {
		dist[i] = float64(v)
	}
	if c.cfg.Softmax {
		softmax(dist)
	}
	return dist, nil
}

// OutputSize runs one forward pass on a black image and reports how many
// scores the model produces.
func (c *DNNClassifier) OutputSize() (int, error) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), c.cfg.InputSize, c.cfg.InputSize, gocv.MatTypeCV8UC3)
	defer blank.Close()

	dist, err := c.ClassifyMat(blank)
	if err != nil {
		return 0, err
	}
	return len(dist), nil
}

// tensor preprocesses img into the network input.
func (c *DNNClassifier) tensor(img gocv.Mat) (gocv.Mat, error) {
	size := image.Pt(c.cfg.InputSize, c.cfg.InputSize)

	if c.cfg.Layout == LayoutNCHW {
		return gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), false, false), nil
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationLinear)

	scaled := gocv.NewMat()
	defer scaled.Close()
	resized.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	t, err := gocv.NewMatWithSizesFromBytes([]int{1, size.Y, size.X, 3}, gocv.MatTypeCV32F, scaled.ToBytes())
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("build input tensor: %w", err)
	}
	return t, nil
}

// Close releases the network.
func (c *DNNClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}

func softmax(d vision.Distribution) {
	if len(d) == 0 {
		return
	}
	max := d[0]
	for _, v := range d[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range d {
		d[i] = math.Exp(v - max)
		sum += d[i]
	}
	for i := range d {
		d[i] /= sum
	}
}
