// Package worker classifies frames in a Python subprocess that loads a Keras
// model directly, for models that cannot be exported to ONNX.
//
// Requests go over the child's stdin and responses come back on a dedicated
// pipe (fd 3) so stray prints from TensorFlow never corrupt the stream.
//
// Request:  [len uint32][jpeg bytes]
// Response: [len uint32][status byte][body]
//
//	status 0: [n uint32][n x float32 scores]
//	status 1: [msgLen uint32][utf-8 error message]
//
// All integers and floats are big-endian.
package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

const (
	statusOK    = 0
	statusError = 1

	// maxResponse bounds a response so a corrupt header cannot allocate
	// gigabytes.
	maxResponse = 1 << 20

	// blankEdge sizes the OutputSize image when no input size is configured.
	blankEdge = 32
)

// ErrProtocol is returned for malformed worker responses.
var ErrProtocol = errors.New("worker: protocol error")

// Config configures a Python worker.
type Config struct {
	// Python is the interpreter to run.
	Python string `yaml:"python"`

	// Script is the worker entry point.
	Script string `yaml:"script"`

	// ModelPath is passed to the script as its only argument.
	ModelPath string `yaml:"-"`

	// InputSize is exported to the script as ITEMSENSE_IMG_SIZE. Zero keeps
	// the script default.
	InputSize int `yaml:"-"`
}

// DefaultConfig returns the bundled worker script settings.
func DefaultConfig() Config {
	return Config{
		Python: "python3",
		Script: "scripts/keras_worker.py",
	}
}

// jpegFrame is implemented by frames that can encode themselves.
type jpegFrame interface {
	JPEG() ([]byte, error)
}

// Worker is a vision.Classifier backed by a Python process.
type Worker struct {
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	cmd    *exec.Cmd
	logger *slog.Logger
	size   int

	mu     sync.Mutex
	closed bool
}

var (
	_ vision.Classifier = (*Worker)(nil)
	_ vision.Sizer      = (*Worker)(nil)
)

// Start launches the worker process. If logger is nil, slog.Default() is used.
func Start(cfg Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("worker: model path is required")
	}

	cmd := exec.Command(cfg.Python, "-u", cfg.Script, cfg.ModelPath)
	cmd.Stderr = os.Stderr
	if cfg.InputSize > 0 {
		cmd.Env = append(os.Environ(), "ITEMSENSE_IMG_SIZE="+strconv.Itoa(cfg.InputSize))
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("worker: create pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker: start %s: %w", cfg.Script, err)
	}
	// Only the child keeps the write end.
	w.Close()

	logger.Info("classifier worker started", "pid", cmd.Process.Pid, "model", cfg.ModelPath)
	return &Worker{Stdin: stdin, DataPipe: r, cmd: cmd, logger: logger, size: cfg.InputSize}, nil
}

// Classify implements vision.Classifier. The frame must be JPEG-encodable.
func (w *Worker) Classify(frame vision.Frame) (vision.Distribution, error) {
	jf, ok := frame.(jpegFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", vision.ErrUnsupportedFrame, frame)
	}
	data, err := jf.JPEG()
	if err != nil {
		return nil, err
	}
	return w.ClassifyJPEG(data)
}

// ClassifyJPEG sends one encoded image and returns the scores.
func (w *Worker) ClassifyJPEG(data []byte) (vision.Distribution, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.New("worker: closed")
	}

	resp, err := w.communicate(data)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// OutputSize classifies a blank gray image and reports how many scores the
// model produces.
func (w *Worker) OutputSize() (int, error) {
	edge := w.size
	if edge < 1 {
		edge = blankEdge
	}
	img := image.NewGray(image.Rect(0, 0, edge, edge))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return 0, fmt.Errorf("worker: encode blank image: %w", err)
	}

	dist, err := w.ClassifyJPEG(buf.Bytes())
	if err != nil {
		return 0, err
	}
	return len(dist), nil
}

func (w *Worker) communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, fmt.Errorf("worker: write header: %w", err)
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, fmt.Errorf("worker: write body: %w", err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, fmt.Errorf("worker: read header: %w", err)
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxResponse {
		return nil, fmt.Errorf("%w: response of %d bytes", ErrProtocol, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, fmt.Errorf("worker: read body: %w", err)
	}
	return body, nil
}

func decodeResponse(resp []byte) (vision.Distribution, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty response", ErrProtocol)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: missing length", ErrProtocol)
	}

	switch status {
	case statusOK:
		if int(n)*4 != r.Len() {
			return nil, fmt.Errorf("%w: %d scores declared, %d bytes left", ErrProtocol, n, r.Len())
		}
		dist := make(vision.Distribution, n)
		for i := range dist {
			var bits uint32
			binary.Read(r, binary.BigEndian, &bits)
			dist[i] = float64(math.Float32frombits(bits))
		}
		return dist, nil

	case statusError:
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("%w: truncated error message", ErrProtocol)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)

	default:
		return nil, fmt.Errorf("%w: unknown status %d", ErrProtocol, status)
	}
}

// Close shuts the worker down and waits for it to exit.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.Stdin.Close()
	w.DataPipe.Close()
	if w.cmd == nil {
		return nil
	}
	if err := w.cmd.Wait(); err != nil {
		w.logger.Debug("classifier worker exited", "error", err)
	}
	return nil
}
