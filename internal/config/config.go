package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
	"github.com/teslashibe/go-itemsense/pkg/arduino"
	"github.com/teslashibe/go-itemsense/pkg/pipeline"
	"github.com/teslashibe/go-itemsense/pkg/vision/worker"
)

// Classifier backends.
const (
	BackendDNN    = "dnn"
	BackendWorker = "worker"
)

// SearchPaths are tried in order when no config path is given.
var SearchPaths = []string{
	"itemsense.yaml",
	filepath.Join("config", "itemsense.yaml"),
}

// Paths locates on-disk artifacts.
type Paths struct {
	Models   string `yaml:"models"`
	Captures string `yaml:"captures"`
}

// Model selects the model artifact and how to run it.
type Model struct {
	// Name is an artifact file name. Empty selects the newest.
	Name string `yaml:"name"`

	// Backend is BackendDNN or BackendWorker.
	Backend string `yaml:"backend"`

	// Ext is the artifact extension, including the dot.
	Ext string `yaml:"ext"`

	// InputSize is the square edge frames are resized to.
	InputSize int `yaml:"input_size"`

	// Layout is the DNN tensor layout, "nhwc" or "nchw".
	Layout string `yaml:"layout"`

	// Softmax normalizes raw model outputs.
	Softmax bool `yaml:"softmax"`

	// Worker configures the Python worker backend.
	Worker worker.Config `yaml:"worker"`
}

// Camera selects the capture device.
type Camera struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Pins configures the label to pin map.
type Pins struct {
	File string `yaml:"file"`
	Min  int    `yaml:"min"`
	Max  int    `yaml:"max"`
}

// Dashboard configures the status server. An empty Addr disables it.
type Dashboard struct {
	Addr string `yaml:"addr"`
}

// File is the full configuration.
type File struct {
	LogLevel  string          `yaml:"log_level"`
	Paths     Paths           `yaml:"paths"`
	Model     Model           `yaml:"model"`
	Camera    Camera          `yaml:"camera"`
	Pipeline  pipeline.Config `yaml:"pipeline"`
	Serial    arduino.Config  `yaml:"serial"`
	Pins      Pins            `yaml:"pins"`
	Dashboard Dashboard       `yaml:"dashboard"`
}

// Default returns the built-in configuration.
func Default() File {
	return File{
		LogLevel: "info",
		Paths: Paths{
			Models:   "models",
			Captures: filepath.Join("data", "captures"),
		},
		Model: Model{
			Backend:   BackendDNN,
			Ext:       ".onnx",
			InputSize: 224,
			Layout:    "nhwc",
			Worker:    worker.DefaultConfig(),
		},
		Camera:   Camera{Device: "0"},
		Pipeline: pipeline.DefaultConfig(),
		Serial:   arduino.DefaultConfig(),
		Pins: Pins{
			Min: actuation.DefaultPinMin,
			Max: actuation.DefaultPinMax,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. With
// an empty path, ITEMSENSE_CONFIG and then SearchPaths are tried; finding
// no file is not an error.
func Load(path string) (File, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		for _, p := range SearchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return File{}, err
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

func decodeFile(path string, cfg *File) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from ITEMSENSE_* variables.
func (f *File) ApplyEnv() {
	f.Paths.Models = ModelsDir(f.Paths.Models)
	f.Serial.Port = SerialPort(f.Serial.Port)
	f.Camera.Device = CameraDevice(f.Camera.Device)
}

// Validate checks everything except the serial and pin sections, which only
// matter when actuating. See ValidateActuation.
func (f File) Validate() error {
	if f.Paths.Models == "" {
		return errors.New("paths.models is required")
	}
	switch f.Model.Backend {
	case BackendDNN, BackendWorker:
	default:
		return fmt.Errorf("model.backend must be %q or %q, got %q", BackendDNN, BackendWorker, f.Model.Backend)
	}
	if f.Model.Ext == "" {
		return errors.New("model.ext is required")
	}
	if f.Model.InputSize < 1 {
		return fmt.Errorf("model.input_size must be >= 1, got %d", f.Model.InputSize)
	}
	if err := f.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// ValidateActuation checks the serial and pin sections.
func (f File) ValidateActuation() error {
	if err := f.Serial.Validate(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	if f.Pins.File == "" {
		return errors.New("pins.file is required")
	}
	if f.Pins.Min > f.Pins.Max {
		return fmt.Errorf("pins: min %d exceeds max %d", f.Pins.Min, f.Pins.Max)
	}
	return nil
}
