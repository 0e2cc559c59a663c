package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-itemsense/internal/config"
	"github.com/teslashibe/go-itemsense/internal/log"
	"github.com/teslashibe/go-itemsense/pkg/actuation"
	"github.com/teslashibe/go-itemsense/pkg/arduino"
	"github.com/teslashibe/go-itemsense/pkg/models"
	"github.com/teslashibe/go-itemsense/pkg/pipeline"
	"github.com/teslashibe/go-itemsense/pkg/vision"
	"github.com/teslashibe/go-itemsense/pkg/vision/opencv"
	"github.com/teslashibe/go-itemsense/pkg/vision/worker"
	"github.com/teslashibe/go-itemsense/pkg/web"
)

// Version is the application version.
const Version = "0.1.0"

// app carries state shared by subcommands.
type app struct {
	configPath string
	modelsDir  string
	logLevel   string
	dashboard  string
	model      string
	backend    string

	cfg    config.File
	logger *slog.Logger

	// Hardware seams, replaced in tests.
	newClassifier func(art models.Artifact) (vision.Classifier, error)
	openActuator  func(ctx context.Context, cfg arduino.Config) (pipeline.Actuator, error)
	loadFrame     func(path string) (vision.Frame, error)
}

func newApp() *app {
	a := &app{loadFrame: loadImage}
	a.newClassifier = a.openClassifier
	a.openActuator = func(ctx context.Context, cfg arduino.Config) (pipeline.Actuator, error) {
		return arduino.Open(ctx, cfg, a.logger)
	}
	return a
}

func newRootCmd() *cobra.Command {
	return newRootCmdFor(newApp())
}

func newRootCmdFor(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "itemsense",
		Short:         "Classify items on a webcam and signal them on an Arduino",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file (default: itemsense.yaml or config/itemsense.yaml)")
	pf.StringVar(&a.modelsDir, "models-dir", "", "directory holding model artifacts (overrides ITEMSENSE_MODELS_DIR)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&a.dashboard, "dashboard", "", "status dashboard address, e.g. :8090 (empty disables)")
	pf.StringVar(&a.model, "model", "", "model artifact name (default: newest)")
	pf.StringVar(&a.backend, "backend", "", "classifier backend: dnn or worker")

	root.AddCommand(
		newWatchCmd(a),
		newActuateCmd(a),
		newEvaluateCmd(a),
		newModelsCmd(a),
	)
	return root
}

// load builds the effective configuration: defaults, then the file and
// environment, then flags.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if a.modelsDir != "" {
		cfg.Paths.Models = a.modelsDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("dashboard") {
		cfg.Dashboard.Addr = a.dashboard
	}
	if a.model != "" {
		cfg.Model.Name = a.model
	}
	if a.backend != "" {
		cfg.Model.Backend = a.backend
		if a.backend == config.BackendWorker && cfg.Model.Ext == ".onnx" {
			cfg.Model.Ext = ".keras"
		}
	}

	log.Init(cfg.LogLevel)
	a.logger = log.With("cmd", cmd.Name())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log.Debug("config loaded", "models", cfg.Paths.Models, "backend", cfg.Model.Backend, "ext", cfg.Model.Ext)
	a.cfg = cfg
	return nil
}

// resolveModel picks the configured or newest artifact and loads its labels.
func (a *app) resolveModel() (models.Artifact, vision.Labels, error) {
	art, err := models.Resolve(a.cfg.Paths.Models, a.cfg.Model.Name, a.cfg.Model.Ext)
	if err != nil {
		return models.Artifact{}, nil, err
	}
	labels, err := art.Labels()
	if err != nil {
		return models.Artifact{}, nil, err
	}
	a.logger.Info("model selected", "name", art.Name, "labels", len(labels))
	return art, labels, nil
}

// openClassifier starts the configured backend for art.
func (a *app) openClassifier(art models.Artifact) (vision.Classifier, error) {
	switch a.cfg.Model.Backend {
	case config.BackendWorker:
		wcfg := a.cfg.Model.Worker
		wcfg.ModelPath = art.Path
		wcfg.InputSize = a.cfg.Model.InputSize
		w, err := worker.Start(wcfg, a.logger.With("component", "worker"))
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		c, err := opencv.NewDNNClassifier(opencv.ClassifierConfig{
			ModelPath: art.Path,
			InputSize: a.cfg.Model.InputSize,
			Layout:    strings.ToLower(a.cfg.Model.Layout),
			Softmax:   a.cfg.Model.Softmax,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// loadClassifier opens the classifier for art and checks that it scores
// exactly the artifact's labels. The caller closes the result.
func (a *app) loadClassifier(art models.Artifact, labels vision.Labels) (vision.Classifier, error) {
	clf, err := a.newClassifier(art)
	if err != nil {
		return nil, &models.ConfigError{Path: art.Path, Err: err}
	}
	if err := vision.CheckOutputSize(clf, labels); err != nil {
		clf.Close()
		return nil, &models.ConfigError{Path: art.LabelsPath, Err: err}
	}
	return clf, nil
}

// openCamera opens the configured capture device.
func (a *app) openCamera() (*opencv.Camera, error) {
	return opencv.OpenCamera(opencv.CameraConfig{
		Device: a.cfg.Camera.Device,
		Width:  a.cfg.Camera.Width,
		Height: a.cfg.Camera.Height,
	}, a.logger.With("component", "camera"))
}

// startDashboard serves the dashboard in the background when an address is
// configured. It returns nil otherwise.
func (a *app) startDashboard(ctx context.Context, labels vision.Labels, pins actuation.PinMap) *web.Server {
	if a.cfg.Dashboard.Addr == "" {
		return nil
	}
	srv := web.NewServer(a.cfg.Dashboard.Addr, labels, pins, a.logger)
	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Warn("dashboard stopped", "error", err)
		}
	}()
	return srv
}

// runPipeline opens the camera and window around a loaded classifier and runs
// until a stop condition. The driver takes ownership of act, which is nil in
// watch mode; clf stays with the caller.
func (a *app) runPipeline(ctx context.Context, art models.Artifact, labels vision.Labels, clf vision.Classifier, act pipeline.Actuator, pins actuation.PinMap) error {
	cam, err := a.openCamera()
	if err != nil {
		if act != nil {
			act.Close()
		}
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithDisplay(opencv.NewWindow(windowTitle(art))),
	}
	if act != nil {
		opts = append(opts, pipeline.WithActuator(act, pins))
	}
	if srv := a.startDashboard(ctx, labels, pins); srv != nil {
		opts = append(opts, pipeline.WithSink(srv))
	}

	d, err := pipeline.New(a.cfg.Pipeline, cam, clf, labels, opts...)
	if err != nil {
		cam.Close()
		if act != nil {
			act.Close()
		}
		return err
	}

	err = d.Run(ctx)
	if errors.Is(err, pipeline.ErrInference) {
		return fmt.Errorf("run %s: %w", d.ID(), err)
	}
	return err
}

func windowTitle(art models.Artifact) string {
	return "itemsense - " + strings.TrimSuffix(art.Name, filepath.Ext(art.Name))
}
