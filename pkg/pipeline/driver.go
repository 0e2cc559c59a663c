// Package pipeline runs the camera → classifier → smoother → gate → actuator
// loop.
//
// A Driver is built per run and owns its frame source, actuator and display.
// Run processes one frame per iteration until the source runs dry, the
// operator stops it or ctx is cancelled, then releases each resource exactly
// once:
//
//	d, err := pipeline.New(cfg, camera, classifier, labels,
//		pipeline.WithActuator(link, pins),
//		pipeline.WithDisplay(window))
//	if err != nil {
//		return err
//	}
//	return d.Run(ctx)
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
	"github.com/teslashibe/go-itemsense/pkg/smoothing"
	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// ErrInference wraps classifier failures. They end the run with an error.
var ErrInference = errors.New("pipeline: inference failed")

// errAlreadyRan is returned by a second call to Run.
var errAlreadyRan = errors.New("pipeline: driver already ran")

// State is the driver lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Actuator delivers commands to hardware. *arduino.Serial satisfies it.
type Actuator interface {
	Send(cmd actuation.Command) error
	Close() error
}

// Display shows annotated frames.
type Display interface {
	// Show renders frame with overlay. It returns false when the operator
	// asked to stop. An error means the surface is gone.
	Show(frame vision.Frame, overlay Overlay) (bool, error)
	Close() error
}

// Option configures a Driver.
type Option func(*Driver)

// WithActuator sends commands through a, looking pins up in pins.
func WithActuator(a Actuator, pins actuation.PinMap) Option {
	return func(d *Driver) {
		d.actuator = a
		d.pins = pins
	}
}

// WithDisplay shows every frame on disp.
func WithDisplay(disp Display) Option {
	return func(d *Driver) { d.display = disp }
}

// WithSink publishes snapshots to sink.
func WithSink(sink StatusSink) Option {
	return func(d *Driver) { d.sink = sink }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// Observation is the outcome of one Step.
type Observation struct {
	smoothing.Observation

	// Command is set when the gate produced a command this frame.
	Command *actuation.Command

	// Sent reports whether Command reached the actuator.
	Sent bool

	// SendErr holds the send failure, if any.
	SendErr error
}

// Driver runs one pipeline. It is not reusable.
type Driver struct {
	cfg    Config
	id     string
	logger *slog.Logger

	source     vision.FrameSource
	classifier vision.Classifier
	labels     vision.Labels
	smoother   *smoothing.Smoother

	actuator Actuator
	pins     actuation.PinMap
	record   actuation.Record

	display Display
	sink    StatusSink

	state   atomic.Int32
	started atomic.Bool
	release sync.Once

	frames       atomic.Int64
	commandsSent atomic.Int64
	sendFailures atomic.Int64

	mu   sync.RWMutex
	last Snapshot
}

// New creates a driver in the running state. The driver takes ownership of
// src and of any actuator and display passed as options. The classifier stays
// owned by the caller.
func New(cfg Config, src vision.FrameSource, clf vision.Classifier, labels vision.Labels, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("pipeline: frame source is required")
	}
	if clf == nil {
		return nil, errors.New("pipeline: classifier is required")
	}

	smoother, err := smoothing.New(cfg.Smoothing, labels)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:        cfg,
		id:         uuid.NewString(),
		logger:     slog.Default(),
		source:     src,
		classifier: clf,
		labels:     labels,
		smoother:   smoother,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "pipeline", "run", d.id)
	d.state.Store(int32(StateRunning))
	d.last = Snapshot{RunID: d.id, State: StateRunning.String(), Time: time.Now()}

	if d.actuator != nil {
		if unknown := d.pins.Unknown(labels.Contains); len(unknown) > 0 {
			d.logger.Warn("pin map has labels the model does not know", "labels", unknown)
		}
	}
	return d, nil
}

// ID returns the run ID.
func (d *Driver) ID() string { return d.id }

// State returns the lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Status returns the latest snapshot.
func (d *Driver) Status() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.last
	s.Top = append([]vision.Prediction(nil), d.last.Top...)
	return s
}

// Labels returns the label set.
func (d *Driver) Labels() vision.Labels { return d.labels }

// Pins returns the pin map, nil when actuation is disabled.
func (d *Driver) Pins() actuation.PinMap { return d.pins }

// Run processes frames until a stop condition and then releases resources.
// A frame source failure, operator stop, lost display or cancelled ctx all end
// the run normally and return nil. Inference failures return an error
// wrapping ErrInference.
func (d *Driver) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errAlreadyRan
	}
	defer d.Close()

	d.logger.Info("pipeline started",
		"labels", len(d.labels),
		"window", d.cfg.Smoothing.WindowSize,
		"threshold", d.cfg.Smoothing.Threshold,
		"actuation", d.actuator != nil)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("pipeline stopping", "reason", "context cancelled")
			return nil
		default:
		}

		stop, err := d.iterate()
		if err != nil {
			d.logger.Error("pipeline aborted", "error", err)
			return err
		}
		if stop {
			return nil
		}
	}
}

// iterate handles one frame. stop is true when the loop should end.
func (d *Driver) iterate() (stop bool, err error) {
	frame, err := d.source.Next()
	if err != nil {
		if errors.Is(err, vision.ErrSourceExhausted) {
			d.logger.Info("pipeline stopping", "reason", "frame source exhausted")
		} else {
			d.logger.Warn("pipeline stopping", "reason", "frame acquisition failed", "error", err)
		}
		return true, nil
	}
	defer frame.Close()

	n := d.frames.Add(1)

	dist, err := d.classifier.Classify(frame)
	if err != nil {
		return true, fmt.Errorf("%w: frame %d: %w", ErrInference, n, err)
	}

	obs, err := d.Step(dist)
	if err != nil {
		return true, fmt.Errorf("frame %d: %w", n, err)
	}

	overlay := BuildOverlay(obs.Smoothed, d.labels, d.cfg.TopK, obs.Decision)
	d.publish(n, overlay.Top, obs.Decision)
	d.preview(n, frame)

	if d.display == nil {
		return false, nil
	}
	keep, err := d.display.Show(frame, overlay)
	if err != nil {
		d.logger.Warn("pipeline stopping", "reason", "display lost", "error", err)
		return true, nil
	}
	if !keep {
		d.logger.Info("pipeline stopping", "reason", "operator stop")
		return true, nil
	}
	return false, nil
}

// Step feeds one distribution through the smoother and the gate, sending a
// command when the gate allows it. A distribution that does not match the
// label set is an inference error.
func (d *Driver) Step(dist vision.Distribution) (Observation, error) {
	if err := vision.CheckShape(dist, d.labels); err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	sobs, err := d.smoother.Update(dist)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	obs := Observation{Observation: sobs}

	if sobs.Changed {
		d.logger.Info("label confirmed", "label", sobs.Decision.Label, "confidence", sobs.Top.Confidence)
	}
	if d.actuator == nil {
		return obs, nil
	}

	cmd, ok := actuation.Decide(sobs.Decision, d.record, d.pins)
	if !ok {
		return obs, nil
	}
	obs.Command = &cmd

	if err := d.actuator.Send(cmd); err != nil {
		d.sendFailures.Add(1)
		obs.SendErr = err
		d.logger.Warn("command send failed", "label", cmd.Label, "pin", cmd.Pin, "error", err)
		return obs, nil
	}

	d.record.MarkSent(cmd.Label)
	d.commandsSent.Add(1)
	obs.Sent = true
	d.logger.Info("command sent", "label", cmd.Label, "pin", cmd.Pin)
	return obs, nil
}

func (d *Driver) publish(frame int64, top []vision.Prediction, decision smoothing.Decision) {
	snap := d.snapshot(frame, top, decision)

	d.mu.Lock()
	d.last = snap
	d.mu.Unlock()

	if d.sink != nil {
		d.sink.PublishStatus(snap)
	}
}

func (d *Driver) snapshot(frame int64, top []vision.Prediction, decision smoothing.Decision) Snapshot {
	snap := Snapshot{
		RunID:        d.id,
		State:        d.State().String(),
		Frame:        frame,
		Top:          top,
		Frames:       d.frames.Load(),
		CommandsSent: d.commandsSent.Load(),
		SendFailures: d.sendFailures.Load(),
		Time:         time.Now(),
	}
	if decision.IsConfirmed() {
		snap.Confirmed = decision.Label
	}
	if last, ok := d.record.Last(); ok {
		snap.LastSent = last
	}
	return snap
}

func (d *Driver) preview(n int64, frame vision.Frame) {
	if d.cfg.PreviewEvery == 0 || n%int64(d.cfg.PreviewEvery) != 0 {
		return
	}
	fs, ok := d.sink.(FrameSink)
	if !ok {
		return
	}
	jf, ok := frame.(jpegFrame)
	if !ok {
		return
	}
	data, err := jf.JPEG()
	if err != nil {
		d.logger.Debug("preview encode failed", "error", err)
		return
	}
	fs.PublishFrame(data)
}

// Close moves the driver to stopped, releasing the frame source, actuator and
// display. Only the first call has any effect.
func (d *Driver) Close() error {
	var errs []error
	d.release.Do(func() {
		d.state.Store(int32(StateStopping))

		if err := d.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close frame source: %w", err))
		}
		if d.actuator != nil {
			if err := d.actuator.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close actuator: %w", err))
			}
		}
		if d.display != nil {
			if err := d.display.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close display: %w", err))
			}
		}
		for _, err := range errs {
			d.logger.Warn("release failed", "error", err)
		}

		d.state.Store(int32(StateStopped))

		final := d.Status()
		final.State = StateStopped.String()
		final.Frames = d.frames.Load()
		final.CommandsSent = d.commandsSent.Load()
		final.SendFailures = d.sendFailures.Load()
		final.Time = time.Now()
		d.mu.Lock()
		d.last = final
		d.mu.Unlock()
		if d.sink != nil {
			d.sink.PublishStatus(final)
		}

		d.logger.Info("pipeline stopped",
			"frames", final.Frames,
			"commands_sent", final.CommandsSent,
			"send_failures", final.SendFailures)
	})
	return errors.Join(errs...)
}
