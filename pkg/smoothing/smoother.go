// Package smoothing turns a noisy per-frame classifier stream into a stable
// label decision.
//
// A Smoother averages the last N distributions in a Window, picks one vote per
// frame and feeds it to a Stability debouncer:
//
//	s, _ := smoothing.New(smoothing.DefaultConfig(), labels)
//	obs, _ := s.Update(dist)
//	if obs.Changed {
//		fmt.Println("now seeing", obs.Decision.Label)
//	}
package smoothing

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// Config configures a Smoother.
type Config struct {
	// WindowSize is how many recent frames are averaged.
	WindowSize int `yaml:"window_size"`

	// Threshold is how many agreeing frames after the first are needed to
	// confirm a label.
	Threshold int `yaml:"threshold"`

	// MinConfidence turns a frame's vote into NoVote when the voted label
	// scores below it. Zero disables the check.
	MinConfidence float64 `yaml:"min_confidence"`

	// VoteRaw votes with the per-frame argmax instead of the smoothed one.
	VoteRaw bool `yaml:"vote_raw"`
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		WindowSize: 10,
		Threshold:  5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be >= 1, got %d", c.WindowSize)
	}
	if c.Threshold < 1 {
		return fmt.Errorf("threshold must be >= 1, got %d", c.Threshold)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1], got %v", c.MinConfidence)
	}
	return nil
}

// Observation is the outcome of feeding one distribution to a Smoother.
type Observation struct {
	// Smoothed is the window mean after this frame.
	Smoothed vision.Distribution

	// Top is the top label of Smoothed.
	Top vision.Prediction

	// Vote is the label this frame voted for, or NoVote.
	Vote string

	// Decision is the stability decision after this frame.
	Decision Decision

	// Changed is true when this frame switched the confirmed label.
	Changed bool
}

// Smoother combines a Window and a Stability debouncer.
type Smoother struct {
	cfg       Config
	labels    vision.Labels
	window    *Window
	stability *Stability
}

// New creates a Smoother for the given label set.
func New(cfg Config, labels vision.Labels) (*Smoother, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("smoother needs at least one label")
	}

	window, err := NewWindow(cfg.WindowSize, len(labels))
	if err != nil {
		return nil, err
	}
	stability, err := NewStability(cfg.Threshold)
	if err != nil {
		return nil, err
	}

	return &Smoother{
		cfg:       cfg,
		labels:    labels,
		window:    window,
		stability: stability,
	}, nil
}

// Observe pushes d onto the window without voting.
func (s *Smoother) Observe(d vision.Distribution) error {
	return s.window.Push(d)
}

// Smoothed returns the window mean. ok is false before the first Observe.
func (s *Smoother) Smoothed() (vision.Distribution, bool) {
	return s.window.Mean()
}

// Update observes d, votes and returns the resulting Observation.
func (s *Smoother) Update(d vision.Distribution) (Observation, error) {
	if err := s.Observe(d); err != nil {
		return Observation{}, err
	}

	smoothed, _ := s.Smoothed()
	topIdx, topConf := vision.TopLabel(smoothed)
	obs := Observation{
		Smoothed: smoothed,
		Top: vision.Prediction{
			Index:      topIdx,
			Label:      s.labels.Name(topIdx),
			Confidence: topConf,
		},
	}

	obs.Vote = s.vote(d, topIdx, topConf)
	obs.Decision, obs.Changed = s.stability.Vote(obs.Vote)
	return obs, nil
}

func (s *Smoother) vote(raw vision.Distribution, smoothedIdx int, smoothedConf float64) string {
	idx, conf := smoothedIdx, smoothedConf
	if s.cfg.VoteRaw {
		idx, conf = vision.TopLabel(raw)
	}
	if idx < 0 || conf < s.cfg.MinConfidence {
		return NoVote
	}
	return s.labels.Name(idx)
}

// Decision returns the current stability decision.
func (s *Smoother) Decision() Decision { return s.stability.Decision() }

// Streak returns the current candidate and its run length.
func (s *Smoother) Streak() (string, int) { return s.stability.Streak() }

// Window exposes the underlying window.
func (s *Smoother) Window() *Window { return s.window }

// Labels returns the label set.
func (s *Smoother) Labels() vision.Labels { return s.labels }
