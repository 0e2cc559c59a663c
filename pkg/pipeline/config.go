package pipeline

import (
	"fmt"

	"github.com/teslashibe/go-itemsense/pkg/smoothing"
)

// Config configures a Driver.
type Config struct {
	// Smoothing configures the window and debounce.
	Smoothing smoothing.Config `yaml:"smoothing"`

	// TopK is how many predictions the overlay lists.
	TopK int `yaml:"top_k"`

	// PreviewEvery publishes a JPEG preview every N frames when the sink
	// accepts frames. Zero disables previews.
	PreviewEvery int `yaml:"preview_every"`
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Smoothing:    smoothing.DefaultConfig(),
		TopK:         3,
		PreviewEvery: 5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Smoothing.Validate(); err != nil {
		return fmt.Errorf("smoothing: %w", err)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	if c.PreviewEvery < 0 {
		return fmt.Errorf("preview_every must not be negative, got %d", c.PreviewEvery)
	}
	return nil
}
