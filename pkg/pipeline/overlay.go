package pipeline

import (
	"fmt"

	"github.com/teslashibe/go-itemsense/pkg/smoothing"
	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// Overlay is the text drawn over a displayed frame.
type Overlay struct {
	// Lines holds one "label: 97.3%" entry per top-K prediction.
	Lines []string

	// Status describes the confirmed label, e.g. "confirmed: banana".
	Status string

	// Top is the data behind Lines.
	Top []vision.Prediction
}

// FormatPrediction renders p as "label: 97.3%".
func FormatPrediction(p vision.Prediction) string {
	return fmt.Sprintf("%s: %.1f%%", p.Label, p.Confidence*100)
}

// BuildOverlay formats the top-k smoothed predictions and the decision.
func BuildOverlay(smoothed vision.Distribution, labels vision.Labels, k int, decision smoothing.Decision) Overlay {
	top := vision.TopK(smoothed, labels, k)
	lines := make([]string, len(top))
	for i, p := range top {
		lines[i] = FormatPrediction(p)
	}
	return Overlay{
		Lines:  lines,
		Status: "confirmed: " + decision.String(),
		Top:    top,
	}
}
