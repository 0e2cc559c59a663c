package actuation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Default inclusive pin range of an Uno-class board's digital outputs.
const (
	DefaultPinMin = 2
	DefaultPinMax = 13
)

// PinMap maps labels to output pins. It is read-only once the pipeline starts.
type PinMap map[string]int

// PinError describes an invalid pin map entry.
type PinError struct {
	// Label is the offending entry.
	Label string

	// Pin is the offending value.
	Pin int

	// Reason says what is wrong.
	Reason string
}

// Error implements the error interface.
func (e *PinError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("actuation: pin map: %s", e.Reason)
	}
	return fmt.Sprintf("actuation: pin map entry %q=%d: %s", e.Label, e.Pin, e.Reason)
}

// LoadPinMap reads a JSON object of label to pin, e.g. {"banana": 7}.
func LoadPinMap(path string) (PinMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pin map: %w", err)
	}
	return ParsePinMap(data)
}

// ParsePinMap decodes a JSON pin map without validating it.
func ParsePinMap(data []byte) (PinMap, error) {
	var pins PinMap
	if err := json.Unmarshal(data, &pins); err != nil {
		return nil, fmt.Errorf("parse pin map: %w", err)
	}
	if pins == nil {
		pins = PinMap{}
	}
	return pins, nil
}

// Validate checks that every pin lies within [min, max], that pins are
// unique and that labels are non-empty. Entries are checked in label order
// so the reported error is stable.
func (p PinMap) Validate(min, max int) error {
	if min > max {
		return &PinError{Reason: fmt.Sprintf("empty pin range [%d,%d]", min, max)}
	}

	owner := make(map[int]string, len(p))
	for _, label := range p.Labels() {
		pin := p[label]
		if label == "" {
			return &PinError{Pin: pin, Reason: "empty label"}
		}
		if pin < min || pin > max {
			return &PinError{Label: label, Pin: pin, Reason: fmt.Sprintf("outside [%d,%d]", min, max)}
		}
		if other, dup := owner[pin]; dup {
			return &PinError{Label: label, Pin: pin, Reason: fmt.Sprintf("already assigned to %q", other)}
		}
		owner[pin] = label
	}
	return nil
}

// Labels returns the mapped labels in sorted order.
func (p PinMap) Labels() []string {
	out := make([]string, 0, len(p))
	for label := range p {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Unknown returns mapped labels that known does not report, sorted.
func (p PinMap) Unknown(known func(label string) bool) []string {
	var out []string
	for _, label := range p.Labels() {
		if !known(label) {
			out = append(out, label)
		}
	}
	return out
}

// Lookup returns the pin for label.
func (p PinMap) Lookup(label string) (int, bool) {
	pin, ok := p[label]
	return pin, ok
}
