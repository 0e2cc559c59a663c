package smoothing

import "fmt"

// NoVote is the vote cast by a frame that should not count toward any label,
// e.g. when its confidence is below the configured minimum.
const NoVote = ""

// State tags a Decision.
type State int

const (
	// Unconfirmed means no label has completed a streak yet.
	Unconfirmed State = iota

	// Confirmed means Decision.Label is the stable label.
	Confirmed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unconfirmed:
		return "unconfirmed"
	case Confirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Decision is the debounced output of Stability.
type Decision struct {
	State State  `json:"state"`
	Label string `json:"label,omitempty"` // set only when State == Confirmed
}

// IsConfirmed reports whether a label has been confirmed.
func (d Decision) IsConfirmed() bool { return d.State == Confirmed }

// String returns the label, or "-" before the first confirmation.
func (d Decision) String() string {
	if d.State != Confirmed {
		return "-"
	}
	return d.Label
}

// Stability debounces a stream of per-frame votes.
//
// A frame whose vote differs from the current candidate opens a new streak
// and is never itself able to confirm. The candidate is confirmed once
// threshold further frames agree with it. A confirmed label is sticky: it only
// changes when another label completes a full streak, and it never returns
// to Unconfirmed.
type Stability struct {
	threshold int

	candidate    string
	hasCandidate bool
	agree        int // frames agreeing with candidate after the opening frame

	decision Decision
}

// NewStability creates a debouncer requiring threshold agreeing frames.
func NewStability(threshold int) (*Stability, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("stability threshold must be >= 1, got %d", threshold)
	}
	return &Stability{threshold: threshold}, nil
}

// Vote records one frame's label and returns the current decision. changed is
// true only on the frame where the confirmed label switches.
func (s *Stability) Vote(label string) (d Decision, changed bool) {
	if label == NoVote {
		s.candidate, s.hasCandidate, s.agree = "", false, 0
		return s.decision, false
	}

	if !s.hasCandidate || label != s.candidate {
		s.candidate, s.hasCandidate, s.agree = label, true, 0
		return s.decision, false
	}

	if s.agree < s.threshold {
		s.agree++
	}
	if s.agree < s.threshold {
		return s.decision, false
	}
	if s.decision.State == Confirmed && s.decision.Label == s.candidate {
		return s.decision, false
	}

	s.decision = Decision{State: Confirmed, Label: s.candidate}
	return s.decision, true
}

// Decision returns the current decision without voting.
func (s *Stability) Decision() Decision { return s.decision }

// Streak returns the current candidate and how many consecutive frames have
// voted for it, including the opening frame.
func (s *Stability) Streak() (label string, frames int) {
	if !s.hasCandidate {
		return NoVote, 0
	}
	return s.candidate, s.agree + 1
}

// Threshold returns the configured threshold.
func (s *Stability) Threshold() int { return s.threshold }
