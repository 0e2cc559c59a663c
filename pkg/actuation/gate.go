package actuation

import "github.com/teslashibe/go-itemsense/pkg/smoothing"

// Record remembers the last label a command was successfully sent for.
// The zero value means nothing has been sent.
type Record struct {
	last string
	sent bool
}

// Last returns the last sent label. ok is false before the first send.
func (r *Record) Last() (label string, ok bool) {
	return r.last, r.sent
}

// MarkSent records a successful send for label.
func (r *Record) MarkSent(label string) {
	r.last, r.sent = label, true
}

// Decide returns the command to send for decision, if any. No command is
// produced while unconfirmed, when the label was already actuated or when the
// label has no pin.
func Decide(decision smoothing.Decision, record Record, pins PinMap) (Command, bool) {
	if !decision.IsConfirmed() {
		return Command{}, false
	}
	if last, ok := record.Last(); ok && last == decision.Label {
		return Command{}, false
	}
	pin, ok := pins.Lookup(decision.Label)
	if !ok {
		return Command{}, false
	}
	return Command{Label: decision.Label, Pin: pin}, true
}
