// Package actuation decides when a confirmed label becomes a hardware
// command.
//
// Decide is a pure function of the current decision, the Record of what was
// last sent and the PinMap. The caller owns the I/O:
//
//	if cmd, ok := actuation.Decide(decision, record, pins); ok {
//		if err := actuator.Send(cmd); err == nil {
//			record.MarkSent(cmd.Label)
//		}
//	}
package actuation

import (
	"fmt"
	"strconv"
)

// Command is a single hardware instruction.
type Command struct {
	// Label is the confirmed label that produced the command.
	Label string `json:"label"`

	// Pin is the output the microcontroller should drive.
	Pin int `json:"pin"`
}

// Encode returns the wire form, "LED:<pin>\n".
func (c Command) Encode() []byte {
	b := make([]byte, 0, 8)
	b = append(b, "LED:"...)
	b = strconv.AppendInt(b, int64(c.Pin), 10)
	return append(b, '\n')
}

// String returns a human-readable form for logs.
func (c Command) String() string {
	return fmt.Sprintf("%s->LED:%d", c.Label, c.Pin)
}
