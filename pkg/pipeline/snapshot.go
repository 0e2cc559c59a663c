package pipeline

import (
	"time"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// Snapshot is a point-in-time view of a run, published after every frame.
type Snapshot struct {
	RunID        string              `json:"run_id"`
	State        string              `json:"state"`
	Frame        int64               `json:"frame"`
	Top          []vision.Prediction `json:"top"`
	Confirmed    string              `json:"confirmed,omitempty"`
	LastSent     string              `json:"last_sent,omitempty"`
	Frames       int64               `json:"frames"`
	CommandsSent int64               `json:"commands_sent"`
	SendFailures int64               `json:"send_failures"`
	Time         time.Time           `json:"time"`
}

// StatusSink receives snapshots. PublishStatus must not block the caller.
type StatusSink interface {
	PublishStatus(s Snapshot)
}

// FrameSink is an optional StatusSink extension that receives JPEG previews.
type FrameSink interface {
	PublishFrame(jpeg []byte)
}

// jpegFrame is implemented by frames that can encode themselves.
type jpegFrame interface {
	JPEG() ([]byte, error)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(s Snapshot)

// PublishStatus implements StatusSink.
func (f SinkFunc) PublishStatus(s Snapshot) { f(s) }
