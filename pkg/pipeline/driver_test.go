package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
	"github.com/teslashibe/go-itemsense/pkg/arduino"
	"github.com/teslashibe/go-itemsense/pkg/smoothing"
	"github.com/teslashibe/go-itemsense/pkg/vision"
)

var testLabels = vision.Labels{"banana", "copo", "maca"}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing = smoothing.Config{WindowSize: 1, Threshold: 1}
	cfg.PreviewEvery = 0
	return cfg
}

type fakeDisplay struct {
	mu        sync.Mutex
	shows     int
	stopAfter int // 0 never stops
	err       error
	closes    int
	overlays  []Overlay
}

func (f *fakeDisplay) Show(_ vision.Frame, o Overlay) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shows++
	f.overlays = append(f.overlays, o)
	if f.err != nil {
		return false, f.err
	}
	if f.stopAfter > 0 && f.shows >= f.stopAfter {
		return false, nil
	}
	return true, nil
}

func (f *fakeDisplay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	snaps  []Snapshot
	frames [][]byte
}

func (r *recordingSink) PublishStatus(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingSink) PublishFrame(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, b)
}

type encodableFrame struct {
	*vision.MockFrame
}

func (encodableFrame) JPEG() ([]byte, error) { return []byte{0xff, 0xd8}, nil }

func TestDriver_ScenarioE_ReleasesOnce(t *testing.T) {
	src := vision.NewMockSource(0)
	act := arduino.NewMock()
	disp := &fakeDisplay{}

	d, err := New(fastConfig(), src, vision.NewMockClassifier(vision.OneHot(3, 0)), testLabels,
		WithActuator(act, actuation.PinMap{"banana": 7}),
		WithDisplay(disp))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	d.Close()

	if d.State() != StateStopped {
		t.Errorf("state: got %s, want stopped", d.State())
	}
	if src.CloseCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.CloseCount())
	}
	if act.CloseCount() != 1 {
		t.Errorf("actuator closed %d times, want 1", act.CloseCount())
	}
	if disp.closes != 1 {
		t.Errorf("display closed %d times, want 1", disp.closes)
	}
}

func TestDriver_ScenarioD_RetryAfterSendFailure(t *testing.T) {
	act := arduino.NewMock()
	act.FailNext(1)

	d, err := New(fastConfig(), vision.NewMockSource(4), vision.NewMockClassifier(vision.OneHot(3, 1)), testLabels,
		WithActuator(act, actuation.PinMap{"copo": 8}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Frame 1 opens the streak, frame 2 confirms and fails, frame 3 retries.
	if act.Attempts() != 2 {
		t.Errorf("attempts: got %d, want 2", act.Attempts())
	}
	sent := act.Sent()
	if len(sent) != 1 || sent[0].Pin != 8 {
		t.Errorf("sent: got %v, want one LED:8", sent)
	}

	st := d.Status()
	if st.CommandsSent != 1 || st.SendFailures != 1 {
		t.Errorf("counters: sent=%d failures=%d", st.CommandsSent, st.SendFailures)
	}
	if st.LastSent != "copo" {
		t.Errorf("last sent: got %q", st.LastSent)
	}
}

func TestDriver_Step_FailedSendKeepsRecord(t *testing.T) {
	act := arduino.NewMock()
	d, _ := New(fastConfig(), vision.NewMockSource(0), vision.NewMockClassifier(), testLabels,
		WithActuator(act, actuation.PinMap{"copo": 8}))
	defer d.Close()

	copo := vision.OneHot(3, 1)
	d.Step(copo)

	act.FailNext(1)
	obs, err := d.Step(copo)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if obs.Command == nil || obs.Sent || obs.SendErr == nil {
		t.Fatalf("expected failed send, got %+v", obs)
	}

	obs, _ = d.Step(copo)
	if !obs.Sent {
		t.Fatalf("expected retry to succeed, got %+v", obs)
	}

	obs, _ = d.Step(copo)
	if obs.Command != nil {
		t.Errorf("label already actuated, got command %v", obs.Command)
	}
}

func TestDriver_InferenceErrorIsFatal(t *testing.T) {
	src := vision.NewMockSource(10)
	act := arduino.NewMock()
	clf := &vision.MockClassifier{
		ClassifyFunc: func(vision.Frame) (vision.Distribution, error) {
			return nil, errors.New("bad tensor")
		},
	}

	d, _ := New(fastConfig(), src, clf, testLabels, WithActuator(act, nil))
	err := d.Run(context.Background())

	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
	if clf.Calls() != 1 {
		t.Errorf("classifier called %d times after failure", clf.Calls())
	}
	if src.CloseCount() != 1 || act.CloseCount() != 1 {
		t.Errorf("release counts: source=%d actuator=%d", src.CloseCount(), act.CloseCount())
	}
	for _, f := range src.Emitted() {
		if f.Closed() != 1 {
			t.Errorf("frame %d closed %d times", f.Seq, f.Closed())
		}
	}
}

func TestDriver_ShapeMismatchIsFatal(t *testing.T) {
	d, _ := New(fastConfig(), vision.NewMockSource(3), vision.NewMockClassifier(vision.Distribution{0.5, 0.5}), testLabels)

	err := d.Run(context.Background())
	if !errors.Is(err, ErrInference) || !errors.Is(err, vision.ErrShapeMismatch) {
		t.Errorf("expected ErrInference wrapping ErrShapeMismatch, got %v", err)
	}
}

func TestDriver_NaNScoreIsFatal(t *testing.T) {
	link := arduino.NewMock()
	clf := vision.NewMockClassifier(vision.Distribution{math.NaN(), 0, 0})
	d, _ := New(fastConfig(), vision.NewMockSource(3), clf, testLabels, WithActuator(link, actuation.PinMap{"banana": 7}))

	err := d.Run(context.Background())
	if !errors.Is(err, ErrInference) || !errors.Is(err, vision.ErrInvalidScore) {
		t.Errorf("expected ErrInference wrapping ErrInvalidScore, got %v", err)
	}
	if len(link.Sent()) != 0 {
		t.Errorf("commands sent on corrupt output: %v", link.Sent())
	}
}

func TestDriver_SourceFailureIsNormalStop(t *testing.T) {
	src := &vision.MockSource{
		NextFunc: func(int) (vision.Frame, error) {
			return nil, errors.New("camera unplugged")
		},
	}
	d, _ := New(fastConfig(), src, vision.NewMockClassifier(vision.OneHot(3, 0)), testLabels)

	if err := d.Run(context.Background()); err != nil {
		t.Errorf("expected nil on acquisition failure, got %v", err)
	}
	if src.CloseCount() != 1 {
		t.Errorf("source closed %d times", src.CloseCount())
	}
}

func TestDriver_OperatorStop(t *testing.T) {
	src := vision.NewMockSource(100)
	disp := &fakeDisplay{stopAfter: 2}

	d, _ := New(fastConfig(), src, vision.NewMockClassifier(vision.OneHot(3, 2)), testLabels, WithDisplay(disp))
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if n := len(src.Emitted()); n != 2 {
		t.Errorf("processed %d frames after stop, want 2", n)
	}
	if disp.closes != 1 {
		t.Errorf("display closed %d times", disp.closes)
	}

	last := disp.overlays[len(disp.overlays)-1]
	if last.Status != "confirmed: maca" {
		t.Errorf("overlay status: got %q", last.Status)
	}
	if len(last.Lines) != 3 || last.Lines[0] != "maca: 100.0%" {
		t.Errorf("overlay lines: got %v", last.Lines)
	}
}

func TestDriver_DisplayLostIsNormalStop(t *testing.T) {
	disp := &fakeDisplay{err: errors.New("window destroyed")}
	d, _ := New(fastConfig(), vision.NewMockSource(5), vision.NewMockClassifier(vision.OneHot(3, 0)), testLabels, WithDisplay(disp))

	if err := d.Run(context.Background()); err != nil {
		t.Errorf("expected nil on display loss, got %v", err)
	}
	if disp.shows != 1 {
		t.Errorf("shows: got %d, want 1", disp.shows)
	}
}

func TestDriver_ContextCancelled(t *testing.T) {
	src := vision.NewMockSource(100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, _ := New(fastConfig(), src, vision.NewMockClassifier(vision.OneHot(3, 0)), testLabels)
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(src.Emitted()) != 0 {
		t.Errorf("processed frames after cancellation")
	}
	if src.CloseCount() != 1 {
		t.Errorf("source closed %d times", src.CloseCount())
	}
}

func TestDriver_RunTwice(t *testing.T) {
	d, _ := New(fastConfig(), vision.NewMockSource(0), vision.NewMockClassifier(vision.OneHot(3, 0)), testLabels)
	d.Run(context.Background())

	if err := d.Run(context.Background()); err == nil {
		t.Error("expected error on second Run")
	}
}

func TestDriver_WatchModeNeverSends(t *testing.T) {
	d, _ := New(fastConfig(), vision.NewMockSource(0), vision.NewMockClassifier(), testLabels)
	defer d.Close()

	for i := 0; i < 5; i++ {
		obs, err := d.Step(vision.OneHot(3, 0))
		if err != nil {
			t.Fatal(err)
		}
		if obs.Command != nil {
			t.Fatalf("watch mode produced command %v", obs.Command)
		}
	}
	if !d.smoother.Decision().IsConfirmed() {
		t.Error("expected a confirmed label")
	}
}

func TestDriver_PublishesSnapshots(t *testing.T) {
	sink := &recordingSink{}
	src := &vision.MockSource{}
	src.NextFunc = func(seq int) (vision.Frame, error) {
		if seq >= 4 {
			return nil, vision.ErrSourceExhausted
		}
		return encodableFrame{&vision.MockFrame{Seq: seq}}, nil
	}

	cfg := fastConfig()
	cfg.PreviewEvery = 2
	d, _ := New(cfg, src, vision.NewMockClassifier(vision.OneHot(3, 0)), testLabels, WithSink(sink))
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// One per frame plus the final stopped snapshot.
	if len(sink.snaps) != 5 {
		t.Fatalf("snapshots: got %d, want 5", len(sink.snaps))
	}
	for i, s := range sink.snaps {
		if s.RunID != d.ID() {
			t.Errorf("snapshot %d: run id %q", i, s.RunID)
		}
	}
	if sink.snaps[1].Confirmed != "banana" {
		t.Errorf("frame 2 confirmed: got %q", sink.snaps[1].Confirmed)
	}
	final := sink.snaps[4]
	if final.State != "stopped" || final.Frames != 4 {
		t.Errorf("final snapshot: %+v", final)
	}
	if len(sink.frames) != 2 {
		t.Errorf("previews: got %d, want 2", len(sink.frames))
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := fastConfig()
	cfg.TopK = 0
	if _, err := New(cfg, vision.NewMockSource(0), vision.NewMockClassifier(), testLabels); err == nil {
		t.Error("expected error for top_k=0")
	}
	if _, err := New(fastConfig(), nil, vision.NewMockClassifier(), testLabels); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := New(fastConfig(), vision.NewMockSource(0), nil, testLabels); err == nil {
		t.Error("expected error for nil classifier")
	}
}

func TestFormatPrediction(t *testing.T) {
	got := FormatPrediction(vision.Prediction{Label: "banana", Confidence: 0.973})
	if got != "banana: 97.3%" {
		t.Errorf("got %q", got)
	}
}

func TestBuildOverlay_Unconfirmed(t *testing.T) {
	o := BuildOverlay(vision.Distribution{0.2, 0.5, 0.3}, testLabels, 2, smoothing.Decision{})
	if o.Status != "confirmed: -" {
		t.Errorf("status: got %q", o.Status)
	}
	if len(o.Lines) != 2 || o.Lines[0] != "copo: 50.0%" || o.Lines[1] != "maca: 30.0%" {
		t.Errorf("lines: got %v", o.Lines)
	}
}
