package smoothing

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

func TestWindow_Mean(t *testing.T) {
	w, err := NewWindow(2, 2)
	if err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}

	if _, ok := w.Mean(); ok {
		t.Fatal("empty window should report no data")
	}

	w.Push(vision.Distribution{1, 0})
	w.Push(vision.Distribution{0, 1})
	mean, ok := w.Mean()
	if !ok {
		t.Fatal("expected data after two pushes")
	}
	if mean[0] != 0.5 || mean[1] != 0.5 {
		t.Errorf("mean: got %v, want [0.5 0.5]", mean)
	}

	// Third push evicts {1, 0}.
	w.Push(vision.Distribution{0, 1})
	mean, _ = w.Mean()
	if mean[0] != 0 || mean[1] != 1 {
		t.Errorf("mean after eviction: got %v, want [0 1]", mean)
	}
}

func TestWindow_NeverExceedsCapacity(t *testing.T) {
	w, _ := NewWindow(3, 1)
	for i := 0; i < 10; i++ {
		w.Push(vision.Distribution{float64(i)})
		if w.Len() > w.Cap() {
			t.Fatalf("push %d: len %d exceeds cap %d", i, w.Len(), w.Cap())
		}
	}
	if w.Len() != 3 {
		t.Errorf("expected len 3, got %d", w.Len())
	}

	// Holds 7, 8, 9.
	mean, _ := w.Mean()
	if mean[0] != 8 {
		t.Errorf("mean: got %v, want 8", mean[0])
	}
}

func TestWindow_CopiesInput(t *testing.T) {
	w, _ := NewWindow(1, 2)
	d := vision.Distribution{0.2, 0.8}
	w.Push(d)
	d[0] = 100

	mean, _ := w.Mean()
	if mean[0] != 0.2 {
		t.Errorf("window aliased caller slice: got %v", mean)
	}
}

func TestWindow_Reset(t *testing.T) {
	w, _ := NewWindow(2, 1)
	w.Push(vision.Distribution{1})
	w.Reset()

	if w.Len() != 0 {
		t.Errorf("expected empty window, got len %d", w.Len())
	}
	if _, ok := w.Mean(); ok {
		t.Error("reset window should report no data")
	}
}

func TestWindow_ShapeMismatch(t *testing.T) {
	w, _ := NewWindow(2, 3)
	if err := w.Push(vision.Distribution{1, 0}); !errors.Is(err, vision.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestWindow_MeanIgnoresEvicted(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		w, _ := NewWindow(10, 3)

		for i := 0; i < 20000; i++ {
			a, b := rng.Float64(), rng.Float64()
			total := a + b + rng.Float64()
			c := 1 - a/total - b/total
			w.Push(vision.Distribution{a / total, b / total, c})
		}
		for i := 0; i < 10; i++ {
			w.Push(vision.Distribution{0.5, 0.5, 0})
		}

		mean, _ := w.Mean()
		if mean[0] != 0.5 || mean[1] != 0.5 || mean[2] != 0 {
			t.Fatalf("seed %d: mean = %v, want [0.5 0.5 0]", seed, mean)
		}
		if idx, _ := vision.TopLabel(mean); idx != 0 {
			t.Fatalf("seed %d: TopLabel = %d, want 0", seed, idx)
		}
	}
}

func TestNewWindow_Invalid(t *testing.T) {
	if _, err := NewWindow(0, 2); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := NewWindow(2, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestStability_ScenarioA(t *testing.T) {
	s, err := NewStability(2)
	if err != nil {
		t.Fatalf("NewStability() error = %v", err)
	}

	votes := []string{"X", "X", "Y", "Y", "Y"}
	want := []string{"-", "-", "-", "-", "Y"}
	wantChanged := []bool{false, false, false, false, true}

	for i, v := range votes {
		d, changed := s.Vote(v)
		if d.String() != want[i] {
			t.Errorf("vote %d (%s): decision %s, want %s", i+1, v, d, want[i])
		}
		if changed != wantChanged[i] {
			t.Errorf("vote %d (%s): changed %v, want %v", i+1, v, changed, wantChanged[i])
		}
	}
}

func TestStability_Sticky(t *testing.T) {
	s, _ := NewStability(2)

	for _, v := range []string{"X", "X", "X"} {
		s.Vote(v)
	}
	if d := s.Decision(); !d.IsConfirmed() || d.Label != "X" {
		t.Fatalf("expected X confirmed, got %+v", d)
	}

	// One disagreeing frame keeps X.
	if d, changed := s.Vote("Y"); d.Label != "X" || changed {
		t.Errorf("single disagreement reverted decision: %+v changed=%v", d, changed)
	}

	// Re-confirming the same label is not a change.
	for _, v := range []string{"X", "X", "X"} {
		if _, changed := s.Vote(v); changed {
			t.Errorf("re-confirming X reported a change")
		}
	}

	// A full Y streak takes over.
	var last Decision
	for _, v := range []string{"Y", "Y", "Y"} {
		last, _ = s.Vote(v)
	}
	if last.Label != "Y" {
		t.Errorf("expected Y after full streak, got %+v", last)
	}

	// Never returns to Unconfirmed.
	for i := 0; i < 5; i++ {
		if d, _ := s.Vote(NoVote); !d.IsConfirmed() {
			t.Fatal("decision returned to unconfirmed")
		}
	}
}

func TestStability_NoVoteBreaksStreak(t *testing.T) {
	s, _ := NewStability(1)

	s.Vote("X")
	s.Vote(NoVote)
	if d, _ := s.Vote("X"); d.IsConfirmed() {
		t.Fatal("X confirmed across a NoVote gap")
	}
	if d, changed := s.Vote("X"); !d.IsConfirmed() || !changed {
		t.Errorf("expected X confirmed on second consecutive vote, got %+v changed=%v", d, changed)
	}
}

func TestStability_Streak(t *testing.T) {
	s, _ := NewStability(3)

	if label, n := s.Streak(); label != NoVote || n != 0 {
		t.Errorf("fresh streak: got %q/%d", label, n)
	}
	s.Vote("A")
	s.Vote("A")
	if label, n := s.Streak(); label != "A" || n != 2 {
		t.Errorf("streak: got %q/%d, want A/2", label, n)
	}
}

func TestNewStability_Invalid(t *testing.T) {
	if _, err := NewStability(0); err == nil {
		t.Error("expected error for threshold 0")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero window", func(c *Config) { c.WindowSize = 0 }, true},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }, true},
		{"negative confidence", func(c *Config) { c.MinConfidence = -0.1 }, true},
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.5 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSmoother_SmoothedVote(t *testing.T) {
	labels := vision.Labels{"a", "b"}
	s, err := New(Config{WindowSize: 3, Threshold: 1}, labels)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, ok := s.Smoothed(); ok {
		t.Fatal("expected no smoothed output before first frame")
	}

	steps := []struct {
		in       vision.Distribution
		vote     string
		decision string
		changed  bool
	}{
		{vision.OneHot(2, 1), "b", "-", false},
		{vision.OneHot(2, 1), "b", "b", true},
		{vision.OneHot(2, 0), "b", "b", false}, // mean still favors b
		{vision.OneHot(2, 0), "a", "b", false}, // opens a streak
		{vision.OneHot(2, 0), "a", "a", true},
	}

	for i, st := range steps {
		obs, err := s.Update(st.in)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if obs.Vote != st.vote {
			t.Errorf("step %d: vote %q, want %q", i, obs.Vote, st.vote)
		}
		if obs.Decision.String() != st.decision {
			t.Errorf("step %d: decision %s, want %s", i, obs.Decision, st.decision)
		}
		if obs.Changed != st.changed {
			t.Errorf("step %d: changed %v, want %v", i, obs.Changed, st.changed)
		}
	}
}

func TestSmoother_RawVote(t *testing.T) {
	labels := vision.Labels{"a", "b"}
	s, _ := New(Config{WindowSize: 3, Threshold: 1, VoteRaw: true}, labels)

	s.Update(vision.OneHot(2, 1))
	s.Update(vision.OneHot(2, 1))
	s.Update(vision.OneHot(2, 0))
	obs, _ := s.Update(vision.OneHot(2, 0))

	if obs.Decision.Label != "a" || !obs.Changed {
		t.Errorf("raw votes should confirm a on the second frame, got %+v", obs)
	}
	if obs.Top.Label != "a" {
		// Smoothed mean is {2/3, 1/3} here.
		t.Errorf("smoothed top: got %q, want a", obs.Top.Label)
	}
}

func TestSmoother_MinConfidence(t *testing.T) {
	labels := vision.Labels{"a", "b"}
	s, _ := New(Config{WindowSize: 1, Threshold: 1, MinConfidence: 0.6}, labels)

	for i := 0; i < 3; i++ {
		obs, _ := s.Update(vision.Distribution{0.55, 0.45})
		if obs.Vote != NoVote {
			t.Fatalf("frame %d: expected NoVote below min confidence, got %q", i, obs.Vote)
		}
		if obs.Decision.IsConfirmed() {
			t.Fatalf("frame %d: low-confidence frames confirmed a label", i)
		}
	}

	s.Update(vision.Distribution{0.9, 0.1})
	obs, _ := s.Update(vision.Distribution{0.9, 0.1})
	if obs.Decision.Label != "a" {
		t.Errorf("expected a confirmed, got %+v", obs.Decision)
	}
}

func TestSmoother_ShapeMismatch(t *testing.T) {
	s, _ := New(DefaultConfig(), vision.Labels{"a", "b"})
	if _, err := s.Update(vision.Distribution{1}); !errors.Is(err, vision.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestSmoother_Deterministic(t *testing.T) {
	run := func() []string {
		s, _ := New(Config{WindowSize: 4, Threshold: 2}, vision.Labels{"a", "b", "c"})
		inputs := []vision.Distribution{
			{0.2, 0.5, 0.3}, {0.4, 0.4, 0.2}, {0.1, 0.1, 0.8},
			{0.1, 0.2, 0.7}, {0.3, 0.3, 0.4}, {0.0, 0.1, 0.9},
		}
		var out []string
		for _, in := range inputs {
			obs, _ := s.Update(in)
			out = append(out, obs.Vote+"/"+obs.Decision.String())
		}
		return out
	}

	first := run()
	for i := 0; i < 10; i++ {
		again := run()
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d diverged at step %d: %s vs %s", i, j, again[j], first[j])
			}
		}
	}
}
