package music

import (
	"errors"
	"reflect"
	"testing"
)

func TestToggleIdempotent(t *testing.T) {
	p := NewPattern(8)
	if err := p.toggle(3, 64, 90); err != nil {
		t.Fatal(err)
	}
	before := p.Steps()
	if err := p.toggle(3, 60, 100); err != nil {
		t.Fatal(err)
	}
	if err := p.toggle(3, 60, 100); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.Steps(), before) {
		t.Errorf("got %v, want %v", p.Steps(), before)
	}
}

func TestToggleVelocityZero(t *testing.T) {
	p := NewPattern(4)
	if err := p.toggle(0, 60, 0); err != nil {
		t.Fatal(err)
	}
	if s, _ := p.Step(0); len(s) != 0 {
		t.Fatalf("velocity 0 inserted %v", s)
	}
	p.toggle(0, 60, 100)
	if err := p.toggle(0, 60, 0); err != nil {
		t.Fatal(err)
	}
	if s, _ := p.Step(0); s.Has(60) {
		t.Errorf("velocity 0 did not remove the existing note: %v", s)
	}
	if err := p.toggle(0, 60, 0); err != nil {
		t.Fatal(err)
	}
	if s, _ := p.Step(0); len(s) != 0 {
		t.Errorf("removed note came back: %v", s)
	}
}

func TestToggleOutOfRange(t *testing.T) {
	p := NewPattern(4)
	tests := []struct {
		name              string
		step, note, veloc int
	}{
		{"step past end", 4, 60, 100},
		{"negative step", -1, 60, 100},
		{"note", 0, 128, 100},
		{"velocity", 0, 60, 128},
	}
	for _, tt := range tests {
		if err := p.toggle(tt.step, tt.note, tt.veloc); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: got %v, want ErrOutOfRange", tt.name, err)
		}
	}
}

func TestStepSorted(t *testing.T) {
	p := NewPattern(2)
	for _, note := range []int{67, 60, 64} {
		p.toggle(0, note, 100)
	}
	s, _ := p.Step(0)
	want := Step{{60, 100}, {64, 100}, {67, 100}}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("got %v, want %v", s, want)
	}
}

func TestSetStepCountClamp(t *testing.T) {
	tests := []struct {
		requested, want int
	}{
		{1, 2},
		{99, 32},
		{-5, 2},
		{2, 2},
		{32, 32},
		{12, 12},
	}
	for _, tt := range tests {
		s := NewStore()
		got, err := s.SetStepCount(0, tt.requested)
		if err != nil {
			t.Fatal(err)
		}
		p, _ := s.Pattern(0)
		if got != tt.want || p.StepCount() != tt.want {
			t.Errorf("SetStepCount(%d) = %d (visible %d), want %d", tt.requested, got, p.StepCount(), tt.want)
		}
	}
}

func TestPreviewKeepsSteps(t *testing.T) {
	s := NewStore(NewPattern(8))
	s.ToggleNote(0, 6, 72, 100)

	s.SetStepCount(0, 4)
	p, _ := s.Pattern(0)
	if p.StepCount() != 4 || !p.Pending() {
		t.Fatalf("preview: count %d pending %t", p.StepCount(), p.Pending())
	}
	if _, err := p.Step(6); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("hidden step readable: %v", err)
	}

	s.SetStepCount(0, 8)
	if p.Pending() {
		t.Error("growing back to the stored length should clear the preview")
	}
	if step, _ := p.Step(6); !step.Has(72) {
		t.Errorf("hidden step lost its content: %v", step)
	}

	s.SetStepCount(0, 4)
	if n, _ := s.CommitStepCount(0); n != 4 {
		t.Fatalf("commit = %d", n)
	}
	s.SetStepCount(0, 8)
	if step, _ := p.Step(6); len(step) != 0 {
		t.Errorf("committed shrink kept %v", step)
	}
}

func TestStoreErrors(t *testing.T) {
	s := NewStore()
	if s.Len() != 1 {
		t.Fatalf("new store has %d patterns", s.Len())
	}
	if p, _ := s.Pattern(0); p.StepCount() != DEFAULT_STEPS || !p.IsEmpty() {
		t.Errorf("default pattern: %d steps, empty %t", p.StepCount(), p.IsEmpty())
	}
	if _, err := s.Pattern(1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Pattern(1): %v", err)
	}
	if _, err := s.SetStepCount(-1, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetStepCount(-1): %v", err)
	}
	if err := s.ToggleNote(0, 16, 60, 100); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ToggleNote past end: %v", err)
	}
	if err := s.Replace(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Replace(nil): %v", err)
	}
	if s.Len() != 1 {
		t.Error("failed replace emptied the store")
	}
}

func TestPatternFromSteps(t *testing.T) {
	if _, err := PatternFromSteps([]Step{{}}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("1 step: %v", err)
	}
	if _, err := PatternFromSteps([]Step{{{200, 1}}, {}}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("note 200: %v", err)
	}
	p, err := PatternFromSteps([]Step{{{64, 90}, {60, 100}, {64, 80}}, {}})
	if err != nil {
		t.Fatal(err)
	}
	s, _ := p.Step(0)
	want := Step{{60, 100}, {64, 80}}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("got %v, want %v", s, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewPattern(4)
	p.toggle(0, 60, 100)
	c := p.Clone()
	p.toggle(0, 60, 100)
	if s, _ := c.Step(0); !s.Has(60) {
		t.Error("clone shares steps with the original")
	}
}
