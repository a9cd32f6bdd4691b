package music

import (
	"fmt"
	"slices"
)

const (
	MIN_STEPS     = 2
	MAX_STEPS     = 32
	DEFAULT_STEPS = 16
	MAX_NOTE      = 127
	MAX_VELOCITY  = 127
)

type NoteEvent struct {
	Note     uint8
	Velocity uint8
}

// Step holds the events triggered together, at most one per pitch, kept
// sorted by note so emission order is stable.
type Step []NoteEvent

func (s Step) find(note uint8) (int, bool) {
	return slices.BinarySearchFunc(s, note, func(ev NoteEvent, n uint8) int {
		return int(ev.Note) - int(n)
	})
}

func (s Step) Has(note uint8) bool {
	_, ok := s.find(note)
	return ok
}

func (s Step) Velocity(note uint8) (uint8, bool) {
	if i, ok := s.find(note); ok {
		return s[i].Velocity, true
	}
	return 0, false
}

// set inserts or replaces the event for ev.Note.
func (s Step) set(ev NoteEvent) Step {
	i, ok := s.find(ev.Note)
	if ok {
		s[i] = ev
		return s
	}
	return slices.Insert(s, i, ev)
}

func (s Step) remove(note uint8) Step {
	if i, ok := s.find(note); ok {
		return slices.Delete(s, i, i+1)
	}
	return s
}

func (s Step) Clone() Step {
	if len(s) == 0 {
		return Step{}
	}
	return slices.Clone(s)
}

/*
Pattern is an ordered list of steps. Shrinking the step count is staged:
SetStepCount only changes the visible length (pending), the trailing steps are
dropped by CommitStepCount. Growing appends empty steps right away.
*/
type Pattern struct {
	steps   []Step
	pending int // visible step count while a shrink is previewed, 0 otherwise
}

func clampSteps(n int) int {
	return min(max(n, MIN_STEPS), MAX_STEPS)
}

func NewPattern(stepCount int) *Pattern {
	p := &Pattern{steps: make([]Step, clampSteps(stepCount))}
	for i := range p.steps {
		p.steps[i] = Step{}
	}
	return p
}

// PatternFromSteps builds a pattern from step contents, e.g. a loaded file.
// Duplicate pitches within a step keep the last velocity.
func PatternFromSteps(steps []Step) (*Pattern, error) {
	if len(steps) < MIN_STEPS || len(steps) > MAX_STEPS {
		return nil, fmt.Errorf("pattern has %d steps, want %d..%d: %w", len(steps), MIN_STEPS, MAX_STEPS, ErrOutOfRange)
	}
	p := &Pattern{steps: make([]Step, len(steps))}
	for i, s := range steps {
		p.steps[i] = Step{}
		for _, ev := range s {
			if ev.Note > MAX_NOTE || ev.Velocity > MAX_VELOCITY {
				return nil, fmt.Errorf("step %d: note %d velocity %d: %w", i, ev.Note, ev.Velocity, ErrOutOfRange)
			}
			p.steps[i] = p.steps[i].set(ev)
		}
	}
	return p, nil
}

func (p *Pattern) StepCount() int {
	if p.pending > 0 {
		return p.pending
	}
	return len(p.steps)
}

// Pending reports whether a step count change waits for CommitStepCount.
func (p *Pattern) Pending() bool {
	return p.pending > 0
}

func (p *Pattern) Step(index int) (Step, error) {
	if index < 0 || index >= p.StepCount() {
		return nil, fmt.Errorf("step %d of %d: %w", index, p.StepCount(), ErrOutOfRange)
	}
	return p.steps[index].Clone(), nil
}

// Steps returns a copy of the visible steps.
func (p *Pattern) Steps() []Step {
	out := make([]Step, p.StepCount())
	for i := range out {
		out[i] = p.steps[i].Clone()
	}
	return out
}

// stepAt returns the stored step without copying; nil past the storage.
func (p *Pattern) stepAt(index int) Step {
	if index < 0 || index >= len(p.steps) {
		return nil
	}
	return p.steps[index]
}

func (p *Pattern) IsEmpty() bool {
	for _, s := range p.Steps() {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

func (p *Pattern) Clone() *Pattern {
	c := &Pattern{steps: make([]Step, len(p.steps)), pending: p.pending}
	for i, s := range p.steps {
		c.steps[i] = s.Clone()
	}
	return c
}

func (p *Pattern) setStepCount(n int) int {
	n = clampSteps(n)
	for len(p.steps) < n {
		p.steps = append(p.steps, Step{})
	}
	if n == len(p.steps) {
		p.pending = 0
	} else {
		p.pending = n
	}
	return n
}

func (p *Pattern) commitStepCount() int {
	if p.pending > 0 {
		p.steps = p.steps[:p.pending]
		p.pending = 0
	}
	return len(p.steps)
}

// toggle removes the event for note if present, otherwise inserts it. A
// velocity of 0 never inserts.
func (p *Pattern) toggle(step int, note, velocity int) error {
	if step < 0 || step >= p.StepCount() {
		return fmt.Errorf("step %d of %d: %w", step, p.StepCount(), ErrOutOfRange)
	}
	if note < 0 || note > MAX_NOTE {
		return fmt.Errorf("note %d: %w", note, ErrOutOfRange)
	}
	if velocity < 0 || velocity > MAX_VELOCITY {
		return fmt.Errorf("velocity %d: %w", velocity, ErrOutOfRange)
	}
	s := p.steps[step]
	if s.Has(uint8(note)) {
		p.steps[step] = s.remove(uint8(note))
		return nil
	}
	if velocity == 0 {
		return nil
	}
	p.steps[step] = s.set(NoteEvent{Note: uint8(note), Velocity: uint8(velocity)})
	return nil
}

// Store owns the patterns. It never becomes empty.
type Store struct {
	patterns []*Pattern
}

func NewStore(patterns ...*Pattern) *Store {
	s := &Store{}
	if len(patterns) == 0 {
		s.patterns = []*Pattern{NewPattern(DEFAULT_STEPS)}
	} else {
		s.patterns = patterns
	}
	return s
}

func (s *Store) Len() int {
	return len(s.patterns)
}

func (s *Store) Pattern(index int) (*Pattern, error) {
	if index < 0 || index >= len(s.patterns) {
		return nil, fmt.Errorf("pattern %d of %d: %w", index, len(s.patterns), ErrOutOfRange)
	}
	return s.patterns[index], nil
}

func (s *Store) SetStepCount(pattern, count int) (int, error) {
	p, err := s.Pattern(pattern)
	if err != nil {
		return 0, err
	}
	return p.setStepCount(count), nil
}

func (s *Store) CommitStepCount(pattern int) (int, error) {
	p, err := s.Pattern(pattern)
	if err != nil {
		return 0, err
	}
	return p.commitStepCount(), nil
}

func (s *Store) ToggleNote(pattern, step, note, velocity int) error {
	p, err := s.Pattern(pattern)
	if err != nil {
		return err
	}
	return p.toggle(step, note, velocity)
}

func (s *Store) Add(p *Pattern) int {
	s.patterns = append(s.patterns, p)
	return len(s.patterns) - 1
}

func (s *Store) Replace(patterns []*Pattern) error {
	if len(patterns) == 0 {
		return fmt.Errorf("no patterns: %w", ErrInvalidState)
	}
	s.patterns = patterns
	return nil
}

func (s *Store) Reset() {
	s.patterns = []*Pattern{NewPattern(DEFAULT_STEPS)}
}
