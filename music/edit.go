package music

import (
	"fmt"

	. "github.com/JeanRibes/step-sequencer/shared"
)

const (
	VISIBLE_ROWS   = 12
	DEFAULT_ORIGIN = 60 // C4 on the bottom row
)

// Selection is the highlighted grid cell, independent of the play-head. Row 0
// is the top of the visible note range, Origin its lowest pitch.
type Selection struct {
	Row    int
	Col    int
	Origin int
}

func DefaultSelection() Selection {
	return Selection{Origin: DEFAULT_ORIGIN}
}

func (s Selection) Note() int {
	return s.Origin + VISIBLE_ROWS - 1 - s.Row
}

// move shifts the highlight. Leaving the visible rows scrolls the note range
// instead of wrapping; columns stop at the pattern edges.
func (s Selection) move(dRow, dCol, steps int) Selection {
	s.Row += dRow
	if s.Row < 0 {
		s.Origin = min(s.Origin-s.Row, MAX_NOTE+1-VISIBLE_ROWS)
		s.Row = 0
	}
	if s.Row >= VISIBLE_ROWS {
		s.Origin = max(s.Origin-(s.Row-VISIBLE_ROWS+1), 0)
		s.Row = VISIBLE_ROWS - 1
	}
	s.Col += dCol
	return s.clampCol(steps)
}

func (s Selection) clampCol(steps int) Selection {
	s.Col = min(max(s.Col, 0), steps-1)
	return s
}

// SelectPattern makes index the active pattern right away. Notes left
// sounding by the previous pattern are released and the pulse phase restarts.
func (e *Engine) SelectPattern(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Pattern(index); err != nil {
		return err
	}
	e.logger.Debug("select pattern", "pattern", index)
	e.switchPattern(index)
	e.transport.ResetPulse()
	return nil
}

// QueuePattern switches to index when the play-head next wraps to step 0.
// While stopped the switch is immediate.
func (e *Engine) QueuePattern(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Pattern(index); err != nil {
		return err
	}
	if e.transport.Status() != Playing {
		e.switchPattern(index)
		return nil
	}
	if index == e.pattern {
		e.queued = -1
	} else {
		e.queued = index
	}
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	return nil
}

// Queued returns the pattern waiting for the next wrap, or -1.
func (e *Engine) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queued
}

// SetVelocity clamps v to 0..127 and returns the stored value.
func (e *Engine) SetVelocity(v int) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.Velocity = clampVelocity(v)
	e.post(Message{Type: ParameterChange})
	return e.params.Velocity
}

// SetMidiChannel clamps c to 1..16 and returns the stored value.
func (e *Engine) SetMidiChannel(c int) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.Channel = clampChannel(c)
	e.post(Message{Type: ParameterChange})
	return e.params.Channel
}

// SetPulsesPerStep changes the clock divisor; it applies from the next pulse.
func (e *Engine) SetPulsesPerStep(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.PulsesPerStep = max(n, 1)
	e.post(Message{Type: ParameterChange})
	return e.params.PulsesPerStep
}

func (e *Engine) SetNoteOffChannel(policy ChannelPolicy) {
	e.mu.Lock()
	e.params.NoteOffChannel = policy
	e.mu.Unlock()
}

// SetStepCount previews a new length for a pattern, clamped to 2..32.
func (e *Engine) SetStepCount(pattern, count int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.store.SetStepCount(pattern, count)
	if err != nil {
		return 0, err
	}
	if pattern == e.pattern {
		e.selection = e.selection.clampCol(n)
	}
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	return n, nil
}

// CommitStepCount drops the steps hidden by a previewed shrink. If the
// play-head was on a dropped step it restarts at step 0 as a step boundary.
func (e *Engine) CommitStepCount(pattern int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.store.CommitStepCount(pattern)
	if err != nil {
		return 0, err
	}
	if pattern == e.pattern && e.step >= n {
		e.logger.Debug("play-head clamped by commit", "step", e.step, "steps", n)
		e.releaseAll()
		e.step = 0
		if e.transport.Status() == Playing {
			e.transport.ResetPulse()
			e.enter()
		}
		e.post(Message{Type: StepChange, Number: e.step, Number2: e.pattern})
	}
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	return n, nil
}

// ToggleNote adds or removes a note in a step. Sounding notes stay tracked, so
// removing one only silences it at the next boundary.
func (e *Engine) ToggleNote(pattern, step, note, velocity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggle(pattern, step, note, velocity)
}

func (e *Engine) toggle(pattern, step, note, velocity int) error {
	if err := e.store.ToggleNote(pattern, step, note, velocity); err != nil {
		return fmt.Errorf("toggle pattern %d step %d: %w", pattern, step, err)
	}
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	return nil
}

// ToggleEventAtSelection toggles note at the highlighted step of the active
// pattern with the current velocity.
func (e *Engine) ToggleEventAtSelection(note int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggle(e.pattern, e.selection.Col, note, int(e.params.Velocity))
}

// ToggleSelection toggles the note on the highlighted row.
func (e *Engine) ToggleSelection() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggle(e.pattern, e.selection.Col, e.selection.Note(), int(e.params.Velocity))
}

func (e *Engine) MoveSelection(dRow, dCol int) Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = e.selection.move(dRow, dCol, e.activePattern().StepCount())
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	return e.selection
}

func (e *Engine) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// AddPattern appends an empty default pattern and returns its index.
func (e *Engine) AddPattern() (int, error) {
	return e.AddPatternFrom(NewPattern(DEFAULT_STEPS))
}

func (e *Engine) AddPatternFrom(p *Pattern) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.Len() >= MAX_PATTERNS {
		return 0, fmt.Errorf("%d patterns: %w", e.store.Len(), ErrOutOfRange)
	}
	index := e.store.Add(p)
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	return index, nil
}

// LoadDefaults resets the store to a single empty pattern.
func (e *Engine) LoadDefaults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Reset()
	e.resetCursor()
}

// ReplacePatterns installs an externally built collection, e.g. a loaded file.
func (e *Engine) ReplacePatterns(patterns []*Pattern) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(patterns) > MAX_PATTERNS {
		return fmt.Errorf("%d patterns: %w", len(patterns), ErrOutOfRange)
	}
	if err := e.store.Replace(patterns); err != nil {
		return err
	}
	e.resetCursor()
	return nil
}

// resetCursor puts the play-head on the first pattern after the store was
// swapped. Must hold mu.
func (e *Engine) resetCursor() {
	e.releaseAll()
	e.queued = -1
	e.pattern = 0
	e.step = 0
	e.transport.ResetPulse()
	if e.transport.Status() == Playing {
		e.enter()
	}
	e.selection = e.selection.clampCol(e.activePattern().StepCount())
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
	e.post(Message{Type: StepChange, Number: e.step, Number2: e.pattern})
}
