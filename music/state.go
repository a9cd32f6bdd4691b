package music

import (
	"errors"
	"fmt"
	"io"
	"os"

	. "github.com/JeanRibes/step-sequencer/shared"

	"gopkg.in/yaml.v3"
)

// File is the saved form of a session: every pattern as a list of steps,
// every step as a list of [note, velocity] pairs.
type File struct {
	Velocity      int           `yaml:"velocity"`
	Channel       int           `yaml:"channel"`
	PulsesPerStep int           `yaml:"pulses_per_step"`
	Pattern       int           `yaml:"pattern"`
	Patterns      []PatternFile `yaml:"patterns"`
}

type PatternFile struct {
	Steps []Step `yaml:"steps"`
}

// MarshalYAML writes a step on one line: [[60, 100], [64, 90]]
func (s Step) MarshalYAML() (interface{}, error) {
	pairs := make([][]int, 0, len(s))
	for _, ev := range s {
		pairs = append(pairs, []int{int(ev.Note), int(ev.Velocity)})
	}
	var node yaml.Node
	if err := node.Encode(pairs); err != nil {
		return nil, err
	}
	node.Style = yaml.FlowStyle
	return &node, nil
}

func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var pairs [][]int
	if err := value.Decode(&pairs); err != nil {
		return err
	}
	step := Step{}
	for _, pair := range pairs {
		if len(pair) != 2 {
			return fmt.Errorf("line %d: want [note, velocity], got %v", value.Line, pair)
		}
		note, vel := pair[0], pair[1]
		if note < 0 || note > MAX_NOTE || vel < 0 || vel > MAX_VELOCITY {
			return fmt.Errorf("line %d: [%d, %d]: %w", value.Line, note, vel, ErrOutOfRange)
		}
		step = step.set(NoteEvent{Note: uint8(note), Velocity: uint8(vel)})
	}
	*s = step
	return nil
}

func (f *File) Encode(w io.Writer) (errs error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := enc.Close(); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

func Decode(r io.Reader) (*File, error) {
	f := &File{}
	if err := yaml.NewDecoder(r).Decode(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Export captures the patterns and parameters. A previewed step count is
// saved as the visible length.
func (e *Engine) Export() *File {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := &File{
		Velocity:      int(e.params.Velocity),
		Channel:       int(e.params.Channel),
		PulsesPerStep: e.params.PulsesPerStep,
		Pattern:       e.pattern,
	}
	for _, p := range e.store.patterns {
		f.Patterns = append(f.Patterns, PatternFile{Steps: p.Steps()})
	}
	return f
}

// Import replaces the patterns and parameters with the file content. Nothing
// changes if any pattern is invalid.
func (e *Engine) Import(f *File) (errs error) {
	patterns := make([]*Pattern, 0, len(f.Patterns))
	for i, pf := range f.Patterns {
		p, err := PatternFromSteps(pf.Steps)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("pattern %d: %w", i, err))
			continue
		}
		patterns = append(patterns, p)
	}
	if errs != nil {
		return errs
	}
	if err := e.ReplacePatterns(patterns); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	params := e.params
	// zero means the key is absent: keep the current value
	if f.Velocity != 0 {
		params.Velocity = clampVelocity(f.Velocity)
	}
	if f.Channel != 0 {
		params.Channel = clampChannel(f.Channel)
	}
	if f.PulsesPerStep > 0 {
		params.PulsesPerStep = f.PulsesPerStep
	}
	e.params = params
	e.post(Message{Type: ParameterChange})
	if f.Pattern > 0 && f.Pattern < e.store.Len() {
		e.switchPattern(f.Pattern)
	}
	return nil
}

func (e *Engine) SaveToFile(filepath string) (errs error) {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	if err := e.Export().Encode(file); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := file.Close(); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

func (e *Engine) LoadFromFile(filepath string) error {
	file, err := os.Open(filepath)
	if err != nil {
		return err
	}
	defer file.Close()
	f, err := Decode(file)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath, err)
	}
	return e.Import(f)
}
