package music

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	. "github.com/JeanRibes/step-sequencer/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"
)

const TICKS = smf.MetricTicks(960)

// PULSES_PER_QUARTER is the MIDI clock rate.
const PULSES_PER_QUARTER = 24

// ticksPerStep converts the clock divisor into SMF ticks at resolution.
func ticksPerStep(resolution smf.MetricTicks, pulsesPerStep int) uint32 {
	return uint32(resolution.Ticks4th()) * uint32(max(pulsesPerStep, 1)) / PULSES_PER_QUARTER
}

// Track renders the visible steps as an SMF track, each note lasting one
// step. Velocity-0 events are skipped like during playback.
func (p *Pattern) Track(name string, channel uint8, pulsesPerStep int) smf.Track {
	tr := smf.Track{}
	if name != "" {
		tr.Add(0, smf.MetaTrackSequenceName(name))
	}
	length := ticksPerStep(TICKS, pulsesPerStep)
	var delta uint32
	for i := 0; i < p.StepCount(); i++ {
		s := p.steps[i]
		for _, ev := range s {
			if ev.Velocity == 0 {
				continue
			}
			tr.Add(delta, midi.NoteOn(channel, ev.Note, ev.Velocity))
			delta = 0
		}
		delta += length
		for _, ev := range s {
			if ev.Velocity == 0 {
				continue
			}
			tr.Add(delta, midi.NoteOff(channel, ev.Note))
			delta = 0
		}
	}
	tr.Close(delta)
	return tr
}

// ExportSMF writes the given patterns, one track each, to w. With no index
// every pattern is written.
func (e *Engine) ExportSMF(w io.Writer, patterns ...int) error {
	e.mu.Lock()
	params := e.params
	if len(patterns) == 0 {
		for i := range e.store.patterns {
			patterns = append(patterns, i)
		}
	}
	tracks := make([]smf.Track, 0, len(patterns))
	for _, index := range patterns {
		p, err := e.store.Pattern(index)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		tracks = append(tracks, p.Track(PatternName(index), params.Channel-1, params.PulsesPerStep))
	}
	e.mu.Unlock()

	f := smf.New()
	f.TimeFormat = TICKS
	for _, tr := range tracks {
		if err := f.Add(tr); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

/*
ImportSMF maps the note-ons of the first track holding notes onto steps of
pulsesPerStep clock pulses. Onsets are rounded to the nearest step; notes past
the last possible step are dropped. With quantize the file first goes through
the quantizer, which helps with live-played recordings.
*/
func ImportSMF(r io.Reader, pulsesPerStep int, quantize bool) (*Pattern, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if quantize {
		var out bytes.Buffer
		if err := quantizer.Quantize(bytes.NewReader(data), &out); err != nil {
			return nil, fmt.Errorf("quantize: %w", err)
		}
		data = out.Bytes()
	}
	f, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	resolution, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("time format %v: %w", f.TimeFormat, ErrInvalidState)
	}
	for _, tr := range f.Tracks {
		if steps, ok := importTrack(tr, ticksPerStep(resolution, pulsesPerStep)); ok {
			return PatternFromSteps(steps)
		}
	}
	return nil, errors.New("no notes in file")
}

func importTrack(tr smf.Track, length uint32) ([]Step, bool) {
	if length == 0 {
		length = 1
	}
	steps := make([]Step, MAX_STEPS)
	for i := range steps {
		steps[i] = Step{}
	}
	var ch, key, vel uint8
	var abs, end uint32
	last := -1
	for _, ev := range tr {
		abs += ev.Delta
		end = abs
		if !ev.Message.GetNoteOn(&ch, &key, &vel) || vel == 0 {
			continue
		}
		index := int((abs + length/2) / length)
		if index >= MAX_STEPS {
			continue
		}
		steps[index] = steps[index].set(NoteEvent{Note: key, Velocity: vel})
		last = max(last, index)
	}
	if last < 0 {
		return nil, false
	}
	count := int((end + length - 1) / length)
	count = clampSteps(max(count, last+1))
	return steps[:count], true
}

// ImportSMF appends the pattern read from r and returns its index.
func (e *Engine) ImportSMF(r io.Reader, quantize bool) (int, error) {
	p, err := ImportSMF(r, e.Parameters().PulsesPerStep, quantize)
	if err != nil {
		return 0, err
	}
	return e.AddPatternFrom(p)
}

/*
Scheduler puts a queue between the engine and a port. The returned sink keeps
the order of messages and only blocks when the queue is full. Whatever is
queued when ctx ends is still sent, so the last note-offs reach the port;
wait returns once that is done and the port can be closed.
*/
func Scheduler(ctx context.Context, send func(midi.Message) error) (sink func(midi.Message) error, wait func()) {
	logger := charmlog.FromContext(ctx)
	queue := make(chan midi.Message, 256)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case msg := <-queue:
				if err := send(msg); err != nil {
					logger.Error("scheduler", "msg", msg.String(), "err", err)
				}
			case <-ctx.Done():
				for {
					select {
					case msg := <-queue:
						if err := send(msg); err != nil {
							logger.Error("scheduler", "msg", msg.String(), "err", err)
						}
					default:
						return
					}
				}
			}
		}
	}()

	sink = func(m midi.Message) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		select {
		case queue <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sink, func() { <-done }
}
