package music

import (
	"io"
	"sync"

	. "github.com/JeanRibes/step-sequencer/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// ChannelPolicy decides which channel a note-off goes out on.
type ChannelPolicy int

const (
	// ChannelAtNoteOn sends the off on the channel the note was started on.
	ChannelAtNoteOn ChannelPolicy = iota
	// ChannelAtNoteOff sends the off on the channel configured when it fires.
	ChannelAtNoteOff
)

const (
	DEFAULT_VELOCITY        = 100
	DEFAULT_CHANNEL         = 1
	DEFAULT_PULSES_PER_STEP = 6 // 16th notes at 24 pulses per quarter
	MIN_CHANNEL             = 1
	MAX_CHANNEL             = 16
)

type Parameters struct {
	Velocity       uint8
	Channel        uint8 // 1..16
	PulsesPerStep  int
	NoteOffChannel ChannelPolicy
}

func DefaultParameters() Parameters {
	return Parameters{
		Velocity:      DEFAULT_VELOCITY,
		Channel:       DEFAULT_CHANNEL,
		PulsesPerStep: DEFAULT_PULSES_PER_STEP,
	}
}

func clampVelocity(v int) uint8 {
	return uint8(min(max(v, 0), MAX_VELOCITY))
}

func clampChannel(c int) uint8 {
	return uint8(min(max(c, MIN_CHANNEL), MAX_CHANNEL))
}

func (p Parameters) clamped() Parameters {
	p.Velocity = clampVelocity(int(p.Velocity))
	p.Channel = clampChannel(int(p.Channel))
	p.PulsesPerStep = max(p.PulsesPerStep, 1)
	return p
}

// Cursor is the play-head position.
type Cursor struct {
	Pattern int
	Step    int
	Pulse   int
	Status  Status
}

const silent = -1

/*
Engine owns the pattern store, the parameters and the play-head. Clock input
(Tick, Start, Stop, Continue) and edits both go through the same mutex, so a
step boundary always reads a complete step and emits its note-offs before its
note-ons. MIDI goes out through send while the lock is held: send must not
block for long, use Scheduler in front of a real port.
*/
type Engine struct {
	mu        sync.Mutex
	store     *Store
	params    Parameters
	transport Transport
	pattern   int
	step      int
	queued    int                // pattern to switch to at the next wrap, -1 for none
	sounding  [MAX_NOTE + 1]int8 // channel each pitch was started on, silent otherwise
	selection Selection
	send      func(midi.Message) error
	notify    func(Message)
	logger    *charmlog.Logger
}

type Option func(*Engine)

func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

func WithParameters(p Parameters) Option {
	return func(e *Engine) { e.params = p.clamped() }
}

func WithLogger(l *charmlog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithNotifier(fn func(Message)) Option {
	return func(e *Engine) { e.notify = fn }
}

func NewEngine(send func(midi.Message) error, opts ...Option) *Engine {
	e := &Engine{
		params:    DefaultParameters(),
		queued:    -1,
		selection: DefaultSelection(),
		send:      send,
	}
	for i := range e.sounding {
		e.sounding[i] = silent
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = NewStore()
	}
	if e.logger == nil {
		e.logger = charmlog.New(io.Discard)
	}
	return e
}

// SetSink replaces the MIDI output. Notes still sounding on the old sink are
// released there first.
func (e *Engine) SetSink(send func(midi.Message) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseAll()
	e.send = send
}

func (e *Engine) SetNotifier(fn func(Message)) {
	e.mu.Lock()
	e.notify = fn
	e.mu.Unlock()
}

// HandleMessage feeds one decoded clock or transport message. Anything else is
// ignored. It never fails: it runs inside the MIDI input callback.
func (e *Engine) HandleMessage(msg midi.Message) {
	switch {
	case msg.Is(midi.TimingClockMsg):
		e.Tick()
	case msg.Is(midi.StartMsg):
		e.Start()
	case msg.Is(midi.ContinueMsg):
		e.Continue()
	case msg.Is(midi.StopMsg):
		e.Stop()
	}
}

func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport.Tick(e.params.PulsesPerStep) {
		e.advance()
	}
}

// Start plays from step 0. Anything still sounding is released first.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Info("start")
	e.releaseAll()
	e.transport.Start()
	if e.queued >= 0 {
		e.switchPattern(e.queued)
	}
	e.step = 0
	e.enter()
	e.post(Message{Type: TransportChange, Boolean: true})
	e.post(Message{Type: StepChange, Number: e.step, Number2: e.pattern})
}

// Continue resumes where Stop left the play-head.
func (e *Engine) Continue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport.Status() == Playing {
		return
	}
	e.logger.Info("continue", "step", e.step, "pulse", e.transport.Pulse())
	e.transport.Continue()
	e.post(Message{Type: TransportChange, Boolean: true})
}

// Stop halts and releases every sounding note before returning.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Info("stop", "step", e.step)
	e.releaseAll()
	e.transport.Stop()
	e.post(Message{Type: TransportChange, Boolean: false})
}

// AllNotesOff releases every sounding note without touching the transport.
func (e *Engine) AllNotesOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseAll()
}

// advance runs one step boundary. Must hold mu.
func (e *Engine) advance() {
	e.releaseAll()
	count := e.activePattern().StepCount()
	if e.step >= count {
		e.logger.Warn("play-head past pattern end, restarting", "step", e.step, "steps", count, "err", ErrTransportDesync)
	}
	next := e.step + 1
	if next >= count {
		next = 0
		if e.queued >= 0 {
			e.switchPattern(e.queued)
		}
	}
	e.step = next
	e.logger.Debug("step", "pattern", e.pattern, "index", e.step)
	e.enter()
	e.post(Message{Type: StepChange, Number: e.step, Number2: e.pattern})
}

// enter emits note-ons for the current step. Must hold mu.
func (e *Engine) enter() {
	for _, ev := range e.activePattern().stepAt(e.step) {
		if ev.Velocity == 0 {
			continue
		}
		e.noteOn(ev.Note, ev.Velocity)
	}
}

func (e *Engine) noteOn(note, velocity uint8) {
	if e.sounding[note] != silent {
		e.noteOff(note)
	}
	ch := e.params.Channel - 1
	e.emit(midi.NoteOn(ch, note, velocity))
	e.sounding[note] = int8(ch)
}

func (e *Engine) noteOff(note uint8) {
	ch := uint8(e.sounding[note])
	if e.params.NoteOffChannel == ChannelAtNoteOff {
		ch = e.params.Channel - 1
	}
	e.emit(midi.NoteOff(ch, note))
	e.sounding[note] = silent
}

// releaseAll sends a note-off for every sounding pitch, lowest first. Must
// hold mu.
func (e *Engine) releaseAll() {
	for note := range e.sounding {
		if e.sounding[note] != silent {
			e.noteOff(uint8(note))
		}
	}
}

func (e *Engine) emit(msg midi.Message) {
	if e.send == nil {
		return
	}
	if err := e.send(msg); err != nil {
		e.logger.Error("send", "msg", msg.String(), "err", err)
	}
}

func (e *Engine) post(msg Message) {
	if e.notify != nil {
		e.notify(msg)
	}
}

func (e *Engine) activePattern() *Pattern {
	p, err := e.store.Pattern(e.pattern)
	if err != nil {
		// the store shrank under the cursor; fall back to the first pattern
		e.logger.Warn("active pattern missing", "pattern", e.pattern, "err", err)
		e.pattern = 0
		e.step = 0
		p, _ = e.store.Pattern(0)
	}
	return p
}

// switchPattern makes index active, releasing whatever the previous pattern
// left sounding. Must hold mu.
func (e *Engine) switchPattern(index int) {
	e.releaseAll()
	e.pattern = index
	e.queued = -1
	if e.step >= e.activePattern().StepCount() {
		e.step = 0
	}
	e.selection = e.selection.clampCol(e.activePattern().StepCount())
	e.post(Message{Type: PatternChange, Number: e.pattern, Number2: e.store.Len()})
}

func (e *Engine) Cursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor()
}

func (e *Engine) cursor() Cursor {
	return Cursor{
		Pattern: e.pattern,
		Step:    e.step,
		Pulse:   e.transport.Pulse(),
		Status:  e.transport.Status(),
	}
}

func (e *Engine) Parameters() Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Sounding lists the pitches waiting for a note-off.
func (e *Engine) Sounding() []uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.soundingNotes()
}

func (e *Engine) soundingNotes() []uint8 {
	notes := []uint8{}
	for note, ch := range e.sounding {
		if ch != silent {
			notes = append(notes, uint8(note))
		}
	}
	return notes
}

// Pattern returns a copy of a stored pattern.
func (e *Engine) Pattern(index int) (*Pattern, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.store.Pattern(index)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (e *Engine) PatternCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Len()
}

// Snapshot is a consistent copy of everything a display needs.
type Snapshot struct {
	Cursor       Cursor
	Params       Parameters
	Selection    Selection
	Pattern      *Pattern
	PatternCount int
	Queued       int
	Sounding     []uint8
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Cursor:       e.cursor(),
		Params:       e.params,
		Selection:    e.selection,
		Pattern:      e.activePattern().Clone(),
		PatternCount: e.store.Len(),
		Queued:       e.queued,
		Sounding:     e.soundingNotes(),
	}
}
