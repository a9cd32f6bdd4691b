package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JeanRibes/step-sequencer/music"
	. "github.com/JeanRibes/step-sequencer/shared"

	tea "github.com/charmbracelet/bubbletea"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
	"gitlab.com/gomidi/midi/v2"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	soundingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fc0"))
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	playheadStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f55"))
)

const (
	VELOCITY_STEP = 8
	MAX_ERRORS    = 4
)

type promptKind int

const (
	noPrompt promptKind = iota
	promptOpen
	promptSave
	promptImport
	promptExport
)

func (k promptKind) String() string {
	switch k {
	case promptOpen:
		return "open"
	case promptSave:
		return "save as"
	case promptImport:
		return "import MIDI file"
	case promptExport:
		return "export MIDI file"
	}
	return ""
}

/*
Model is the grid editor. It reads the engine through snapshots only; every
change goes to the MIDI loop over SinkLoop, and the loop's notifications on
SinkUI trigger a repaint.
*/
type Model struct {
	engine        *music.Engine
	SinkUI        <-chan Message
	SinkLoop      chan<- Message
	MasterControl chan<- Message
	prefs         *Preferences
	logger        *charmlog.Logger

	snap     music.Snapshot
	errors   []string
	prompt   promptKind
	input    string
	browser  fileBrowser
	quantize bool // for the pending import
	allPats  bool // for the pending export
	quitting bool
}

func NewModel(engine *music.Engine, prefs *Preferences, logger *charmlog.Logger, SinkUI <-chan Message, SinkLoop, MasterControl chan<- Message) Model {
	if prefs == nil {
		prefs = &Preferences{}
	}
	return Model{
		engine:        engine,
		SinkUI:        SinkUI,
		SinkLoop:      SinkLoop,
		MasterControl: MasterControl,
		prefs:         prefs,
		logger:        logger,
		snap:          engine.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return listenForBus(m.SinkUI)
}

// send hands an edit to the loop. It never blocks the UI: while the loop is
// restarting the edit is dropped.
func (m Model) send(msg Message) {
	select {
	case m.SinkLoop <- msg:
	default:
		m.logger.Warn("loop not listening, edit dropped", "type", msg.Type)
	}
}

func (m Model) control(msg Message) {
	select {
	case m.MasterControl <- msg:
	default:
		m.logger.Warn("supervisor busy", "type", msg.Type)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompt != noPrompt {
			return m.updatePrompt(msg)
		}
		return m.updateGrid(msg)
	case busMsg:
		return m.handleBus(Message(msg))
	}
	return m, nil
}

func (m Model) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.snap
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.quitting = true
		m.control(Message{Type: Quit})
		return m, tea.Quit

	case "up", "k":
		m.send(Message{Type: MoveSelection, Number: -1})
	case "down", "j":
		m.send(Message{Type: MoveSelection, Number: 1})
	case "left", "h":
		m.send(Message{Type: MoveSelection, Number2: -1})
	case "right", "l":
		m.send(Message{Type: MoveSelection, Number2: 1})
	case "K": // octave up
		m.send(Message{Type: MoveSelection, Number: -12})
	case "J":
		m.send(Message{Type: MoveSelection, Number: 12})
	case " ":
		m.send(Message{Type: ToggleSelection})

	case "+", "=":
		m.send(Message{Type: SetVelocity, Number: int(snap.Params.Velocity) + VELOCITY_STEP})
	case "-", "_":
		m.send(Message{Type: SetVelocity, Number: int(snap.Params.Velocity) - VELOCITY_STEP})
	case "c":
		m.send(Message{Type: SetChannel, Number: int(snap.Params.Channel) + 1})
	case "C":
		m.send(Message{Type: SetChannel, Number: int(snap.Params.Channel) - 1})
	case ">":
		m.send(Message{Type: SetPulsesPerStep, Number: snap.Params.PulsesPerStep + 1})
	case "<":
		m.send(Message{Type: SetPulsesPerStep, Number: snap.Params.PulsesPerStep - 1})

	case "]":
		m.send(Message{Type: SetStepCount, Number: snap.Pattern.StepCount() + 1})
	case "[":
		m.send(Message{Type: SetStepCount, Number: snap.Pattern.StepCount() - 1})
	case "enter":
		if snap.Pattern.Pending() {
			m.send(Message{Type: CommitStepCount})
		}

	case "tab":
		m.send(Message{Type: QueuePattern, Number: (snap.Cursor.Pattern + 1) % snap.PatternCount})
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.send(Message{Type: SelectPattern, Number: int(key[0] - '1')})
	case "n":
		m.send(Message{Type: AddPattern})
	case "D":
		m.send(Message{Type: LoadDefaults})

	case "p":
		if snap.Cursor.Status == music.Playing {
			m.send(Message{Type: TransportStop})
		} else {
			m.send(Message{Type: TransportStart})
		}
	case "P":
		m.send(Message{Type: TransportContinue})
	case "!":
		m.send(Message{Type: Panic})
	case "r":
		m.control(Message{Type: RestartMIDI})
	case "x":
		m.errors = nil

	case "o":
		m = m.openPrompt(promptOpen, m.prefs.Sessions())
	case "s":
		m = m.openPrompt(promptSave, m.prefs.Sessions())
	case "i", "I":
		m = m.openPrompt(promptImport, m.prefs.Tracks())
		m.quantize = key == "I"
	case "e", "E":
		m = m.openPrompt(promptExport, m.prefs.Tracks())
		m.allPats = key == "E"
	}
	return m, nil
}

func (m Model) openPrompt(kind promptKind, recent RecentFiles) Model {
	m.prompt = kind
	m.input = ""
	m.browser = newFileBrowser(recent)
	return m
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.prompt = noPrompt
	case tea.KeyEnter:
		path := strings.TrimSpace(m.input)
		if path != "" {
			m.submit(path)
		}
		m.prompt = noPrompt
	case tea.KeyUp, tea.KeyDown:
		delta := 1
		if msg.Type == tea.KeyUp {
			delta = -1
		}
		m.browser = m.browser.move(delta)
		if rf, ok := m.browser.selected(); ok {
			m.input = rf.Path
		}
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			r := []rune(m.input)
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

func withExt(path, ext string) string {
	if filepath.Ext(path) == "" {
		return path + ext
	}
	return path
}

func (m Model) submit(path string) {
	switch m.prompt {
	case promptOpen:
		m.send(Message{Type: StateImport, String: path})
		m.prefs.AddSession(path)
	case promptSave:
		path = withExt(path, ".yaml")
		m.send(Message{Type: StateExport, String: path})
		m.prefs.AddSession(path)
	case promptImport:
		m.send(Message{Type: PatternImport, String: path, Boolean: m.quantize})
		m.prefs.AddTrack(path)
	case promptExport:
		path = withExt(path, ".mid")
		pattern := m.snap.Cursor.Pattern
		if m.allPats {
			pattern = -1
		}
		m.send(Message{Type: PatternExport, String: path, Number: pattern})
		m.prefs.AddTrack(path)
	}
	if err := m.prefs.Save(); err != nil {
		m.logger.Error("save preferences", "err", err)
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	snap := m.snap
	var sb strings.Builder

	queued := ""
	if snap.Queued >= 0 {
		queued = " next " + PatternName(snap.Queued)
	}
	pending := ""
	if snap.Pattern.Pending() {
		pending = " (enter to commit)"
	}
	sb.WriteString(titleStyle.Render(fmt.Sprintf("step-sequencer  %s  pattern %s %d/%d%s  step %02d/%02d%s",
		snap.Cursor.Status, PatternName(snap.Cursor.Pattern), snap.Cursor.Pattern+1, snap.PatternCount, queued,
		snap.Cursor.Step+1, snap.Pattern.StepCount(), pending)))
	sb.WriteByte('\n')
	sb.WriteString(statusStyle.Render(fmt.Sprintf("vel %3d  ch %2d  pulses/step %d",
		snap.Params.Velocity, snap.Params.Channel, snap.Params.PulsesPerStep)))
	sb.WriteString("\n\n")
	sb.WriteString(m.grid())
	sb.WriteByte('\n')

	if m.prompt != noPrompt {
		sb.WriteString(fmt.Sprintf("%s: %s_\n", m.prompt, m.input))
		sb.WriteString(m.browser.View())
		sb.WriteByte('\n')
	}
	for _, e := range m.errors {
		sb.WriteString(errorStyle.Render(e))
		sb.WriteByte('\n')
	}
	sb.WriteString(dimStyle.Render("hjkl:move  space:toggle  +/-:vel  c/C:chan  [/]:steps  enter:commit  1-9:pattern  tab:queue  n:new"))
	sb.WriteByte('\n')
	sb.WriteString(dimStyle.Render("p:play  !:panic  s/o:save/open  e/i:export/import .mid  r:reconnect  q:quit"))
	return sb.String()
}

func (m Model) grid() string {
	snap := m.snap
	steps := snap.Pattern.Steps()
	sounding := map[uint8]bool{}
	for _, n := range snap.Sounding {
		sounding[n] = true
	}
	playing := snap.Cursor.Status == music.Playing

	var sb strings.Builder
	for row := 0; row < music.VISIBLE_ROWS; row++ {
		note := uint8(snap.Selection.Origin + music.VISIBLE_ROWS - 1 - row)
		sb.WriteString(statusStyle.Render(fmt.Sprintf("%-4s", midi.Note(note).String())))
		for col, step := range steps {
			if col%4 == 0 {
				sb.WriteByte(' ')
			}
			cell := "·"
			style := dimStyle
			if step.Has(note) {
				cell = "■"
				style = activeStyle
				if playing && col == snap.Cursor.Step && sounding[note] {
					style = soundingStyle
				}
			}
			switch {
			case row == snap.Selection.Row && col == snap.Selection.Col:
				style = style.Inherit(cursorStyle)
			case playing && col == snap.Cursor.Step:
				style = style.Inherit(playheadStyle)
			}
			sb.WriteString(style.Render(cell))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Run shows the editor until the user quits or ctx ends.
func Run(ctx context.Context, engine *music.Engine, prefs *Preferences, SinkUI <-chan Message, SinkLoop, MasterControl chan<- Message) error {
	logger := charmlog.FromContext(ctx).WithPrefix("UI")
	logger.Info("start")

	p := tea.NewProgram(NewModel(engine, prefs, logger, SinkUI, SinkLoop, MasterControl), tea.WithAltScreen())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Debug("context Done, quitting")
			p.Quit()
		case <-done:
		}
	}()

	_, err := p.Run()
	logger.Info("stop")
	return err
}
