package ui

import (
	"io"
	"strings"
	"testing"

	"github.com/JeanRibes/step-sequencer/music"
	. "github.com/JeanRibes/step-sequencer/shared"

	tea "github.com/charmbracelet/bubbletea"
	charmlog "github.com/charmbracelet/log"
)

func newTestModel(t *testing.T) (Model, chan Message, chan Message) {
	t.Helper()
	SinkLoop := make(chan Message, 16)
	MasterControl := make(chan Message, 1)
	SinkUI := make(chan Message)
	prefs := &Preferences{}
	m := NewModel(music.NewEngine(nil), prefs, charmlog.New(io.Discard), SinkUI, SinkLoop, MasterControl)
	return m, SinkLoop, MasterControl
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func received(ch chan Message) []Message {
	out := []Message{}
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestGridKeys(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want Message
	}{
		{runes("l"), Message{Type: MoveSelection, Number2: 1}},
		{tea.KeyMsg{Type: tea.KeyUp}, Message{Type: MoveSelection, Number: -1}},
		{tea.KeyMsg{Type: tea.KeySpace}, Message{Type: ToggleSelection}},
		{runes("+"), Message{Type: SetVelocity, Number: music.DEFAULT_VELOCITY + VELOCITY_STEP}},
		{runes("c"), Message{Type: SetChannel, Number: 2}},
		{runes("["), Message{Type: SetStepCount, Number: music.DEFAULT_STEPS - 1}},
		{runes("3"), Message{Type: SelectPattern, Number: 2}},
		{tea.KeyMsg{Type: tea.KeyTab}, Message{Type: QueuePattern, Number: 0}},
		{runes("n"), Message{Type: AddPattern}},
		{runes("p"), Message{Type: TransportStart}},
		{runes("!"), Message{Type: Panic}},
	}
	for _, tt := range tests {
		m, SinkLoop, _ := newTestModel(t)
		press(m, tt.key)
		got := received(SinkLoop)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("key %q: got %+v, want %+v", tt.key.String(), got, tt.want)
		}
	}
}

func TestCommitOnlyWhenPending(t *testing.T) {
	m, SinkLoop, _ := newTestModel(t)
	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := received(SinkLoop); len(got) != 0 {
		t.Errorf("commit sent without a preview: %+v", got)
	}
}

func TestQuitKey(t *testing.T) {
	m, _, MasterControl := newTestModel(t)
	next, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if got := received(MasterControl); len(got) != 1 || got[0].Type != Quit {
		t.Errorf("supervisor got %+v", got)
	}
	if next.(Model).View() != "" {
		t.Error("view not cleared on quit")
	}
}

func TestSavePrompt(t *testing.T) {
	m, SinkLoop, _ := newTestModel(t)
	m = press(m, runes("s"))
	if m.prompt != promptSave {
		t.Fatalf("prompt %v", m.prompt)
	}
	m = press(m, runes("my"), tea.KeyMsg{Type: tea.KeySpace}, runes("songx"), tea.KeyMsg{Type: tea.KeyBackspace}, tea.KeyMsg{Type: tea.KeyEnter})
	got := received(SinkLoop)
	if len(got) != 1 || got[0].Type != StateExport || got[0].String != "my song.yaml" {
		t.Fatalf("got %+v", got)
	}
	if m.prompt != noPrompt {
		t.Error("prompt still open")
	}
	if sessions := m.prefs.Sessions(); len(sessions) != 1 || !strings.HasSuffix(sessions[0].Path, "my song.yaml") {
		t.Errorf("recent sessions %+v", sessions)
	}
}

func TestPromptEscape(t *testing.T) {
	m, SinkLoop, _ := newTestModel(t)
	m = press(m, runes("I"), runes("beat"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.prompt != noPrompt || len(received(SinkLoop)) != 0 {
		t.Error("escape did not cancel the prompt")
	}
}

func TestImportPromptFromRecent(t *testing.T) {
	m, SinkLoop, _ := newTestModel(t)
	m.prefs.RecentTracks = RecentFiles{{Path: "/tmp/old.mid"}, {Path: "/tmp/new.mid"}}
	m = press(m, runes("I"), tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	got := received(SinkLoop)
	want := Message{Type: PatternImport, String: "/tmp/new.mid", Boolean: true}
	if len(got) != 1 || got[0] != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestBusMessages(t *testing.T) {
	m, _, _ := newTestModel(t)
	for i := 0; i < MAX_ERRORS+2; i++ {
		next, cmd := m.Update(busMsg(Message{Type: Error, String: "boom"}))
		if cmd == nil {
			t.Fatal("stopped listening to the bus")
		}
		m = next.(Model)
	}
	if len(m.errors) != MAX_ERRORS {
		t.Errorf("%d errors kept", len(m.errors))
	}
	if !strings.Contains(m.View(), "boom") {
		t.Error("error not shown")
	}
	m = press(m, runes("x"))
	if len(m.errors) != 0 {
		t.Error("errors not cleared")
	}
}

func TestBusRefreshesSnapshot(t *testing.T) {
	SinkUI := make(chan Message)
	engine := music.NewEngine(nil)
	m := NewModel(engine, nil, charmlog.New(io.Discard), SinkUI, make(chan Message, 1), make(chan Message, 1))
	engine.SetVelocity(33)
	next, _ := m.Update(busMsg(Message{Type: ParameterChange}))
	if v := next.(Model).snap.Params.Velocity; v != 33 {
		t.Errorf("snapshot velocity %d", v)
	}
}

func TestView(t *testing.T) {
	engine := music.NewEngine(nil)
	engine.ToggleSelection()
	m := NewModel(engine, nil, charmlog.New(io.Discard), nil, nil, nil)
	view := m.View()
	for _, want := range []string{"step-sequencer", "STOP", "pattern A", "■"} {
		if !strings.Contains(view, want) {
			t.Errorf("view misses %q:\n%s", want, view)
		}
	}
	if rows := strings.Count(m.grid(), "\n"); rows != music.VISIBLE_ROWS {
		t.Errorf("grid has %d rows", rows)
	}
}

func TestDroppedWhenLoopAway(t *testing.T) {
	engine := music.NewEngine(nil)
	m := NewModel(engine, nil, charmlog.New(io.Discard), nil, make(chan Message), make(chan Message))
	// nobody reads either channel: the keys must not block
	m = press(m, runes("n"), runes("r"))
	if m.quitting {
		t.Error("quitting")
	}
}
