package ui

import (
	. "github.com/JeanRibes/step-sequencer/shared"

	tea "github.com/charmbracelet/bubbletea"
)

// busMsg carries a loop notification into the bubbletea event loop.
type busMsg Message

func listenForBus(SinkUI <-chan Message) tea.Cmd {
	return func() tea.Msg {
		return busMsg(<-SinkUI)
	}
}

func (m Model) handleBus(msg Message) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case Error:
		m.logger.Debug("error from loop", "err", msg.String)
		m.errors = append(m.errors, msg.String)
		if len(m.errors) > MAX_ERRORS {
			m.errors = m.errors[len(m.errors)-MAX_ERRORS:]
		}
	case StepChange, PatternChange, ParameterChange, TransportChange:
		m.snap = m.engine.Snapshot()
	default:
		m.logger.Warn("unexpected message on UI bus", "type", msg.Type)
	}
	return m, listenForBus(m.SinkUI)
}
