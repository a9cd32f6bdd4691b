package shared

import "fmt"

type Event int

const (
	Quit Event = iota
	Error
	RestartMIDI

	// transport, as received from the clock source
	TransportStart
	TransportStop
	TransportContinue

	// edits, UI → loop
	SelectPattern
	QueuePattern
	AddPattern
	ToggleNote
	ToggleSelection
	MoveSelection
	SetVelocity
	SetChannel
	SetPulsesPerStep
	SetStepCount
	CommitStepCount
	Panic
	StateImport
	StateExport
	PatternImport
	PatternExport
	LoadDefaults

	// notifications, loop → UI
	StepChange
	PatternChange
	ParameterChange
	TransportChange
)

type Message struct {
	Type    Event
	Number  int
	Boolean bool
	String  string
	Number2 int
}

const MAX_PATTERNS = 16

func PatternName(pattern int) string {
	switch pattern {
	case 0:
		return "A"
	case 1:
		return "B"
	case 2:
		return "C"
	case 3:
		return "D"
	default:
		return fmt.Sprintf("motif %d", pattern+1)
	}
}
