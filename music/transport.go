package music

type Status int

const (
	Stopped Status = iota
	Playing
)

func (s Status) String() string {
	if s == Playing {
		return "PLAY"
	}
	return "STOP"
}

// Transport counts clock pulses into step boundaries. It has no side effects
// of its own; the Engine reacts to what it reports.
type Transport struct {
	status Status
	pulse  int
}

// Start moves to Playing from the top of a step.
func (t *Transport) Start() {
	t.status = Playing
	t.pulse = 0
}

// Continue moves to Playing and keeps the pulse phase.
func (t *Transport) Continue() {
	t.status = Playing
}

func (t *Transport) Stop() {
	t.status = Stopped
}

// Tick counts one pulse and reports whether a step boundary was reached.
// Pulses while stopped are ignored. A divisor lowered below the current
// phase fires on the next pulse.
func (t *Transport) Tick(pulsesPerStep int) bool {
	if t.status != Playing {
		return false
	}
	t.pulse++
	if t.pulse >= max(pulsesPerStep, 1) {
		t.pulse = 0
		return true
	}
	return false
}

func (t *Transport) ResetPulse() {
	t.pulse = 0
}

func (t *Transport) Status() Status {
	return t.status
}

func (t *Transport) Pulse() int {
	return t.pulse
}
