package runner

// State is the lifecycle position of a single invocation.
type State string

const (
	StateIdle      State = "idle"
	StateLaunching State = "launching"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:      {StateLaunching},
	StateLaunching: {StateRunning, StateFailed},
	StateRunning:   {StateSucceeded, StateFailed},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// tracker enforces the lifecycle and notifies an optional observer.
type tracker struct {
	state   State
	observe func(State)
}

func newTracker(observe func(State)) *tracker {
	return &tracker{state: StateIdle, observe: observe}
}

func (t *tracker) to(next State) bool {
	if !CanTransition(t.state, next) {
		return false
	}
	t.state = next
	if t.observe != nil {
		t.observe(next)
	}
	return true
}

func (t *tracker) finish(r Result) {
	if r.Succeeded() {
		t.to(StateSucceeded)
		return
	}
	t.to(StateFailed)
}
