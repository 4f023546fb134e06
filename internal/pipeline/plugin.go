package pipeline

// Phase names a step of execution. Plugins may introduce their own.
type Phase string

const (
	// PhaseSetup resolves per-execution settings before any data is fetched.
	PhaseSetup Phase = "setup"
	// PhaseNetwork is where data is looked up or fetched.
	PhaseNetwork Phase = "network"
)

type (
	EnterFunc func(*Context, EnterControl) error
	ExitFunc  func(*Context, ExitControl) error
)

// PhaseHooks is one plugin's contribution to a phase. A nil Enter behaves as
// if it called Next; a nil Exit passes the result through.
type PhaseHooks struct {
	Phase Phase
	Enter EnterFunc
	Exit  ExitFunc
}

// Instance is a materialized plugin. Phases keeps the order in which the
// plugin introduces phases.
type Instance struct {
	Name    string
	Phases  []PhaseHooks
	Cleanup func()
}

// Plugin produces a fresh Instance. Document observers call each plugin once
// so instances may keep per-observer state.
type Plugin func() Instance

type decisionState uint8

const (
	undecided decisionState = iota
	continuing
	resolved
)

type decision struct {
	state    decisionState
	result   Result
	replaced bool
	err      error
}

func (d *decision) set(state decisionState) bool {
	if d.state != undecided {
		d.err = ErrDecidedTwice
		return false
	}
	d.state = state
	return true
}

// EnterControl is handed to enter hooks.
type EnterControl struct {
	d *decision
}

// Next continues the forward pass.
func (c EnterControl) Next() {
	c.d.set(continuing)
}

// Resolve ends the forward pass with r.
func (c EnterControl) Resolve(r Result) {
	if c.d.set(resolved) {
		c.d.result = r
		c.d.replaced = true
	}
}

// ExitControl is handed to exit hooks.
type ExitControl struct {
	d *decision
}

// Resolve continues unwinding. With an argument the first value replaces the
// current result; with none the current result is kept.
func (c ExitControl) Resolve(r ...Result) {
	if c.d.set(resolved) && len(r) > 0 {
		c.d.result = r[0]
		c.d.replaced = true
	}
}
