package pipeline

import "fmt"

type step struct {
	phase  Phase
	plugin string
	enter  EnterFunc
	exit   ExitFunc
}

// Engine runs executions over a fixed list of steps. It holds no per-run state
// and may be used by concurrent runs.
type Engine struct {
	phases []Phase
	steps  []step
}

// New materializes the step list for instances.
func New(instances ...Instance) (*Engine, error) {
	e := &Engine{}
	seen := map[Phase]bool{}
	for i, inst := range instances {
		own := map[Phase]bool{}
		for _, h := range inst.Phases {
			if own[h.Phase] {
				return nil, fmt.Errorf("%w: %q in %s", ErrDuplicatePhase, h.Phase, instanceName(inst, i))
			}
			own[h.Phase] = true
			if !seen[h.Phase] {
				seen[h.Phase] = true
				e.phases = append(e.phases, h.Phase)
			}
		}
	}
	for _, phase := range e.phases {
		for i, inst := range instances {
			for _, h := range inst.Phases {
				if h.Phase != phase {
					continue
				}
				e.steps = append(e.steps, step{
					phase:  phase,
					plugin: instanceName(inst, i),
					enter:  h.Enter,
					exit:   h.Exit,
				})
			}
		}
	}
	return e, nil
}

func instanceName(inst Instance, i int) string {
	if inst.Name != "" {
		return inst.Name
	}
	return fmt.Sprintf("plugin#%d", i)
}

// Phases returns the phases in execution order.
func (e *Engine) Phases() []Phase {
	return append([]Phase(nil), e.phases...)
}

// Run executes c through every step. See the package documentation for the
// ordering rules.
func (e *Engine) Run(c *Context) (Result, error) {
	entered := make([]int, 0, len(e.steps))
	done := false
	for i := 0; i < len(e.steps) && !done; i++ {
		s := e.steps[i]
		entered = append(entered, i)
		if s.enter == nil {
			continue
		}
		d := &decision{}
		if err := invoke(func() error { return s.enter(c, EnterControl{d: d}) }); err != nil {
			return Result{}, &HookError{Phase: s.phase, Plugin: s.plugin, Err: err}
		}
		switch {
		case d.err != nil:
			return Result{}, &HookError{Phase: s.phase, Plugin: s.plugin, Err: d.err}
		case d.state == undecided:
			return Result{}, &HookError{Phase: s.phase, Plugin: s.plugin, Err: ErrNoDecision}
		case d.state == resolved:
			c.setResult(d.result)
			done = true
		}
	}
	if !done {
		return Result{}, ErrUnresolved
	}

	for j := len(entered) - 1; j >= 0; j-- {
		s := e.steps[entered[j]]
		if s.exit == nil {
			continue
		}
		d := &decision{}
		if err := invoke(func() error { return s.exit(c, ExitControl{d: d}) }); err != nil {
			return Result{}, &HookError{Phase: s.phase, Plugin: s.plugin, Exit: true, Err: err}
		}
		switch {
		case d.err != nil:
			return Result{}, &HookError{Phase: s.phase, Plugin: s.plugin, Exit: true, Err: d.err}
		case d.state == undecided:
			return Result{}, &HookError{Phase: s.phase, Plugin: s.plugin, Exit: true, Err: ErrNoDecision}
		case d.replaced:
			c.setResult(d.result)
		}
	}
	return *c.Result, nil
}

// invoke runs fn, turning a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Value: recovered}
		}
	}()
	return fn()
}
