package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphstore/internal/artifact"
)

type trace struct{ calls []string }

func (tr *trace) add(s string) { tr.calls = append(tr.calls, s) }

// recorder returns an instance that records its enter and exit calls and
// either continues or resolves on enter.
func recorder(tr *trace, name string, phase Phase, resolve bool) Instance {
	return Instance{
		Name: name,
		Phases: []PhaseHooks{{
			Phase: phase,
			Enter: func(c *Context, ctl EnterControl) error {
				tr.add(name + ".enter")
				if resolve {
					ctl.Resolve(Result{Data: map[string]any{"from": name}, Source: SourceNetwork})
					return nil
				}
				ctl.Next()
				return nil
			},
			Exit: func(c *Context, ctl ExitControl) error {
				tr.add(name + ".exit")
				ctl.Resolve()
				return nil
			},
		}},
	}
}

func newTestContext() *Context {
	return NewContext(context.Background(), &artifact.Artifact{Kind: artifact.KindQuery, Name: "TestQuery"}, nil)
}

// Pattern: Call trace
func TestEngine_ResolveShortCircuits_Trace(t *testing.T) {
	tr := &trace{}
	eng, err := New(
		recorder(tr, "A", PhaseNetwork, false),
		recorder(tr, "B", PhaseNetwork, true),
		recorder(tr, "C", PhaseNetwork, false),
	)
	require.NoError(t, err)

	got, err := eng.Run(newTestContext())
	require.NoError(t, err)

	wantCalls := []string{"A.enter", "B.enter", "B.exit", "A.exit"}
	if diff := cmp.Diff(wantCalls, tr.calls); diff != "" {
		t.Fatalf("hook trace mismatch (-want +got):\n%s", diff)
	}
	want := Result{Data: map[string]any{"from": "B"}, Source: SourceNetwork, Variables: map[string]any{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Result mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Call trace
func TestEngine_PhaseOrder_FirstIntroduction_Trace(t *testing.T) {
	tr := &trace{}
	one := Instance{Name: "one", Phases: []PhaseHooks{
		{Phase: "setup", Enter: func(c *Context, ctl EnterControl) error { tr.add("one.setup"); ctl.Next(); return nil }},
		{Phase: "network", Enter: func(c *Context, ctl EnterControl) error { tr.add("one.network"); ctl.Next(); return nil }},
	}}
	two := Instance{Name: "two", Phases: []PhaseHooks{
		{Phase: "network", Enter: func(c *Context, ctl EnterControl) error {
			tr.add("two.network")
			ctl.Resolve(Result{})
			return nil
		}},
		{Phase: "setup", Enter: func(c *Context, ctl EnterControl) error { tr.add("two.setup"); ctl.Next(); return nil }},
	}}
	eng, err := New(one, two)
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	require.NoError(t, err)

	if diff := cmp.Diff([]Phase{"setup", "network"}, eng.Phases()); diff != "" {
		t.Fatalf("phase order mismatch (-want +got):\n%s", diff)
	}
	wantCalls := []string{"one.setup", "two.setup", "one.network", "two.network"}
	if diff := cmp.Diff(wantCalls, tr.calls); diff != "" {
		t.Fatalf("hook trace mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Call trace
func TestEngine_ExitUnwindsAcrossPhases_Trace(t *testing.T) {
	tr := &trace{}
	eng, err := New(
		recorder(tr, "one", PhaseSetup, false),
		recorder(tr, "two", PhaseNetwork, true),
	)
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	require.NoError(t, err)

	wantCalls := []string{"one.enter", "two.enter", "two.exit", "one.exit"}
	if diff := cmp.Diff(wantCalls, tr.calls); diff != "" {
		t.Fatalf("hook trace mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Result comparison
func TestEngine_ExitReplacesResult_Result(t *testing.T) {
	wrapper := Instance{Name: "wrapper", Phases: []PhaseHooks{{
		Phase: PhaseNetwork,
		Exit: func(c *Context, ctl ExitControl) error {
			next := *c.Result
			next.Data = map[string]any{"wrapped": c.Result.Data["value"]}
			ctl.Resolve(next)
			return nil
		},
	}}}
	terminal := Instance{Name: "terminal", Phases: []PhaseHooks{{
		Phase: PhaseNetwork,
		Enter: func(c *Context, ctl EnterControl) error {
			ctl.Resolve(Result{Data: map[string]any{"value": 1}, Source: SourceCache, Partial: true})
			return nil
		},
	}}}
	eng, err := New(wrapper, terminal)
	require.NoError(t, err)

	c := newTestContext()
	got, err := eng.Run(c)
	require.NoError(t, err)

	want := Result{Data: map[string]any{"wrapped": 1}, Source: SourceCache, Partial: true, Variables: map[string]any{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Result mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, SourceCache, c.Source)
	require.True(t, c.Partial)
}

func TestEngine_Unresolved(t *testing.T) {
	tr := &trace{}
	eng, err := New(recorder(tr, "A", PhaseNetwork, false))
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	require.ErrorIs(t, err, ErrUnresolved)
	require.Equal(t, []string{"A.enter"}, tr.calls)
}

func TestEngine_EmptyPipelineIsUnresolved(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	_, err = eng.Run(newTestContext())
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestEngine_EnterWithoutDecision(t *testing.T) {
	eng, err := New(Instance{Name: "lazy", Phases: []PhaseHooks{{
		Phase: PhaseNetwork,
		Enter: func(c *Context, ctl EnterControl) error { return nil },
	}}})
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	var he *HookError
	require.ErrorAs(t, err, &he)
	require.Equal(t, "lazy", he.Plugin)
	require.Equal(t, PhaseNetwork, he.Phase)
	require.ErrorIs(t, err, ErrNoDecision)
}

func TestEngine_ExitWithoutDecision(t *testing.T) {
	eng, err := New(
		Instance{Name: "outer", Phases: []PhaseHooks{{
			Phase: PhaseNetwork,
			Exit:  func(c *Context, ctl ExitControl) error { return nil },
		}}},
		Instance{Name: "inner", Phases: []PhaseHooks{{
			Phase: PhaseNetwork,
			Enter: func(c *Context, ctl EnterControl) error { ctl.Resolve(Result{}); return nil },
		}}},
	)
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	var he *HookError
	require.ErrorAs(t, err, &he)
	require.True(t, he.Exit)
	require.Equal(t, "outer", he.Plugin)
	require.ErrorIs(t, err, ErrNoDecision)
}

func TestEngine_DecidedTwice(t *testing.T) {
	eng, err := New(Instance{Name: "greedy", Phases: []PhaseHooks{{
		Phase: PhaseNetwork,
		Enter: func(c *Context, ctl EnterControl) error {
			ctl.Next()
			ctl.Resolve(Result{})
			return nil
		},
	}}})
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	require.ErrorIs(t, err, ErrDecidedTwice)
}

func TestEngine_HookErrorAbortsWithoutUnwinding(t *testing.T) {
	tr := &trace{}
	boom := errors.New("boom")
	eng, err := New(
		recorder(tr, "A", PhaseNetwork, false),
		Instance{Name: "failing", Phases: []PhaseHooks{{
			Phase: PhaseNetwork,
			Enter: func(c *Context, ctl EnterControl) error { return boom },
		}}},
		recorder(tr, "C", PhaseNetwork, true),
	)
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"A.enter"}, tr.calls)
}

func TestEngine_PanicBecomesHookError(t *testing.T) {
	eng, err := New(Instance{Name: "panicky", Phases: []PhaseHooks{{
		Phase: PhaseNetwork,
		Enter: func(c *Context, ctl EnterControl) error { panic("kaboom") },
	}}})
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kaboom", pe.Value)
	require.Contains(t, err.Error(), `plugin "panicky"`)
}

func TestEngine_MissingEnterPassesThrough(t *testing.T) {
	tr := &trace{}
	exitOnly := Instance{Name: "exitOnly", Phases: []PhaseHooks{{
		Phase: PhaseNetwork,
		Exit: func(c *Context, ctl ExitControl) error {
			tr.add("exitOnly.exit")
			ctl.Resolve()
			return nil
		},
	}}}
	eng, err := New(exitOnly, recorder(tr, "B", PhaseNetwork, true))
	require.NoError(t, err)

	_, err = eng.Run(newTestContext())
	require.NoError(t, err)
	require.Equal(t, []string{"B.enter", "B.exit", "exitOnly.exit"}, tr.calls)
}

func TestNew_DuplicatePhase(t *testing.T) {
	_, err := New(Instance{Name: "dup", Phases: []PhaseHooks{{Phase: PhaseNetwork}, {Phase: PhaseNetwork}}})
	require.ErrorIs(t, err, ErrDuplicatePhase)
}

func TestEngine_ReusableAcrossRuns(t *testing.T) {
	tr := &trace{}
	eng, err := New(recorder(tr, "A", PhaseNetwork, true))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := eng.Run(newTestContext())
		require.NoError(t, err)
	}
	require.Len(t, tr.calls, 6)
}
