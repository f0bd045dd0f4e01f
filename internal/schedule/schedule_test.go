package schedule_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/schedule"
	"github.com/flowpatch/corec/internal/solver"
	"github.com/flowpatch/corec/internal/valueir"
)

// TestScheduleFieldPipelineEmitsMaterializeAndRenderSteps exercises the
// CardinalityTransform (Array) -> CardinalityPreserve (PositionXY) -> sink
// (Render) shape: PositionXY's solved output inherits Array's many-
// cardinality, which should surface as a ContinuityMapBuild for the minted
// instance plus a Materialize immediately ahead of the Render step.
func TestScheduleFieldPipelineEmitsMaterializeAndRenderSteps(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{
			{ID: "arr", Type: "Array"},
			{ID: "pos", Type: "PositionXY"},
			{ID: "disp", Type: "Render"},
		},
		Edges: []patch.Edge{
			{From: patch.PortRef{Block: "arr", Port: "index"}, To: patch.PortRef{Block: "pos", Port: "index"}},
			{From: patch.PortRef{Block: "pos", Port: "pos"}, To: patch.PortRef{Block: "disp", Port: "pos"}},
		},
	}
	tp, err := solver.Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	if !tp.BackendReady {
		t.Fatalf("expected BackendReady from the solver, got diagnostics %v", tp.Diagnostics)
	}

	res, err := schedule.Lower(tp, reg)
	if err != nil {
		t.Fatal(err)
	}

	var sawMaterialize, sawRender, sawContinuityMapBuild bool
	for _, s := range res.Steps {
		switch s.Kind {
		case schedule.StepMaterialize:
			sawMaterialize = true
		case schedule.StepRender:
			sawRender = true
		case schedule.StepContinuityMapBuild:
			sawContinuityMapBuild = true
		}
	}
	if !sawMaterialize {
		t.Errorf("expected a Materialize step ahead of Render's field input, got %v", res.Steps)
	}
	if !sawRender {
		t.Errorf("expected a Render step, got %v", res.Steps)
	}
	if !sawContinuityMapBuild {
		t.Errorf("expected a ContinuityMapBuild step for Array's minted instance, got %v", res.Steps)
	}
	if len(res.SlotPlan.Assignments) != 0 {
		t.Errorf("expected no slot-backed ports in a pure-combinational field chain, got %v", res.SlotPlan.Assignments)
	}
	if len(res.Exprs) == 0 {
		t.Error("expected a non-empty post-sweep expression arena")
	}
}

// boundedRegistry builds a small, self-contained registry (no builtin unit
// mismatches to route through internal/normalize first) for exercising the
// scheduler's state-write and slot-allocation machinery directly.
func boundedRegistry() *registry.Registry {
	r := registry.New()
	r.Register(&registry.BlockSpec{
		TypeName: "Source",
		Outputs: []registry.PortSchema{{
			Name: "out", Payload: ctype.Float, Unit: ctype.ScalarUnit(),
			Temporality: ctype.Continuous, Binding: ctype.UnboundValue(),
		}},
		CardinalityMode: registry.CardinalitySignalOnly,
		Lower: func(ctx registry.LowerCtx) (registry.LowerResult, error) {
			id, err := ctx.Builder.Const(ctype.ConstFloat(1), ctype.ScalarUnit())
			if err != nil {
				return registry.LowerResult{}, err
			}
			return registry.LowerResult{Outputs: map[string]valueir.ExprID{"out": id}}, nil
		},
	})
	r.Register(&registry.BlockSpec{
		TypeName: "Holder",
		Inputs: []registry.PortSchema{{
			Name: "value", Payload: ctype.Float, Unit: ctype.ScalarUnit(),
			Temporality: ctype.Continuous, Binding: ctype.UnboundValue(),
		}},
		Outputs: []registry.PortSchema{{
			Name: "prev", Payload: ctype.Float, Unit: ctype.ScalarUnit(),
			Temporality: ctype.Continuous, Binding: ctype.UnboundValue(), BreaksCycleDependency: true,
		}},
		CardinalityMode: registry.CardinalityPreserve,
		Lower: func(ctx registry.LowerCtx) (registry.LowerResult, error) {
			value, ok := ctx.Input["value"]
			if !ok {
				return registry.LowerResult{}, nil
			}
			slot := ctx.Slots["prev"]
			prev, err := ctx.Builder.StateRead(slot, ctx.PortType["prev"])
			if err != nil {
				return registry.LowerResult{}, err
			}
			return registry.LowerResult{
				Outputs:     map[string]valueir.ExprID{"prev": prev},
				StateWrites: []registry.StateWrite{{Slot: slot, Value: value}},
			}, nil
		},
	})
	r.Register(&registry.BlockSpec{
		TypeName: "Sink",
		Inputs: []registry.PortSchema{{
			Name: "in", Payload: ctype.Float, Unit: ctype.ScalarUnit(),
			Temporality: ctype.Continuous, Binding: ctype.UnboundValue(),
		}},
		CardinalityMode: registry.CardinalitySignalOnly,
		Lower: func(ctx registry.LowerCtx) (registry.LowerResult, error) {
			return registry.LowerResult{Outputs: map[string]valueir.ExprID{}}, nil
		},
	})
	r.Freeze()
	return r
}

// TestScheduleStateWriteEmitsOneStateWriteStepAndAllocatesASlot confirms the
// scalar (one-cardinality) StateWrite shape: a single state_write step, one
// allocated state slot, and the downstream consumer of the cycle-broken
// "prev" output resolved via a direct StateRead rather than a forward
// reference into the producer's own Lower call.
func TestScheduleStateWriteEmitsOneStateWriteStepAndAllocatesASlot(t *testing.T) {
	reg := boundedRegistry()
	p := patch.Patch{
		Blocks: []patch.Block{
			{ID: "src", Type: "Source"},
			{ID: "hold", Type: "Holder"},
			{ID: "sink", Type: "Sink"},
		},
		Edges: []patch.Edge{
			{From: patch.PortRef{Block: "src", Port: "out"}, To: patch.PortRef{Block: "hold", Port: "value"}},
			{From: patch.PortRef{Block: "hold", Port: "prev"}, To: patch.PortRef{Block: "sink", Port: "in"}},
		},
	}
	tp, err := solver.Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	if !tp.BackendReady {
		t.Fatalf("expected BackendReady, got diagnostics %v", tp.Diagnostics)
	}

	res, err := schedule.Lower(tp, reg)
	if err != nil {
		t.Fatal(err)
	}

	stateWrites := 0
	for _, s := range res.Steps {
		if s.Kind == schedule.StepStateWrite {
			stateWrites++
		}
		if s.Kind == schedule.StepFieldStateWrite || s.Kind == schedule.StepSlotWriteStrided {
			t.Errorf("did not expect a field-shaped state step for a one-cardinality Holder, got %v", s)
		}
	}
	if stateWrites != 1 {
		t.Errorf("expected exactly one state_write step, got %d (%v)", stateWrites, res.Steps)
	}
	if len(res.SlotPlan.Assignments) != 1 {
		t.Fatalf("expected exactly one slot assignment, got %v", res.SlotPlan.Assignments)
	}
	if res.SlotPlan.Assignments[0].Kind != schedule.SlotState {
		t.Errorf("expected a state-kind slot, got %v", res.SlotPlan.Assignments[0].Kind)
	}
}

// TestScheduleSlotPlanJSONIsDeterministic confirms two Lower calls over the
// same patch produce byte-identical SlotPlan JSON regardless of Go's map
// iteration order.
func TestScheduleSlotPlanJSONIsDeterministic(t *testing.T) {
	reg := boundedRegistry()
	p := patch.Patch{
		Blocks: []patch.Block{{ID: "src", Type: "Source"}, {ID: "hold", Type: "Holder"}, {ID: "sink", Type: "Sink"}},
		Edges: []patch.Edge{
			{From: patch.PortRef{Block: "src", Port: "out"}, To: patch.PortRef{Block: "hold", Port: "value"}},
			{From: patch.PortRef{Block: "hold", Port: "prev"}, To: patch.PortRef{Block: "sink", Port: "in"}},
		},
	}
	tp, err := solver.Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}

	res1, err := schedule.Lower(tp, reg)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := schedule.Lower(tp, reg)
	if err != nil {
		t.Fatal(err)
	}

	j1, err := res1.SlotPlan.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	j2, err := res2.SlotPlan.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(j1) != string(j2) {
		t.Errorf("expected identical SlotPlan JSON across repeated lowerings, got:\n%s\nvs\n%s", j1, j2)
	}
}

// TestScheduleNeverMutatesTypes is Testable Property 5 (spec.md §8): the
// backend is read-only with respect to the frontend's type axes. Since
// ctype.WithInstance is the only axis-mutating constructor in this module,
// checking for its absence from this package's own source is a faithful
// proxy for "the backend never mutates a resolved type" without needing a
// runtime hook into every call site.
func TestScheduleNeverMutatesTypes(t *testing.T) {
	dir := "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "WithInstance(") {
			t.Errorf("%s calls ctype.WithInstance, which is frontend-only (spec.md §4.1)", e.Name())
		}
	}
}
