package solver

import (
	"testing"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/normalize"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
)

func TestSolveSignalOnlyChainResolvesOne(t *testing.T) {
	reg, catalog := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{{ID: "time", Type: "Time"}, {ID: "sin", Type: "Sin"}},
		Edges:  []patch.Edge{{From: patch.PortRef{Block: "time", Port: "t"}, To: patch.PortRef{Block: "sin", Port: "x"}}},
	}
	// Time's unit (seconds) mismatches Sin's (radians), so route through the
	// normalizer first — solver.Solve expects post-normalize input, same as
	// the compiler's real pipeline (spec.md §6).
	norm, err := normalize.Normalize(p, reg, catalog)
	if err != nil {
		t.Fatal(err)
	}

	tp, err := Solve(norm.Patch, reg)
	if err != nil {
		t.Fatal(err)
	}
	yType, ok := tp.Lookup("sin", "y", patch.DirOut)
	if !ok {
		t.Fatal("expected sin.y to resolve a type")
	}
	cv, _ := yType.Extent.Cardinality.Value()
	if cv.Kind != ctype.CardinalityOne {
		t.Errorf("expected Sin's output to resolve to one-cardinality, got %v", cv.Kind)
	}
}

func TestSolveArrayFieldBroadcastsThroughPositionXY(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{{ID: "arr", Type: "Array"}, {ID: "pos", Type: "PositionXY"}},
		Edges:  []patch.Edge{{From: patch.PortRef{Block: "arr", Port: "index"}, To: patch.PortRef{Block: "pos", Port: "index"}}},
	}
	tp, err := Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	posType, ok := tp.Lookup("pos", "pos", patch.DirOut)
	if !ok {
		t.Fatal("expected pos.pos to resolve a type")
	}
	cv, _ := posType.Extent.Cardinality.Value()
	if cv.Kind != ctype.CardinalityMany {
		t.Errorf("expected PositionXY's output to inherit Array's many-cardinality, got %v", cv.Kind)
	}
	if cv.Instance.Domain != "Array" {
		t.Errorf("expected the many-instance to be domain Array, got %q", cv.Instance.Domain)
	}
}

func TestSolveInstanceConflictAcrossTwoArrays(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{
			{ID: "arr1", Type: "Array"},
			{ID: "arr2", Type: "Array"},
			{ID: "mul", Type: "Mul"},
		},
		Edges: []patch.Edge{
			// feed both arrays' index outputs straight into Mul's two
			// inputs: Mul's zip relaxation tolerates at most one distinct
			// many-instance, so two distinct Array instances conflict there.
			{From: patch.PortRef{Block: "arr1", Port: "index"}, To: patch.PortRef{Block: "mul", Port: "a"}},
			{From: patch.PortRef{Block: "arr2", Port: "index"}, To: patch.PortRef{Block: "mul", Port: "b"}},
		},
	}
	tp, err := Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range tp.Diagnostics {
		if d.Kind == diag.InstanceConflict {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an InstanceConflict diagnostic when two distinct Array instances reach one zip block, got %v", tp.Diagnostics)
	}
}

// TestSolveZipSignalStaysOneAgainstField exercises spec.md §8 scenario 2's
// "Mul(field, signal)" shape directly: a preserve+allowZipSig block mixing a
// many-cardinality input with a one-cardinality input resolves its output to
// many, but the one-cardinality input itself is left a true signal — no
// $adapter.broadcastOneToMany (or any other adapter) is spliced in, since
// the block's own Kernel lowering dispatches to KernelZipWithSignal and
// zips the field against the real scalar expression directly.
func TestSolveZipSignalStaysOneAgainstField(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{
			{ID: "arr", Type: "Array"},
			{ID: "time", Type: "Time"},
			{ID: "mul", Type: "Mul"},
		},
		Edges: []patch.Edge{
			{From: patch.PortRef{Block: "arr", Port: "index"}, To: patch.PortRef{Block: "mul", Port: "a"}},
			{From: patch.PortRef{Block: "time", Port: "t"}, To: patch.PortRef{Block: "mul", Port: "b"}},
		},
	}
	tp, err := Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(tp.Patch.Blocks) != len(p.Blocks) {
		t.Errorf("expected no adapter block to be spliced in, got blocks %v", tp.Patch.Blocks)
	}
	bType, ok := tp.Lookup("mul", "b", patch.DirIn)
	if !ok {
		t.Fatal("expected mul.b to resolve a type")
	}
	bv, _ := bType.Extent.Cardinality.Value()
	if bv.Kind != ctype.CardinalityOne {
		t.Errorf("expected mul.b to stay a true one-cardinality signal, got %v", bv.Kind)
	}
	yType, ok := tp.Lookup("mul", "y", patch.DirOut)
	if !ok {
		t.Fatal("expected mul.y to resolve a type")
	}
	cv, _ := yType.Extent.Cardinality.Value()
	if cv.Kind != ctype.CardinalityMany {
		t.Errorf("expected Mul's output to resolve to many-cardinality alongside the field input, got %v", cv.Kind)
	}
}

func TestSolveBindingMismatchAcrossEdgeReportsRemedy(t *testing.T) {
	reg := registry.New()
	r := reg
	r.Register(&registry.BlockSpec{
		TypeName: "boundSource",
		Outputs: []registry.PortSchema{{
			Name: "out", Payload: ctype.Float, Unit: ctype.ScalarUnit(),
			Temporality: ctype.Continuous, Binding: ctype.BoundTo("material.color"),
		}},
		CardinalityMode: registry.CardinalitySignalOnly,
	})
	r.Register(&registry.BlockSpec{
		TypeName: "unboundSink",
		Inputs: []registry.PortSchema{{
			Name: "in", Payload: ctype.Float, Unit: ctype.ScalarUnit(),
			Temporality: ctype.Continuous, Binding: ctype.UnboundValue(),
		}},
		CardinalityMode: registry.CardinalitySignalOnly,
	})
	r.Freeze()

	p := patch.Patch{
		Blocks: []patch.Block{{ID: "src", Type: "boundSource"}, {ID: "sink", Type: "unboundSink"}},
		Edges:  []patch.Edge{{From: patch.PortRef{Block: "src", Port: "out"}, To: patch.PortRef{Block: "sink", Port: "in"}}},
	}
	tp, err := Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(tp.Diagnostics) != 1 {
		t.Fatalf("expected exactly one diagnostic, got %d: %v", len(tp.Diagnostics), tp.Diagnostics)
	}
	d := tp.Diagnostics[0]
	if d.Kind != diag.BindingMismatchError {
		t.Errorf("expected BindingMismatchError, got %v", d.Kind)
	}
	if d.Remedy != diag.RemedyInsertStateOp {
		t.Errorf("expected insert-state-op remedy, got %v", d.Remedy)
	}
}

func TestSolveAllFullyInstantiatedWhenClean(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{{ID: "arr", Type: "Array"}, {ID: "pos", Type: "PositionXY"}},
		Edges:  []patch.Edge{{From: patch.PortRef{Block: "arr", Port: "index"}, To: patch.PortRef{Block: "pos", Port: "index"}}},
	}
	tp, err := Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	if !tp.BackendReady {
		t.Fatalf("expected BackendReady, got diagnostics %v", tp.Diagnostics)
	}
	if !tp.AllFullyInstantiated() {
		t.Error("expected every resolved port type to be fully instantiated")
	}
}
