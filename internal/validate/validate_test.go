package validate

import (
	"testing"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/solver"
)

func TestValidatePassesCleanArrayPositionPatch(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{{ID: "arr", Type: "Array"}, {ID: "pos", Type: "PositionXY"}},
		Edges:  []patch.Edge{{From: patch.PortRef{Block: "arr", Port: "index"}, To: patch.PortRef{Block: "pos", Port: "index"}}},
	}
	tp, err := solver.Solve(p, reg)
	if err != nil {
		t.Fatal(err)
	}
	tp = Validate(tp, reg)
	if !tp.BackendReady {
		t.Fatalf("expected BackendReady, got diagnostics %v", tp.Diagnostics)
	}
}

func TestValidateRejectsManyInstanceNotInDomains(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	tp := patch.TypedPatch{
		Patch: patch.Patch{
			Blocks:  []patch.Block{{ID: "arr", Type: "Array"}},
			Domains: patch.Domains{}, // deliberately missing the Array instance
		},
		PortTypes: map[patch.PortKey]ctype.CanonicalType{
			{Block: "arr", Port: "index", Dir: patch.DirOut}: ctype.CanonicalField(
				ctype.Int, ctype.CountUnit(), ctype.InstanceRef{Domain: "Array", Instance: "Array#arr"}),
		},
		BackendReady: true,
	}
	out := Validate(tp, reg)
	if out.BackendReady {
		t.Fatal("expected BackendReady to flip false")
	}
	if len(out.Diagnostics) != 1 || out.Diagnostics[0].Kind != diag.AxisViolation {
		t.Fatalf("expected exactly one AxisViolation, got %v", out.Diagnostics)
	}
}

func TestValidateRejectsDiscreteZeroCombo(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	badType := ctype.CanonicalType{
		Payload: ctype.Bool,
		Unit:    ctype.NoneUnit(),
		Extent: ctype.Extent{
			Cardinality: ctype.InstAxis(ctype.Zero()),
			Temporality: ctype.InstAxis(ctype.Discrete),
			Binding:     ctype.InstAxis(ctype.UnboundValue()),
			Perspective: ctype.InstAxis(ctype.PerspectiveDefault),
			Branch:      ctype.InstAxis(ctype.BranchDefault),
		},
	}
	tp := patch.TypedPatch{
		Patch: patch.Patch{Blocks: []patch.Block{{ID: "p", Type: "Pulse"}}},
		PortTypes: map[patch.PortKey]ctype.CanonicalType{
			{Block: "p", Port: "fired", Dir: patch.DirOut}: badType,
		},
		BackendReady: true,
	}
	out := Validate(tp, reg)
	if out.BackendReady {
		t.Fatal("expected BackendReady to flip false")
	}
	found := false
	for _, d := range out.Diagnostics {
		if d.Kind == diag.AxisViolation {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an AxisViolation for the discrete+zero combo, got %v", out.Diagnostics)
	}
}

func TestValidateRejectsDiscreteManyCombo(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	inst := ctype.InstanceRef{Domain: "Array", Instance: "Array#arr"}
	badType := ctype.CanonicalType{
		Payload: ctype.Bool,
		Unit:    ctype.NoneUnit(),
		Extent: ctype.Extent{
			Cardinality: ctype.InstAxis(ctype.Many(inst)),
			Temporality: ctype.InstAxis(ctype.Discrete),
			Binding:     ctype.InstAxis(ctype.UnboundValue()),
			Perspective: ctype.InstAxis(ctype.PerspectiveDefault),
			Branch:      ctype.InstAxis(ctype.BranchDefault),
		},
	}
	tp := patch.TypedPatch{
		Patch: patch.Patch{
			Blocks:  []patch.Block{{ID: "p", Type: "Pulse"}},
			Domains: patch.Domains{"Array": []ctype.InstanceRef{inst}}, // registered, isolating this from checkManyInstanceRegistered
		},
		PortTypes: map[patch.PortKey]ctype.CanonicalType{
			{Block: "p", Port: "fired", Dir: patch.DirOut}: badType,
		},
		BackendReady: true,
	}
	out := Validate(tp, reg)
	if out.BackendReady {
		t.Fatal("expected BackendReady to flip false")
	}
	found := false
	for _, d := range out.Diagnostics {
		if d.Kind == diag.AxisViolation {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an AxisViolation for the discrete+many combo even with the instance registered in Domains, got %v", out.Diagnostics)
	}
}

func TestValidateRejectsUninstantiatedAxis(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	unresolved := ctype.CanonicalType{
		Payload: ctype.Float,
		Unit:    ctype.ScalarUnit(),
		Extent: ctype.Extent{
			Cardinality: ctype.VarAxis[ctype.CardinalityValue](1),
			Temporality: ctype.InstAxis(ctype.Continuous),
			Binding:     ctype.InstAxis(ctype.UnboundValue()),
			Perspective: ctype.InstAxis(ctype.PerspectiveDefault),
			Branch:      ctype.InstAxis(ctype.BranchDefault),
		},
	}
	tp := patch.TypedPatch{
		Patch: patch.Patch{Blocks: []patch.Block{{ID: "sin", Type: "Sin"}}},
		PortTypes: map[patch.PortKey]ctype.CanonicalType{
			{Block: "sin", Port: "y", Dir: patch.DirOut}: unresolved,
		},
		BackendReady: true,
	}
	out := Validate(tp, reg)
	if out.BackendReady {
		t.Fatal("expected BackendReady to flip false")
	}
}

func TestValidateKeepsPriorBackendNotReadyAndAddsNoDuplicateFlip(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	tp := patch.TypedPatch{
		Patch:        patch.Patch{Blocks: []patch.Block{{ID: "time", Type: "Time"}}},
		PortTypes:    map[patch.PortKey]ctype.CanonicalType{},
		Diagnostics:  []diag.Diagnostic{diag.New(diag.MissingAdapter, diag.NodeEdge, 0, "pre-existing")},
		BackendReady: false,
	}
	out := Validate(tp, reg)
	if out.BackendReady {
		t.Fatal("expected BackendReady to remain false")
	}
	if len(out.Diagnostics) != 1 {
		t.Fatalf("expected validate to add no new diagnostics on an empty PortTypes map, got %v", out.Diagnostics)
	}
}
