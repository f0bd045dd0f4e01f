package patch

import (
	"testing"

	"github.com/flowpatch/corec/internal/registry"
)

func TestValidateRejectsDuplicateBlockIDs(t *testing.T) {
	p := &Patch{Blocks: []Block{{ID: "a", Type: "Time"}, {ID: "a", Type: "Sin"}}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for duplicate block id")
	}
}

func TestValidateRejectsUnknownEdgeEndpoint(t *testing.T) {
	p := &Patch{
		Blocks: []Block{{ID: "a", Type: "Time"}},
		Edges:  []Edge{{From: PortRef{Block: "a", Port: "t"}, To: PortRef{Block: "missing", Port: "x"}}},
	}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for unknown edge endpoint")
	}
}

func TestValidateAgainstRegistryCatchesUnknownPort(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := &Patch{
		Blocks: []Block{{ID: "time", Type: "Time"}, {ID: "sin", Type: "Sin"}},
		Edges:  []Edge{{From: PortRef{Block: "time", Port: "nope"}, To: PortRef{Block: "sin", Port: "x"}}},
	}
	diags := p.ValidateAgainstRegistry(reg)
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic for the unknown output port")
	}
}

func TestValidateAgainstRegistryAcceptsWellFormedEdge(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	p := &Patch{
		Blocks: []Block{{ID: "time", Type: "Time"}, {ID: "sin", Type: "Sin"}},
		Edges:  []Edge{{From: PortRef{Block: "time", Port: "t"}, To: PortRef{Block: "sin", Port: "x"}}},
	}
	if diags := p.ValidateAgainstRegistry(reg); len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
}
