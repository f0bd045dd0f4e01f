package compiler_test

import (
	"testing"

	"github.com/flowpatch/corec/internal/compiler"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
)

// TestCompileEndToEndFieldPipelineIsBackendReady exercises the full
// pipeline (normalize -> solve -> validate -> schedule) over the same
// Array -> PositionXY -> Render shape internal/schedule tests against the
// solver directly, confirming the wiring in this package doesn't change
// the outcome.
func TestCompileEndToEndFieldPipelineIsBackendReady(t *testing.T) {
	reg, catalog := registry.LoadBuiltins()
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

	fr, br, err := compiler.Compile(p, reg, catalog)
	if err != nil {
		t.Fatal(err)
	}
	if fr.Stage != "" {
		t.Fatalf("expected the pipeline to clear every stage, stopped at %q (diagnostics %v)", fr.Stage, fr.TypedPatch.Diagnostics)
	}
	if !fr.TypedPatch.BackendReady {
		t.Fatalf("expected BackendReady, got diagnostics %v", fr.TypedPatch.Diagnostics)
	}
	if len(br.Steps) == 0 {
		t.Error("expected the backend to emit at least one step")
	}
	if len(br.Diagnostics) != 0 {
		t.Errorf("expected no backend diagnostics, got %v", br.Diagnostics)
	}
}

// TestCompileFrontendStopsAtStructureForDanglingEdge confirms an edge
// referencing a port its block's schema doesn't declare never reaches
// normalize/solve/validate
// — it comes back labeled "structure" with a ReferentialIntegrity
// diagnostic instead of propagating into a stage that assumes a
// schema-valid patch.
func TestCompileFrontendStopsAtStructureForDanglingEdge(t *testing.T) {
	reg, catalog := registry.LoadBuiltins()
	p := patch.Patch{
		Blocks: []patch.Block{{ID: "t", Type: "Time"}},
		Edges: []patch.Edge{
			{From: patch.PortRef{Block: "t", Port: "t"}, To: patch.PortRef{Block: "t", Port: "nope"}},
		},
	}

	fr, err := compiler.CompileFrontend(p, reg, catalog)
	if err != nil {
		t.Fatal(err)
	}
	if fr.Stage != "structure" {
		t.Fatalf("expected stage %q, got %q", "structure", fr.Stage)
	}
	if fr.TypedPatch.BackendReady {
		t.Error("expected BackendReady=false for a structurally broken patch")
	}
	if len(fr.TypedPatch.Diagnostics) == 0 {
		t.Error("expected at least one diagnostic")
	}
}

// TestCompileBackendRefusesANotReadyFrontendResult confirms the backend
// stage never runs over a patch the frontend didn't clear, rather than
// surfacing whatever internal/schedule happens to do with an unresolved
// axis.
func TestCompileBackendRefusesANotReadyFrontendResult(t *testing.T) {
	reg, _ := registry.LoadBuiltins()
	notReady := patch.TypedPatch{BackendReady: false}

	_, err := compiler.CompileBackend(notReady, reg)
	if err == nil {
		t.Fatal("expected an error for a not-ready TypedPatch")
	}
}
