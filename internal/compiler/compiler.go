// Package compiler wires the frontend and backend stages (spec.md §6)
// into the two entry points cmd/patchc and internal/repl actually call:
// CompileFrontend (patch.Patch -> patch.TypedPatch) and CompileBackend
// (patch.TypedPatch -> schedule.Result). Each stage's own package owns its
// algorithm; this package owns only the order they run in and how their
// diagnostics accumulate into one report.
package compiler

import (
	"fmt"

	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/normalize"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/schedule"
	"github.com/flowpatch/corec/internal/solver"
	"github.com/flowpatch/corec/internal/validate"
)

// FrontendResult is the frontend pipeline's output: the TypedPatch plus
// which stage, if any, stopped the pipeline short of the next one. Stage
// is "" when every stage ran to completion (BackendReady still needs its
// own check — a patch can run every stage and still come out not ready).
type FrontendResult struct {
	TypedPatch patch.TypedPatch
	Stage      string
}

// CompileFrontend runs normalize -> solve -> validate in sequence
// (spec.md §4.3-4.5), accumulating diagnostics from every stage that ran.
// It stops early only for the two classes of error no later stage could
// meaningfully build on: a structurally invalid patch (duplicate block
// ids, dangling edges) or an edge referencing a port the registry doesn't
// know about. The unknown-port case comes back as a TypedPatch with
// ReferentialIntegrity diagnostics set and BackendReady false, not a Go
// error, so the caller (cmd/patchc, internal/repl) prints it like any
// other stage's diagnostics. A structurally invalid patch (p.Validate
// fails) is returned as a Go error with no diagnostics, as are a normalize
// failure (an unbreakable cycle) and a solver error.
func CompileFrontend(p patch.Patch, reg *registry.Registry, catalog *registry.AdapterCatalog) (FrontendResult, error) {
	if err := p.Validate(); err != nil {
		return FrontendResult{
			TypedPatch: patch.TypedPatch{Patch: p},
			Stage:      "structure",
		}, fmt.Errorf("compiler: %w", err)
	}

	if refDiags := p.ValidateAgainstRegistry(reg); len(refDiags) > 0 {
		return FrontendResult{
			TypedPatch: patch.TypedPatch{Patch: p, Diagnostics: refDiags},
			Stage:      "structure",
		}, nil
	}

	normRes, err := normalize.Normalize(p, reg, catalog)
	if err != nil {
		return FrontendResult{
			TypedPatch: patch.TypedPatch{Patch: p},
			Stage:      "normalize",
		}, fmt.Errorf("compiler: %w", err)
	}

	tp, err := solver.Solve(normRes.Patch, reg)
	if err != nil {
		return FrontendResult{
			TypedPatch: patch.TypedPatch{Patch: normRes.Patch, Diagnostics: normRes.Diagnostics},
			Stage:      "solve",
		}, fmt.Errorf("compiler: %w", err)
	}
	tp.Adapters = normRes.Inserted
	tp.Diagnostics = append(append([]diag.Diagnostic(nil), normRes.Diagnostics...), tp.Diagnostics...)
	tp.BackendReady = tp.BackendReady && len(normRes.Diagnostics) == 0

	tp = validate.Validate(tp, reg)

	return FrontendResult{TypedPatch: tp, Stage: ""}, nil
}

// CompileBackend runs the backend lowering stage (spec.md §6) over a
// frontend result. It refuses to lower a patch the frontend didn't mark
// ready rather than letting internal/schedule hit an unresolved axis —
// that failure mode belongs to the frontend's diagnostics, not a panic or
// a confusing backend error.
func CompileBackend(tp patch.TypedPatch, reg *registry.Registry) (schedule.Result, error) {
	if !tp.BackendReady {
		return schedule.Result{Diagnostics: tp.Diagnostics}, fmt.Errorf("compiler: patch is not backend-ready (%d diagnostics)", len(tp.Diagnostics))
	}
	return schedule.Lower(tp, reg)
}

// Compile runs the full pipeline end to end: frontend then, only if the
// result is backend-ready, the backend. A frontend failure is reported
// through FrontendResult/err exactly as CompileFrontend would; when the
// frontend result is not backend-ready, the returned schedule.Result holds
// only the frontend's diagnostics.
func Compile(p patch.Patch, reg *registry.Registry, catalog *registry.AdapterCatalog) (FrontendResult, schedule.Result, error) {
	fr, err := CompileFrontend(p, reg, catalog)
	if err != nil {
		return fr, schedule.Result{}, err
	}
	if !fr.TypedPatch.BackendReady {
		return fr, schedule.Result{Diagnostics: fr.TypedPatch.Diagnostics}, nil
	}
	br, err := CompileBackend(fr.TypedPatch, reg)
	return fr, br, err
}
