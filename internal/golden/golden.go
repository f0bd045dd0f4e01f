// Package golden distills a compile result into the few axes spec.md's
// end-to-end scenarios (§8) make claims about — adapters inserted,
// expression variants, step kinds, diagnostics, and backend readiness —
// the same kind of reduction testutil/golden.go applies to an AST/Core
// value before diffing it against a fixture. Unlike the teacher's
// convention, these tests compare against an inline expected Summary
// rather than a committed fixture file; see DESIGN.md for why.
package golden

import (
	"github.com/flowpatch/corec/internal/compiler"
	"github.com/flowpatch/corec/internal/schedule"
)

// Summary is the reduced, hand-traceable shape of one compile.
type Summary struct {
	BackendReady    bool
	DiagnosticKinds []string
	AdapterTypes    []string
	ExprVariants    []string
	StepKinds       []string
}

// Summarize reduces a frontend/backend pair into a Summary. When
// fr.TypedPatch.BackendReady is false, br carries only the frontend's
// diagnostics (no Exprs or Steps), since compiler.Compile never runs the
// backend over a not-ready frontend.
func Summarize(fr compiler.FrontendResult, br schedule.Result) Summary {
	s := Summary{BackendReady: fr.TypedPatch.BackendReady}
	for _, d := range fr.TypedPatch.Diagnostics {
		s.DiagnosticKinds = append(s.DiagnosticKinds, string(d.Kind))
	}
	for _, a := range fr.TypedPatch.Adapters {
		s.AdapterTypes = append(s.AdapterTypes, a.AdapterType)
	}
	for _, e := range br.Exprs {
		s.ExprVariants = append(s.ExprVariants, e.Variant.String())
	}
	for _, st := range br.Steps {
		s.StepKinds = append(s.StepKinds, string(st.Kind))
	}
	return s
}
