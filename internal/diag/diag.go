package diag

import "fmt"

// Kind is the error taxonomy from spec §7. Every diagnostic produced by any
// compiler stage carries exactly one Kind.
type Kind string

const (
	MissingAdapter       Kind = "MissingAdapter"
	CardinalityConflict  Kind = "CardinalityConflict"
	InstanceConflict     Kind = "InstanceConflict"
	UnitConflict         Kind = "UnitConflict"
	UnresolvedAxis       Kind = "UnresolvedAxis"
	BindingMismatchError Kind = "BindingMismatchError"
	AxisViolation        Kind = "AxisViolation"
	ConstPayloadMismatch Kind = "ConstPayloadMismatch"
	KindAgreement        Kind = "KindAgreement"
	ReferentialIntegrity Kind = "ReferentialIntegrity"
	AxisNotInstantiated  Kind = "AxisNotInstantiated"
)

// Phase names the stage that raised a diagnostic, used for grouping (see
// PhaseOf below).
type Phase string

const (
	PhaseNormalizer Phase = "normalizer"
	PhaseSolver     Phase = "solver"
	PhaseValidator  Phase = "validator"
	PhaseBuilder    Phase = "builder"
	PhaseBackend    Phase = "backend"
)

var kindPhase = map[Kind]Phase{
	MissingAdapter:       PhaseNormalizer,
	CardinalityConflict:  PhaseSolver,
	InstanceConflict:     PhaseSolver,
	UnitConflict:         PhaseSolver,
	UnresolvedAxis:       PhaseSolver,
	BindingMismatchError: PhaseSolver,
	AxisViolation:        PhaseValidator,
	ConstPayloadMismatch: PhaseBuilder,
	KindAgreement:        PhaseBuilder,
	ReferentialIntegrity: PhaseBuilder,
	AxisNotInstantiated:  PhaseBackend,
}

// PhaseOf returns the stage that raises diagnostics of the given kind.
func PhaseOf(k Kind) Phase { return kindPhase[k] }

// NodeKind names what a diagnostic's locator points at. Never hardcoded to
// a single node shape (spec §4.5): a diagnostic can point at a block, an
// edge, a port, or an expression.
type NodeKind string

const (
	NodeBlock NodeKind = "block"
	NodeEdge  NodeKind = "edge"
	NodePort  NodeKind = "port"
	NodeExpr  NodeKind = "expr"
)

// Remedy enumerates the structured fixes a BindingMismatchError can suggest.
type Remedy string

const (
	RemedyInsertStateOp      Remedy = "insert-state-op"
	RemedyInsertContinuityOp Remedy = "insert-continuity-op"
	RemedyRewire             Remedy = "rewire"
)

// Diagnostic is a structured record produced by any compiler stage.
type Diagnostic struct {
	Kind      Kind     `json:"kind"`
	NodeKind  NodeKind `json:"node_kind"`
	NodeIndex int      `json:"node_index"`
	Message   string   `json:"message"`

	// Kind-specific payload, all optional.
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Remedy   Remedy `json:"remedy,omitempty"`
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s[%d]: %s", d.Kind, d.NodeKind, d.NodeIndex, d.Message)
}

// New builds a Diagnostic with a locator.
func New(kind Kind, nodeKind NodeKind, nodeIndex int, message string) Diagnostic {
	return Diagnostic{Kind: kind, NodeKind: nodeKind, NodeIndex: nodeIndex, Message: message}
}

// WithTypes attaches expected/actual type strings to a diagnostic.
func (d Diagnostic) WithTypes(expected, actual string) Diagnostic {
	d.Expected = expected
	d.Actual = actual
	return d
}

// WithRemedy attaches a structured remedy (used by BindingMismatchError).
func (d Diagnostic) WithRemedy(r Remedy) Diagnostic {
	d.Remedy = r
	return d
}

// ToJSON encodes a diagnostic deterministically.
func (d Diagnostic) ToJSON() ([]byte, error) {
	wrapped := map[string]any{
		"schema": DiagnosticV1,
		"diag":   d,
	}
	data, err := MarshalDeterministic(wrapped)
	if err != nil {
		return nil, err
	}
	return FormatJSON(data)
}

// List is a diagnostic accumulator used by stages that report multiple
// problems per run (normalizer, solver) rather than failing fast.
type List struct {
	items []Diagnostic
}

func (l *List) Add(d Diagnostic) { l.items = append(l.items, d) }

func (l *List) HasErrors() bool { return len(l.items) > 0 }

func (l *List) Items() []Diagnostic { return l.items }

// FatalError is raised by stages that check invariants eagerly and fail
// fast (builder-class errors): ConstPayloadMismatch, KindAgreement,
// ReferentialIntegrity, and the backend-only AxisNotInstantiated bug class.
type FatalError struct {
	Diagnostic
}

func (e *FatalError) Error() string { return e.Diagnostic.Error() }

// Fatal wraps a diagnostic as a fatal, fail-fast error.
func Fatal(d Diagnostic) *FatalError { return &FatalError{Diagnostic: d} }
