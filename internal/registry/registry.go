// Package registry implements the block registry (spec.md §4.2): per-block
// metadata the normalizer and solver consult to build each block
// occurrence's port types, plus the lowering function the backend calls
// when it's that block's turn to contribute ValueExpr nodes.
package registry

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/valueir"
)

// CardinalityMode governs how the solver builds the cardinality-constraint
// group for one block occurrence (spec.md §4.2, §4.4.2).
type CardinalityMode string

const (
	// CardinalityPreserve unions every input and output port into one
	// cardinality group: whatever the inputs resolve to, the outputs match.
	CardinalityPreserve CardinalityMode = "preserve"
	// CardinalityTransform forces every output into a fresh many-cardinality
	// group carrying a new instance, independent of the inputs' groups
	// (e.g. Array: no inputs, one field of a fresh instance out).
	CardinalityTransform CardinalityMode = "transform"
	// CardinalitySignalOnly fixes every port to one-cardinality.
	CardinalitySignalOnly CardinalityMode = "signalOnly"
	// CardinalityFieldOnly fixes every port to many-cardinality, inheriting
	// whichever concrete instance the edges resolve it to.
	CardinalityFieldOnly CardinalityMode = "fieldOnly"
)

// BroadcastPolicy governs whether the solver may relax a cardinality
// mismatch at this block's inputs (spec.md §4.4.2's zip-broadcast
// relaxation). The relaxation inserts no adapter block: a one-cardinality
// input stays a signal that the block's Kernel zips against the field.
type BroadcastPolicy string

const (
	// BroadcastAllowZipSignal permits one-cardinality inputs to broadcast
	// against many-cardinality siblings feeding the same block occurrence.
	BroadcastAllowZipSignal BroadcastPolicy = "allowZipSig"
	// BroadcastRequireExplicit forbids silent broadcast; a dedicated
	// Broadcast block must already sit on the edge.
	BroadcastRequireExplicit BroadcastPolicy = "requireBroadcastExpr"
	// BroadcastDisallowMix forbids any signal/field mixing at this block's
	// inputs outright — all inputs must already share one cardinality.
	BroadcastDisallowMix BroadcastPolicy = "disallowSignalMix"
)

// LaneCoupling governs whether a block's many outputs that logically pair up
// (e.g. a position field and its derivative) must share one contiguous slot
// range (spec.md §4.2). It is recorded on each BlockSpec; internal/schedule
// does not read it.
type LaneCoupling string

const (
	LaneLocal   LaneCoupling = "laneLocal"
	LaneCoupled LaneCoupling = "laneCoupled"
)

// BindingTemplate is a port's declared binding axis value. Unlike
// cardinality, binding is never a per-occurrence free variable in this
// registry: every built-in block declares it concretely, matching how few
// of spec.md's scenarios actually exercise binding polymorphism.
type BindingTemplate = ctype.BindingValue

// PortSchema is one port's declared, concrete (non-variable) type template.
// Only Cardinality is solved per occurrence; Payload, Unit, Temporality and
// Binding are registry data (spec.md §4.2: "a port schema whose inferred
// type entries may contain variables" is realized here purely through
// CardinalityMode, since every built-in block's payload/unit/temporality/
// binding is fixed at registration time — see DESIGN.md for why per-port
// payload polymorphism is out of scope for the built-in catalog).
type PortSchema struct {
	Name        string
	Payload     ctype.Payload
	Unit        ctype.Unit
	Temporality ctype.TemporalityValue
	Binding     BindingTemplate
	// BreaksCycleDependency marks an output port whose value does not
	// depend on this occurrence's inputs within the same frame (it reflects
	// prior-frame state instead). The normalizer's topological sort omits
	// the dependency edge this port would otherwise impose, which is how
	// spec.md §3.2's "state-read/state-write pairs... break cycles by kind"
	// is realized without a separate node kind for reads versus writes.
	BreaksCycleDependency bool
}

// LowerCtx is everything a block's lowering function needs to contribute
// ValueExpr nodes for one occurrence: the builder to intern into, resolved
// per-port types, and resolved input ExprIDs by port name.
//
// Continuous ports (signal/field) flow as an ordinary dataflow graph through
// Input/Outputs. Discrete (event) ports do not: an event is backed by a
// slot the producer writes a fired/not-fired flag into each frame and a
// consumer reads with Builder.EventRead, exactly like persistent state
// (spec.md §6's "event-flag buffer"). So a discrete input port's upstream
// is named in EventSlot, not Input, and a discrete output port's slot (for
// this block's own PulseWrites to target) is named in Slots.
type LowerCtx struct {
	Builder *valueir.Builder
	// BlockID is this occurrence's stable identifier. (The solver derives
	// minted instance names from the patch's block id directly.)
	BlockID string
	// PortType maps this occurrence's port name to its solved CanonicalType.
	PortType map[string]ctype.CanonicalType
	// Input maps a continuous input port name to the already-lowered,
	// already-adapted ExprID feeding it.
	Input map[string]valueir.ExprID
	// EventSlot maps a discrete input port name to the upstream producer's
	// event-flag slot.
	EventSlot map[string]valueir.SlotID
	// Slots maps a logical per-block slot name (chosen by the block's own
	// Lower implementation, e.g. "held") to the SlotID the scheduler
	// allocated for it, keyed upstream on (BlockID, slot name).
	Slots map[string]valueir.SlotID
	// Instance is this occurrence's resolved many-cardinality instance, if
	// any of its ports carry one; zero value otherwise.
	Instance ctype.InstanceRef
	// Params carries block-instance literal configuration (e.g. the
	// "value" literal of Number and DegreesInput) threaded through from the
	// patch.
	Params map[string]ctype.ConstValue
}

// StateWrite requests that Value be written into Slot as a continuous
// state-write schedule step, evaluated after this block's outputs.
type StateWrite struct {
	Slot  valueir.SlotID
	Value valueir.ExprID
}

// PulseWrite requests that Slot's event flag be set from Condition (a
// bool-payload continuous expression) each frame, the discrete-side
// counterpart of StateWrite.
type PulseWrite struct {
	Slot      valueir.SlotID
	Condition valueir.ExprID
}

// LowerResult is everything a block occurrence contributes: its output
// expressions plus any slot writes its semantics require.
type LowerResult struct {
	Outputs     map[string]valueir.ExprID
	StateWrites []StateWrite
	PulseWrites []PulseWrite
}

// LowerFunc builds this block occurrence's contribution to the value graph.
type LowerFunc func(ctx LowerCtx) (LowerResult, error)

// BlockSpec is one block type's full registration.
type BlockSpec struct {
	TypeName        string
	Inputs          []PortSchema
	Outputs         []PortSchema
	CardinalityMode CardinalityMode
	BroadcastPolicy BroadcastPolicy
	LaneCoupling    LaneCoupling
	Lower           LowerFunc
}

func (s *BlockSpec) InputSchema(name string) (PortSchema, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSchema{}, false
}

func (s *BlockSpec) OutputSchema(name string) (PortSchema, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return PortSchema{}, false
}

// Registry is the block catalog. Registration order is preserved and used
// as the deterministic tie-break the normalizer relies on when more than
// one adapter could bridge the same mismatch (spec.md §4.3:
// "earliest-registered wins").
type Registry struct {
	frozen bool
	order  []string
	blocks map[string]*BlockSpec
}

func New() *Registry {
	return &Registry{blocks: make(map[string]*BlockSpec)}
}

// Register adds a block type. The type name and every port name are
// NFC-normalized first, so two editor builds that produced the same name
// with different Unicode normal forms (e.g. a precomposed vs. a combining
// accent) still collide on the same registration rather than silently
// coexisting as two unrelated block types. Panics on duplicate type names
// or on a frozen registry — both are programmer errors in registration
// code, not input-dependent failures, so they are not part of the
// diagnostic taxonomy (spec.md §7 is about compiling patches, not about
// misconfigured registries).
func (r *Registry) Register(spec *BlockSpec) {
	spec.TypeName = norm.NFC.String(spec.TypeName)
	for i := range spec.Inputs {
		spec.Inputs[i].Name = norm.NFC.String(spec.Inputs[i].Name)
	}
	for i := range spec.Outputs {
		spec.Outputs[i].Name = norm.NFC.String(spec.Outputs[i].Name)
	}

	if r.frozen {
		panic(fmt.Sprintf("registry: Register(%q) called on a frozen registry", spec.TypeName))
	}
	if _, exists := r.blocks[spec.TypeName]; exists {
		panic(fmt.Sprintf("registry: duplicate block type %q", spec.TypeName))
	}
	r.blocks[spec.TypeName] = spec
	r.order = append(r.order, spec.TypeName)
}

// Freeze locks the registry against further registration, the mode the
// compiler runs in once startup is complete (spec.md SPEC_FULL ambient
// stack: a frozen-registry compile mode).
func (r *Registry) Freeze() { r.frozen = true }

func (r *Registry) Frozen() bool { return r.frozen }

func (r *Registry) Lookup(typeName string) (*BlockSpec, bool) {
	s, ok := r.blocks[norm.NFC.String(typeName)]
	return s, ok
}

// TypeNames returns every registered type name in registration order.
func (r *Registry) TypeNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedTypeNames returns every registered type name alphabetically, used
// by anything that needs deterministic output independent of registration
// order (e.g. the REPL's :blocks command).
func (r *Registry) SortedTypeNames() []string {
	out := r.TypeNames()
	sort.Strings(out)
	return out
}
