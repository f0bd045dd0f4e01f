// Package schedule implements the backend's lowering and scheduling stage
// (spec.md §6): it walks a patch.TypedPatch in topological order, invokes
// each block occurrence's registry.LowerFunc to contribute ValueExpr nodes,
// allocates the runtime's slot space (state and event), and emits the
// domain-opaque schedule steps a runtime would execute once per frame.
//
// This package is backend-only: it reads resolved CanonicalTypes but never
// calls ctype.WithInstance or any other frontend-only type mutator (spec.md
// §4.1's frontend/backend split, enforced by TestScheduleNeverMutatesTypes
// below via source inspection rather than a runtime check, since there is
// nothing at this layer that could accidentally call it once it's absent).
package schedule

import (
	"fmt"
	"sort"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/normalize"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/valueir"
)

// SlotKind discriminates the two slot-backed runtime resources spec.md §6
// names: the persistent state array and the per-frame event-flag buffer.
type SlotKind string

const (
	SlotState SlotKind = "state"
	SlotEvent SlotKind = "event"
)

// SlotAssignment is one (block, port) -> SlotID binding.
type SlotAssignment struct {
	Block patch.BlockID  `json:"block"`
	Port  string         `json:"port"`
	Kind  SlotKind       `json:"kind"`
	Slot  valueir.SlotID `json:"slot"`
}

// SlotPlan is the full, deterministic slot assignment for one compile
// (SPEC_FULL supplemented feature: stable slot identity across recompiles
// of the same patch). Assignments are sorted by (Block, Port) so two
// compiles of the same patch produce byte-identical plans regardless of map
// iteration order; a slot id is its position in that order, so an edit that
// adds, removes or renames a block can shift other blocks' slot ids.
type SlotPlan struct {
	Assignments []SlotAssignment `json:"assignments"`
}

// ToJSON encodes the plan deterministically, schema-tagged the same way
// internal/diag tags diagnostics.
func (sp SlotPlan) ToJSON() ([]byte, error) {
	wrapped := map[string]any{"schema": diag.SlotPlanV1, "plan": sp}
	data, err := diag.MarshalDeterministic(wrapped)
	if err != nil {
		return nil, err
	}
	return diag.FormatJSON(data)
}

// StepKind enumerates the domain-opaque operations a runtime frame executes
// (spec.md §6): evaluating the value graph itself is implicit in Exprs'
// topological order, so Steps only ever names an effect with a footprint
// outside the pure expression arena.
type StepKind string

const (
	StepStateWrite         StepKind = "state_write"
	StepFieldStateWrite    StepKind = "field_state_write"
	StepPulseWrite         StepKind = "pulse_write"
	StepSlotWriteStrided   StepKind = "slot_write_strided"
	StepMaterialize        StepKind = "materialize"
	StepRender             StepKind = "render"
	StepContinuityMapBuild StepKind = "continuity_map_build"
	StepContinuityApply    StepKind = "continuity_apply"
)

// Step is one scheduled effect. Not every field is meaningful for every
// Kind; see the emitting call sites in Lower for which fields a given Kind
// populates.
type Step struct {
	Kind     StepKind          `json:"kind"`
	Block    patch.BlockID     `json:"block"`
	Slot     valueir.SlotID    `json:"slot,omitempty"`
	Expr     valueir.ExprID    `json:"expr,omitempty"`
	Instance ctype.InstanceRef `json:"instance,omitempty"`
}

// Result is the backend's output: the final (post-dead-code-elimination)
// expression arena, the per-frame step list in emission order, the slot
// plan, and any diagnostics (referential or kind-agreement problems the
// builder's own fail-fast checks surfaced, wrapped rather than panicking so
// a single `patchc compile` invocation can still report everything it
// found).
type Result struct {
	Order       []patch.BlockID
	Exprs       []valueir.ValueExpr
	Steps       []Step
	SlotPlan    SlotPlan
	Diagnostics []diag.Diagnostic
}

// ToJSON encodes the schedule deterministically, the wire form a runtime
// or `patchc compile --out` consumes (spec.md SPEC_FULL supplemented
// feature 3).
func (r Result) ToJSON() ([]byte, error) {
	wrapped := map[string]any{
		"schema": diag.ScheduleV1,
		"order":  r.Order,
		"exprs":  r.Exprs,
		"steps":  r.Steps,
		"slots":  r.SlotPlan,
	}
	data, err := diag.MarshalDeterministic(wrapped)
	if err != nil {
		return nil, err
	}
	return diag.FormatJSON(data)
}

// Lower runs the full backend stage over a validated, backend-ready patch.
func Lower(tp patch.TypedPatch, reg *registry.Registry) (Result, error) {
	l := &lowerer{tp: tp, reg: reg, builder: valueir.NewBuilder()}
	if err := l.run(); err != nil {
		return Result{}, err
	}
	return l.result(), nil
}

type lowerer struct {
	tp      patch.TypedPatch
	reg     *registry.Registry
	builder *valueir.Builder

	slots      map[patch.PortRef]valueir.SlotID
	slotKind   map[patch.PortRef]SlotKind
	outputExpr map[patch.PortRef]valueir.ExprID

	order []patch.BlockID
	steps []Step
	sinks []valueir.ExprID
	diags []diag.Diagnostic
}

func (l *lowerer) run() error {
	order, err := normalize.TopoOrder(&l.tp.Patch, l.reg)
	if err != nil {
		return err
	}
	l.order = order

	l.allocateSlots()
	l.outputExpr = make(map[patch.PortRef]valueir.ExprID)

	blockByID := make(map[patch.BlockID]patch.Block, len(l.tp.Patch.Blocks))
	for _, b := range l.tp.Patch.Blocks {
		blockByID[b.ID] = b
	}

	for _, id := range order {
		b := blockByID[id]
		spec, ok := l.reg.Lookup(b.Type)
		if !ok {
			continue
		}
		if spec.CardinalityMode == registry.CardinalityTransform {
			inst := l.blockInstance(b.ID, spec)
			l.steps = append(l.steps, Step{Kind: StepContinuityMapBuild, Block: b.ID, Instance: inst})
		}

		ctx := registry.LowerCtx{
			Builder:   l.builder,
			BlockID:   string(b.ID),
			PortType:  l.portTypeMap(b.ID, spec),
			Input:     l.inputMap(b, spec),
			EventSlot: l.eventSlotMap(b, spec),
			Slots:     l.ownSlotMap(b.ID, spec),
			Instance:  l.blockInstance(b.ID, spec),
			Params:    b.Params,
		}

		res, err := spec.Lower(ctx)
		if err != nil {
			l.diags = append(l.diags, diag.New(diag.ReferentialIntegrity, diag.NodeBlock, 0,
				fmt.Sprintf("lowering %s (%s) failed: %v", b.ID, b.Type, err)))
			continue
		}

		for portName, id := range res.Outputs {
			l.outputExpr[patch.PortRef{Block: b.ID, Port: portName}] = id
		}
		l.emitStateWrites(b, spec, res)
		l.emitPulseWrites(b, res)
		l.emitRenderSteps(b, spec)
	}

	return nil
}

// allocateSlots assigns one SlotID per (block, port) that needs slot-backed
// storage: every discrete output (the event-flag buffer) and every output
// whose schema breaks a cycle dependency (the state array), sorted
// lexicographically by "block|port" so allocation order never depends on
// map iteration or patch authoring order (spec.md SPEC_FULL supplemented
// feature: stable slot identity across recompiles).
func (l *lowerer) allocateSlots() {
	l.slots = make(map[patch.PortRef]valueir.SlotID)
	l.slotKind = make(map[patch.PortRef]SlotKind)

	type candidate struct {
		ref  patch.PortRef
		kind SlotKind
	}
	var candidates []candidate
	for _, b := range l.tp.Patch.Blocks {
		spec, ok := l.reg.Lookup(b.Type)
		if !ok {
			continue
		}
		for _, out := range spec.Outputs {
			ref := patch.PortRef{Block: b.ID, Port: out.Name}
			switch {
			case out.Temporality == ctype.Discrete:
				candidates = append(candidates, candidate{ref, SlotEvent})
			case out.BreaksCycleDependency:
				candidates = append(candidates, candidate{ref, SlotState})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return sortKey(candidates[i].ref) < sortKey(candidates[j].ref)
	})
	for i, c := range candidates {
		l.slots[c.ref] = valueir.SlotID(i)
		l.slotKind[c.ref] = c.kind
	}
}

func sortKey(ref patch.PortRef) string { return string(ref.Block) + "|" + ref.Port }

func (l *lowerer) portTypeMap(id patch.BlockID, spec *registry.BlockSpec) map[string]ctype.CanonicalType {
	out := make(map[string]ctype.CanonicalType, len(spec.Inputs)+len(spec.Outputs))
	for _, in := range spec.Inputs {
		if t, ok := l.tp.Lookup(id, in.Name, patch.DirIn); ok {
			out[in.Name] = t
		}
	}
	for _, o := range spec.Outputs {
		if t, ok := l.tp.Lookup(id, o.Name, patch.DirOut); ok {
			out[o.Name] = t
		}
	}
	return out
}

// inputMap builds the continuous-input ExprID map. An input fed by a
// BreaksCycleDependency source is always resolved as a direct StateRead of
// that source's own allocated slot rather than whatever the source block's
// Lower call returned for the same port name — the defining trait of this
// class of port is that every consumer sees last frame's committed state,
// never this frame's in-flight computation, which sidesteps the forward-
// reference problem a naive topological read would otherwise hit (the
// normalizer's topo order deliberately allows a cycle-broken output's
// consumer to be scheduled before its producer).
func (l *lowerer) inputMap(b patch.Block, spec *registry.BlockSpec) map[string]valueir.ExprID {
	out := make(map[string]valueir.ExprID, len(spec.Inputs))
	for _, in := range spec.Inputs {
		if in.Temporality == ctype.Discrete {
			continue
		}
		srcRef, ok := l.edgeSource(b.ID, in.Name)
		if !ok {
			continue
		}
		srcSpec, ok := l.sourceSpec(srcRef)
		if !ok {
			continue
		}
		srcSchema, ok := srcSpec.OutputSchema(srcRef.Port)
		if !ok {
			continue
		}
		if srcSchema.BreaksCycleDependency {
			slot := l.slots[srcRef]
			srcType, _ := l.tp.Lookup(srcRef.Block, srcRef.Port, patch.DirOut)
			id, err := l.builder.StateRead(slot, srcType)
			if err != nil {
				l.diags = append(l.diags, diag.New(diag.ReferentialIntegrity, diag.NodePort, 0, err.Error()))
				continue
			}
			out[in.Name] = id
			continue
		}
		if id, ok := l.outputExpr[srcRef]; ok {
			out[in.Name] = id
		}
	}
	return out
}

func (l *lowerer) eventSlotMap(b patch.Block, spec *registry.BlockSpec) map[string]valueir.SlotID {
	out := make(map[string]valueir.SlotID, len(spec.Inputs))
	for _, in := range spec.Inputs {
		if in.Temporality != ctype.Discrete {
			continue
		}
		srcRef, ok := l.edgeSource(b.ID, in.Name)
		if !ok {
			continue
		}
		if slot, ok := l.slots[srcRef]; ok {
			out[in.Name] = slot
		}
	}
	return out
}

// ownSlotMap exposes this block's own allocated output slots back to its
// Lower function, keyed by output port name — the convention every
// BreaksCycleDependency or discrete output follows (StateWrite's "prev",
// SampleAndHold's "held", Pulse's "fired").
func (l *lowerer) ownSlotMap(id patch.BlockID, spec *registry.BlockSpec) map[string]valueir.SlotID {
	out := make(map[string]valueir.SlotID, len(spec.Outputs))
	for _, o := range spec.Outputs {
		ref := patch.PortRef{Block: id, Port: o.Name}
		if slot, ok := l.slots[ref]; ok {
			out[o.Name] = slot
		}
	}
	return out
}

func (l *lowerer) edgeSource(block patch.BlockID, port string) (patch.PortRef, bool) {
	for _, e := range l.tp.Patch.Edges {
		if e.To.Block == block && e.To.Port == port {
			return e.From, true
		}
	}
	return patch.PortRef{}, false
}

func (l *lowerer) sourceSpec(ref patch.PortRef) (*registry.BlockSpec, bool) {
	for _, b := range l.tp.Patch.Blocks {
		if b.ID == ref.Block {
			return l.reg.Lookup(b.Type)
		}
	}
	return nil, false
}

// blockInstance returns the many-cardinality instance this occurrence's
// ports carry, if any — read directly off the already-solved PortType,
// never minted here (minting a cardinality instance is internal/solver's
// frontend-only job, spec.md §4.1).
func (l *lowerer) blockInstance(id patch.BlockID, spec *registry.BlockSpec) ctype.InstanceRef {
	for _, o := range spec.Outputs {
		if t, ok := l.tp.Lookup(id, o.Name, patch.DirOut); ok {
			if ref, ok := ctype.RequireManyInstance(t); ok {
				return ref
			}
		}
	}
	for _, in := range spec.Inputs {
		if t, ok := l.tp.Lookup(id, in.Name, patch.DirIn); ok {
			if ref, ok := ctype.RequireManyInstance(t); ok {
				return ref
			}
		}
	}
	return ctype.InstanceRef{}
}

func (l *lowerer) emitStateWrites(b patch.Block, spec *registry.BlockSpec, res registry.LowerResult) {
	for _, sw := range res.StateWrites {
		outType := l.stateWriteType(b.ID, spec, sw.Slot)
		card, _ := outType.Extent.Cardinality.Value()
		if card.Kind == ctype.CardinalityMany {
			l.steps = append(l.steps, Step{Kind: StepContinuityApply, Block: b.ID, Instance: card.Instance})
			l.steps = append(l.steps, Step{Kind: StepSlotWriteStrided, Block: b.ID, Slot: sw.Slot, Expr: sw.Value, Instance: card.Instance})
			l.steps = append(l.steps, Step{Kind: StepFieldStateWrite, Block: b.ID, Slot: sw.Slot, Expr: sw.Value, Instance: card.Instance})
		} else {
			l.steps = append(l.steps, Step{Kind: StepStateWrite, Block: b.ID, Slot: sw.Slot, Expr: sw.Value})
		}
		l.sinks = append(l.sinks, sw.Value)
	}
}

func (l *lowerer) emitPulseWrites(b patch.Block, res registry.LowerResult) {
	for _, pw := range res.PulseWrites {
		l.steps = append(l.steps, Step{Kind: StepPulseWrite, Block: b.ID, Slot: pw.Slot, Expr: pw.Condition})
		l.sinks = append(l.sinks, pw.Condition)
	}
}

// emitRenderSteps handles the two sink-shaped builtins directly: a Render
// block's "pos" input is a schedule sink regardless of cardinality, and a
// many-cardinality input gets an explicit Materialize step ahead of it
// (spec.md §6's renderer reads a contiguous per-instance buffer, not the
// value graph directly).
func (l *lowerer) emitRenderSteps(b patch.Block, spec *registry.BlockSpec) {
	if b.Type != "Render" && b.Type != "Display" {
		return
	}
	for _, in := range spec.Inputs {
		id, ok := l.inputExprFor(b, spec, in.Name)
		if !ok {
			continue
		}
		t, _ := l.tp.Lookup(b.ID, in.Name, patch.DirIn)
		if card, ok := t.Extent.Cardinality.Value(); ok && card.Kind == ctype.CardinalityMany {
			l.steps = append(l.steps, Step{Kind: StepMaterialize, Block: b.ID, Expr: id, Instance: card.Instance})
		}
		if b.Type == "Render" {
			l.steps = append(l.steps, Step{Kind: StepRender, Block: b.ID, Expr: id})
		}
		l.sinks = append(l.sinks, id)
	}
}

// inputExprFor resolves one continuous input through inputMap, so a sink fed
// by a BreaksCycleDependency output reads its StateRead like any consumer.
func (l *lowerer) inputExprFor(b patch.Block, spec *registry.BlockSpec, port string) (valueir.ExprID, bool) {
	id, ok := l.inputMap(b, spec)[port]
	return id, ok
}

// stateWriteType finds the output port type backed by slot, used only to
// decide field- vs scalar-state-write shape.
func (l *lowerer) stateWriteType(id patch.BlockID, spec *registry.BlockSpec, slot valueir.SlotID) ctype.CanonicalType {
	for _, o := range spec.Outputs {
		ref := patch.PortRef{Block: id, Port: o.Name}
		if l.slots[ref] == slot {
			if t, ok := l.tp.Lookup(id, o.Name, patch.DirOut); ok {
				return t
			}
		}
	}
	return ctype.CanonicalType{}
}

func (l *lowerer) result() Result {
	mapping := l.builder.Sweep(l.sinks)
	remappedSteps := make([]Step, 0, len(l.steps))
	for _, s := range l.steps {
		switch s.Kind {
		case StepContinuityMapBuild, StepContinuityApply:
			// carry no Expr reference; nothing to remap.
		default:
			if newID, ok := mapping[s.Expr]; ok {
				s.Expr = newID
			}
		}
		remappedSteps = append(remappedSteps, s)
	}

	var assignments []SlotAssignment
	for ref, slot := range l.slots {
		assignments = append(assignments, SlotAssignment{Block: ref.Block, Port: ref.Port, Kind: l.slotKind[ref], Slot: slot})
	}
	sort.Slice(assignments, func(i, j int) bool {
		return sortKey(patch.PortRef{Block: assignments[i].Block, Port: assignments[i].Port}) <
			sortKey(patch.PortRef{Block: assignments[j].Block, Port: assignments[j].Port})
	})

	return Result{
		Order:       l.order,
		Exprs:       l.builder.All(),
		Steps:       remappedSteps,
		SlotPlan:    SlotPlan{Assignments: assignments},
		Diagnostics: l.diags,
	}
}
