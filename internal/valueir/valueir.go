// Package valueir implements the unified value-expression IR (spec.md §3.4):
// a single six-variant expression union, hash-consed into a value graph and
// referenced by dense ids.
package valueir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
)

// ExprID is a stable, dense index into a Builder's arena. No ValueExpr
// variant carries a pointer or an instanceId field; instance identity lives
// only in a type's extent.cardinality (spec.md §3.4 invariant).
type ExprID uint32

// SlotID addresses a fixed location in the runtime state array. Owned by
// the schedule package's slot planner; valueir only carries it as an
// opaque reference inside the State variant.
type SlotID uint32

// Variant tags the six ValueExpr shapes. Closed by construction: a tagged
// sum modeled as a Go enum plus one struct per case, never open-world
// polymorphism (spec.md §9 Design Notes).
type Variant uint8

const (
	VariantConst Variant = iota
	VariantExternal
	VariantIntrinsic
	VariantKernel
	VariantState
	VariantTime
)

func (v Variant) String() string {
	switch v {
	case VariantConst:
		return "Const"
	case VariantExternal:
		return "External"
	case VariantIntrinsic:
		return "Intrinsic"
	case VariantKernel:
		return "Kernel"
	case VariantState:
		return "State"
	case VariantTime:
		return "Time"
	default:
		return "?"
	}
}

// IntrinsicKind enumerates the per-instance readings a block can request
// from the runtime's instance context (spec.md §3.4).
type IntrinsicKind uint8

const (
	IntrinsicPosition IntrinsicKind = iota
	IntrinsicIndex
	IntrinsicCount
)

// KernelOp enumerates the closed set of pure-function shapes a Kernel
// expression can take (spec.md §3.4). The specific mathematical function
// (sin, mul, add, positionXY, ...) is block-registration data, carried in
// Function, since the set of such functions is the block catalog's concern,
// not the IR's — but the dispatch *shape* is closed here.
type KernelOp uint8

const (
	KernelMap KernelOp = iota
	KernelZip
	KernelZipWithSignal
	KernelReduce
	KernelBroadcast
	KernelCombine
	KernelWrap
	KernelPathDerivative
)

func (k KernelOp) String() string {
	switch k {
	case KernelMap:
		return "map"
	case KernelZip:
		return "zip"
	case KernelZipWithSignal:
		return "zip-with-signal"
	case KernelReduce:
		return "reduce"
	case KernelBroadcast:
		return "broadcast"
	case KernelCombine:
		return "combine"
	case KernelWrap:
		return "wrap"
	case KernelPathDerivative:
		return "path-derivative"
	default:
		return "?"
	}
}

// StatePhase discriminates a State read: the continuous current value, or
// the one-shot per-frame pulse/event-flag reading (spec.md §3.4, §4.5).
type StatePhase uint8

const (
	PhaseRead StatePhase = iota
	PhasePulse
)

// ValueExpr is the single unified expression union. Every variant carries
// Type (spec.md §3.4); variant-specific fields are zero unless Variant
// selects them.
type ValueExpr struct {
	Variant Variant
	Type    ctype.CanonicalType

	// Const
	ConstValue ctype.ConstValue

	// External
	Source string

	// Intrinsic
	IntrinsicKind IntrinsicKind
	Instance      ctype.InstanceRef

	// Kernel
	Op       KernelOp
	Function string
	Inputs   []ExprID

	// State
	Slot  SlotID
	Phase StatePhase

	// Time
	TimeUnit ctype.TimeUnit
}

func (e ValueExpr) String() string {
	switch e.Variant {
	case VariantConst:
		return fmt.Sprintf("Const(%v)", e.ConstValue)
	case VariantExternal:
		return fmt.Sprintf("External(%s)", e.Source)
	case VariantIntrinsic:
		return fmt.Sprintf("Intrinsic(%d, %v)", e.IntrinsicKind, e.Instance)
	case VariantKernel:
		return fmt.Sprintf("Kernel(%s/%s, %v)", e.Op, e.Function, e.Inputs)
	case VariantState:
		return fmt.Sprintf("State(#%d, phase=%d)", e.Slot, e.Phase)
	case VariantTime:
		return fmt.Sprintf("Time(%d)", e.TimeUnit)
	default:
		return "?"
	}
}

// consKey is the hash-cons key: (variantTag, operator-specific-fields,
// inputs-as-ids, type). Every field here is comparable, so consKey itself
// is a valid map key — equal computations yield equal keys regardless of
// construction order, since types compare structurally (spec.md §4.6).
type consKey struct {
	variant       Variant
	constValue    ctype.ConstValue
	source        string
	intrinsicKind IntrinsicKind
	instance      ctype.InstanceRef
	op            KernelOp
	function      string
	inputsKey     string
	slot          SlotID
	phase         StatePhase
	timeUnit      ctype.TimeUnit
	typ           ctype.CanonicalType
}

func inputsKey(ids []ExprID) string {
	if len(ids) == 0 {
		return ""
	}
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// Builder owns the ValueExpr arena, an insertion-ordered list, and the
// hash-cons map. A single builder instance is the sole writer of the arena
// (spec.md §4.6).
type Builder struct {
	arena   []ValueExpr
	hashcon map[consKey]ExprID
}

func NewBuilder() *Builder {
	return &Builder{hashcon: make(map[consKey]ExprID)}
}

// Len returns the number of distinct (post-hash-consing) expressions.
func (b *Builder) Len() int { return len(b.arena) }

// Get returns the expression at id, validating referential integrity.
func (b *Builder) Get(id ExprID) (ValueExpr, error) {
	if int(id) >= len(b.arena) {
		return ValueExpr{}, diag.Fatal(diag.New(diag.ReferentialIntegrity, diag.NodeExpr, int(id),
			fmt.Sprintf("ValueExprId %d not in arena (len=%d)", id, len(b.arena))))
	}
	return b.arena[id], nil
}

// All returns the arena in insertion order (post dead-code elimination,
// if Sweep has been called).
func (b *Builder) All() []ValueExpr { return b.arena }

// checkInputs validates every input id against the arena (spec.md §4.6
// step 1: referential integrity).
func (b *Builder) checkInputs(ids []ExprID) error {
	for _, id := range ids {
		if int(id) >= len(b.arena) {
			return diag.Fatal(diag.New(diag.ReferentialIntegrity, diag.NodeExpr, int(id),
				fmt.Sprintf("input ValueExprId %d not in arena (len=%d)", id, len(b.arena))))
		}
	}
	return nil
}

func (b *Builder) intern(key consKey, expr ValueExpr) ExprID {
	if id, ok := b.hashcon[key]; ok {
		return id
	}
	id := ExprID(len(b.arena))
	b.arena = append(b.arena, expr)
	b.hashcon[key] = id
	return id
}

// assertConstKind enforces that a Const's type derives to "const" (spec.md
// §4.6 step 3, §8 invariant 3).
func assertConstKind(t ctype.CanonicalType) error {
	k, err := ctype.DeriveKind(t)
	if err != nil {
		return diag.Fatal(diag.New(diag.KindAgreement, diag.NodeExpr, 0, err.Error()))
	}
	if k != ctype.KindConst {
		return diag.Fatal(diag.New(diag.KindAgreement, diag.NodeExpr, 0,
			fmt.Sprintf("Const expression must derive kind 'const', got %v", k)))
	}
	return nil
}

// assertInstantiated enforces that t carries no axis variable, required of
// every non-Const variant's type before it can enter the arena.
func assertInstantiated(t ctype.CanonicalType) error {
	if _, err := ctype.DeriveKind(t); err != nil {
		return diag.Fatal(diag.New(diag.KindAgreement, diag.NodeExpr, 0, err.Error()))
	}
	return nil
}

// Const builds (or returns the existing id for) a literal expression.
// Type must have zero cardinality; its payload must match value's payload.
func (b *Builder) Const(value ctype.ConstValue, unit ctype.Unit) (ExprID, error) {
	if !ctype.ConstValueMatchesPayload(value.Payload, value) {
		return 0, diag.Fatal(diag.New(diag.ConstPayloadMismatch, diag.NodeExpr, 0,
			"ConstValue kind does not match its own payload tag"))
	}
	typ := ctype.CanonicalConst(value.Payload, unit)
	if err := assertConstKind(typ); err != nil {
		return 0, err
	}
	key := consKey{variant: VariantConst, constValue: value, typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantConst, Type: typ, ConstValue: value}), nil
}

// External builds a reading of an externally supplied signal (time, frame
// index, or host-provided input).
func (b *Builder) External(source string, typ ctype.CanonicalType) (ExprID, error) {
	if err := assertInstantiated(typ); err != nil {
		return 0, err
	}
	key := consKey{variant: VariantExternal, source: source, typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantExternal, Type: typ, Source: source}), nil
}

// Intrinsic builds a per-instance reading (position, index, count).
func (b *Builder) Intrinsic(kind IntrinsicKind, inst ctype.InstanceRef, typ ctype.CanonicalType) (ExprID, error) {
	if err := assertInstantiated(typ); err != nil {
		return 0, err
	}
	key := consKey{variant: VariantIntrinsic, intrinsicKind: kind, instance: inst, typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantIntrinsic, Type: typ, IntrinsicKind: kind, Instance: inst}), nil
}

// Kernel builds a pure function application over previously built inputs.
func (b *Builder) Kernel(op KernelOp, function string, inputs []ExprID, typ ctype.CanonicalType) (ExprID, error) {
	if err := b.checkInputs(inputs); err != nil {
		return 0, err
	}
	if err := assertInstantiated(typ); err != nil {
		return 0, err
	}
	idsCopy := append([]ExprID(nil), inputs...)
	key := consKey{variant: VariantKernel, op: op, function: function, inputsKey: inputsKey(idsCopy), typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantKernel, Type: typ, Op: op, Function: function, Inputs: idsCopy}), nil
}

// StateRead builds a continuous read of a signal or field slot.
func (b *Builder) StateRead(slot SlotID, typ ctype.CanonicalType) (ExprID, error) {
	k, err := ctype.DeriveKind(typ)
	if err != nil {
		return 0, diag.Fatal(diag.New(diag.KindAgreement, diag.NodeExpr, 0, err.Error()))
	}
	if k != ctype.KindSignal && k != ctype.KindField {
		return 0, diag.Fatal(diag.New(diag.KindAgreement, diag.NodeExpr, 0,
			fmt.Sprintf("StateRead requires a signal or field type, got %v", k)))
	}
	key := consKey{variant: VariantState, slot: slot, phase: PhaseRead, typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantState, Type: typ, Slot: slot, Phase: PhaseRead}), nil
}

// EventRead builds a one-shot pulse reading. Output type is unconditionally
// canonicalSignal(float, scalar) regardless of any caller hint (spec.md
// §4.5, §8 Boundary Behaviors).
func (b *Builder) EventRead(slot SlotID) (ExprID, error) {
	typ := ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit())
	key := consKey{variant: VariantState, slot: slot, phase: PhasePulse, typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantState, Type: typ, Slot: slot, Phase: PhasePulse}), nil
}

// Time builds a clock reading in the given unit.
func (b *Builder) Time(unit ctype.TimeUnit) (ExprID, error) {
	typ := ctype.CanonicalSignal(ctype.Float, ctype.TimeUnitOf(unit))
	key := consKey{variant: VariantTime, timeUnit: unit, typ: typ}
	return b.intern(key, ValueExpr{Variant: VariantTime, Type: typ, TimeUnit: unit}), nil
}

// Remap translates a slice of pre-sweep ExprIDs into their post-sweep
// equivalents using the mapping Sweep returned. Any id with no surviving
// mapping (dead code) is dropped silently, since by construction it was
// unreachable from every sink passed to Sweep.
func Remap(mapping map[ExprID]ExprID, ids []ExprID) []ExprID {
	out := make([]ExprID, 0, len(ids))
	for _, id := range ids {
		if newID, ok := mapping[id]; ok {
			out = append(out, newID)
		}
	}
	return out
}

// Sweep performs mark-sweep dead-code elimination (spec.md §4.6 step 4):
// starting from sinks (render targets, state writes, anything with an
// externally visible effect), it marks every transitively reachable
// ExprID, compacts the arena to just those nodes in their original
// relative order, and returns the old-id -> new-id mapping so callers can
// remap their own references (schedule steps, sink lists) in one pass.
func (b *Builder) Sweep(sinks []ExprID) map[ExprID]ExprID {
	reachable := make(map[ExprID]bool, len(b.arena))
	var mark func(id ExprID)
	mark = func(id ExprID) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, in := range b.arena[id].Inputs {
			mark(in)
		}
	}
	for _, s := range sinks {
		if int(s) < len(b.arena) {
			mark(s)
		}
	}

	newArena := make([]ValueExpr, 0, len(reachable))
	mapping := make(map[ExprID]ExprID, len(reachable))
	for oldID := 0; oldID < len(b.arena); oldID++ {
		id := ExprID(oldID)
		if !reachable[id] {
			continue
		}
		mapping[id] = ExprID(len(newArena))
		newArena = append(newArena, b.arena[id])
	}
	for i := range newArena {
		remapped := make([]ExprID, len(newArena[i].Inputs))
		for j, in := range newArena[i].Inputs {
			remapped[j] = mapping[in]
		}
		newArena[i].Inputs = remapped
	}

	b.arena = newArena
	b.hashcon = make(map[consKey]ExprID, len(newArena))
	for id, expr := range newArena {
		b.hashcon[keyOf(expr)] = ExprID(id)
	}
	return mapping
}

// keyOf reconstructs the hash-cons key for an already-built expression, used
// by Sweep to repopulate the hashcon map after compaction so subsequent
// builder calls (e.g. a later recompile step reusing this builder) keep
// interning correctly.
func keyOf(e ValueExpr) consKey {
	return consKey{
		variant:       e.Variant,
		constValue:    e.ConstValue,
		source:        e.Source,
		intrinsicKind: e.IntrinsicKind,
		instance:      e.Instance,
		op:            e.Op,
		function:      e.Function,
		inputsKey:     inputsKey(e.Inputs),
		slot:          e.Slot,
		phase:         e.Phase,
		timeUnit:      e.TimeUnit,
		typ:           e.Type,
	}
}
