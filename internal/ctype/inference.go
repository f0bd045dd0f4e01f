package ctype

// InferencePayloadType is the variable-bearing form of Payload used only by
// the solver during constraint propagation (spec.md §4.1, Testable
// Property 2: no payload variable ever reaches a CanonicalType reachable
// from a TypedPatch).
type InferencePayloadType = Axis[Payload]

// InferenceCanonicalType mirrors CanonicalType but allows every field,
// including the payload, to be an unresolved variable. It exists solely so
// the solver has somewhere to put payload variables before resolution;
// nothing downstream of the frontend ever sees one.
type InferenceCanonicalType struct {
	Payload InferencePayloadType
	Unit    Axis[Unit]
	Extent  Extent
}

// IsFullyInstantiated reports whether every field is Inst, the condition
// Instantiate requires (it panics otherwise).
func (it InferenceCanonicalType) IsFullyInstantiated() bool {
	return !it.Payload.IsVar() && !it.Unit.IsVar() && it.Extent.IsFullyInstantiated()
}

// Instantiate panics if it is not fully instantiated; callers must check
// IsFullyInstantiated first (mirrors Axis.MustValue's contract).
func (it InferenceCanonicalType) Instantiate() CanonicalType {
	payload := it.Payload.MustValue()
	unit := it.Unit.MustValue()
	return CanonicalType{Payload: payload, Unit: unit, Extent: it.Extent}
}

// FromCanonical lifts a fully instantiated CanonicalType into inference
// space, used when a solver group is seeded from a concrete port type.
func FromCanonical(t CanonicalType) InferenceCanonicalType {
	return InferenceCanonicalType{
		Payload: InstAxis(t.Payload),
		Unit:    InstAxis(t.Unit),
		Extent:  t.Extent,
	}
}
