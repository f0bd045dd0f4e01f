package registry

import (
	"fmt"
	"math"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/valueir"
)

// scalarSignal is shorthand used throughout this file's port declarations.
func scalarSignal(p ctype.Payload) PortSchema {
	return PortSchema{Payload: p, Unit: ctype.ScalarUnit(), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}
}

func named(p PortSchema, name string) PortSchema { p.Name = name; return p }

func withCycleBreak(p PortSchema) PortSchema { p.BreaksCycleDependency = true; return p }

func cardinalityGroup(ctx LowerCtx, portName string) ctype.CardinalityValue {
	cv, _ := ctx.PortType[portName].Extent.Cardinality.Value()
	return cv
}

// kernelOpFor picks the generic Kernel dispatch shape for an elementwise
// function over a set of inputs, given each input's resolved cardinality
// (spec.md §4.4.2's zip/map distinction realized at lowering time once
// cardinality is known).
func kernelOpFor(cards []ctype.CardinalityValue) valueir.KernelOp {
	manyCount := 0
	for _, c := range cards {
		if c.Kind == ctype.CardinalityMany {
			manyCount++
		}
	}
	switch {
	case manyCount == 0:
		return valueir.KernelMap
	case manyCount == len(cards):
		return valueir.KernelZip
	default:
		return valueir.KernelZipWithSignal
	}
}

// LoadBuiltins returns a frozen registry holding the block catalog named
// across SPEC_FULL.md's worked scenarios (Time, Sin, Mul, Array,
// IndexValue, PositionXY, DegreesInput, Number, AddIndex, Pulse,
// SampleAndHold, StateWrite, Render, Display) plus the adapter catalog the
// normalizer consults (unit conversion, world-to-NDC, event-to-signal).
func LoadBuiltins() (*Registry, *AdapterCatalog) {
	r := New()

	r.Register(&BlockSpec{
		TypeName:        "Time",
		Outputs:         []PortSchema{named(PortSchema{Payload: ctype.Float, Unit: ctype.TimeUnitOf(ctype.Seconds), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "t")},
		CardinalityMode: CardinalitySignalOnly,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			id, err := ctx.Builder.Time(ctype.Seconds)
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"t": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName:        "Sin",
		Inputs:          []PortSchema{named(PortSchema{Payload: ctype.Float, Unit: ctype.AngleUnitOf(ctype.Radians), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "x")},
		Outputs:         []PortSchema{named(scalarSignal(ctype.Float), "y")},
		CardinalityMode: CardinalityPreserve,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			x, ok := ctx.Input["x"]
			if !ok {
				return LowerResult{}, fmt.Errorf("Sin: missing input x")
			}
			op := kernelOpFor([]ctype.CardinalityValue{cardinalityGroup(ctx, "x")})
			id, err := ctx.Builder.Kernel(op, "sin", []valueir.ExprID{x}, ctx.PortType["y"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"y": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "Mul",
		Inputs: []PortSchema{
			named(scalarSignal(ctype.Float), "a"),
			named(scalarSignal(ctype.Float), "b"),
		},
		Outputs:         []PortSchema{named(scalarSignal(ctype.Float), "y")},
		CardinalityMode: CardinalityPreserve,
		BroadcastPolicy: BroadcastAllowZipSignal,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			a, aok := ctx.Input["a"]
			b, bok := ctx.Input["b"]
			if !aok || !bok {
				return LowerResult{}, fmt.Errorf("Mul: missing input")
			}
			op := kernelOpFor([]ctype.CardinalityValue{cardinalityGroup(ctx, "a"), cardinalityGroup(ctx, "b")})
			id, err := ctx.Builder.Kernel(op, "mul", []valueir.ExprID{a, b}, ctx.PortType["y"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"y": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName:        "Array",
		Outputs:         []PortSchema{named(PortSchema{Payload: ctype.Int, Unit: ctype.CountUnit(), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "index")},
		CardinalityMode: CardinalityTransform,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			id, err := ctx.Builder.Intrinsic(valueir.IntrinsicIndex, ctx.Instance, ctx.PortType["index"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"index": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName:        "IndexValue",
		Outputs:         []PortSchema{named(scalarSignal(ctype.Float), "value")},
		CardinalityMode: CardinalityTransform,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			id, err := ctx.Builder.Intrinsic(valueir.IntrinsicIndex, ctx.Instance, ctx.PortType["value"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"value": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "PositionXY",
		Inputs:   []PortSchema{named(PortSchema{Payload: ctype.Int, Unit: ctype.CountUnit(), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "index")},
		Outputs:  []PortSchema{named(PortSchema{Payload: ctype.Vec2, Unit: ctype.SpaceUnitOf(ctype.World, 2), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "pos")},
		CardinalityMode: CardinalityPreserve,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			idx, ok := ctx.Input["index"]
			if !ok {
				return LowerResult{}, fmt.Errorf("PositionXY: missing input index")
			}
			op := kernelOpFor([]ctype.CardinalityValue{cardinalityGroup(ctx, "index")})
			id, err := ctx.Builder.Kernel(op, "positionXY", []valueir.ExprID{idx}, ctx.PortType["pos"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"pos": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName:        "DegreesInput",
		Outputs:         []PortSchema{named(PortSchema{Payload: ctype.Float, Unit: ctype.AngleUnitOf(ctype.Degrees), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "deg")},
		CardinalityMode: CardinalitySignalOnly,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			v := ctx.Params["value"]
			if v.Payload != ctype.Float {
				v = ctype.ConstFloat(0)
			}
			id, err := ctx.Builder.Const(v, ctype.AngleUnitOf(ctype.Degrees))
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"deg": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "AddIndex",
		Inputs: []PortSchema{
			named(PortSchema{Payload: ctype.Int, Unit: ctype.CountUnit(), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "a"),
			named(PortSchema{Payload: ctype.Int, Unit: ctype.CountUnit(), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "b"),
		},
		Outputs:         []PortSchema{named(PortSchema{Payload: ctype.Int, Unit: ctype.CountUnit(), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "sum")},
		CardinalityMode: CardinalityPreserve,
		BroadcastPolicy: BroadcastAllowZipSignal,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			a, aok := ctx.Input["a"]
			b, bok := ctx.Input["b"]
			if !aok || !bok {
				return LowerResult{}, fmt.Errorf("AddIndex: missing input")
			}
			op := kernelOpFor([]ctype.CardinalityValue{cardinalityGroup(ctx, "a"), cardinalityGroup(ctx, "b")})
			id, err := ctx.Builder.Kernel(op, "addIndex", []valueir.ExprID{a, b}, ctx.PortType["sum"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"sum": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName:        "Number",
		Outputs:         []PortSchema{named(scalarSignal(ctype.Float), "value")},
		CardinalityMode: CardinalitySignalOnly,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			v := ctx.Params["value"]
			if v.Payload != ctype.Float {
				v = ctype.ConstFloat(0)
			}
			id, err := ctx.Builder.Const(v, ctype.ScalarUnit())
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"value": id}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "Pulse",
		Outputs:  []PortSchema{named(PortSchema{Payload: ctype.Bool, Unit: ctype.NoneUnit(), Temporality: ctype.Discrete, Binding: ctype.UnboundValue()}, "fired")},
		CardinalityMode: CardinalitySignalOnly,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			cond, err := ctx.Builder.External("pulseTrigger", ctype.CanonicalSignal(ctype.Bool, ctype.NoneUnit()))
			if err != nil {
				return LowerResult{}, err
			}
			slot, ok := ctx.Slots["fired"]
			if !ok {
				return LowerResult{}, fmt.Errorf("Pulse: no event slot allocated for output fired")
			}
			return LowerResult{PulseWrites: []PulseWrite{{Slot: slot, Condition: cond}}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "SampleAndHold",
		Inputs: []PortSchema{
			named(PortSchema{Payload: ctype.Bool, Unit: ctype.NoneUnit(), Temporality: ctype.Discrete, Binding: ctype.UnboundValue()}, "trigger"),
			named(scalarSignal(ctype.Float), "value"),
		},
		Outputs:         []PortSchema{withCycleBreak(named(scalarSignal(ctype.Float), "held"))},
		CardinalityMode: CardinalitySignalOnly,
		Lower:           sampleAndHoldLower,
	})

	r.Register(&BlockSpec{
		TypeName:        "StateWrite",
		Inputs:          []PortSchema{named(scalarSignal(ctype.Float), "value")},
		Outputs:         []PortSchema{withCycleBreak(named(scalarSignal(ctype.Float), "prev"))},
		CardinalityMode: CardinalityPreserve,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			value, ok := ctx.Input["value"]
			if !ok {
				return LowerResult{}, fmt.Errorf("StateWrite: missing input value")
			}
			slot, ok := ctx.Slots["prev"]
			if !ok {
				return LowerResult{}, fmt.Errorf("StateWrite: no slot allocated")
			}
			prev, err := ctx.Builder.StateRead(slot, ctx.PortType["prev"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{
				Outputs:     map[string]valueir.ExprID{"prev": prev},
				StateWrites: []StateWrite{{Slot: slot, Value: value}},
			}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "Render",
		Inputs:   []PortSchema{named(PortSchema{Payload: ctype.Vec2, Unit: ctype.SpaceUnitOf(ctype.NDC, 2), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "pos")},
		CardinalityMode: CardinalityPreserve,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			return LowerResult{Outputs: map[string]valueir.ExprID{}}, nil
		},
	})

	r.Register(&BlockSpec{
		TypeName: "Display",
		Inputs:   []PortSchema{named(scalarSignal(ctype.Float), "value")},
		CardinalityMode: CardinalitySignalOnly,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			return LowerResult{Outputs: map[string]valueir.ExprID{}}, nil
		},
	})

	registerAdapterBlocks(r)
	r.Freeze()

	return r, builtinAdapterCatalog()
}

// sampleAndHoldLower is the SampleAndHold block's lowering. The
// auto-inserted $adapter.eventToSignal (registerAdapterBlocks, below) does
// not reuse it: its own Lower is a bare Builder.EventRead of the trigger
// slot, with no held state.
func sampleAndHoldLower(ctx LowerCtx) (LowerResult, error) {
	triggerSlot, ok := ctx.EventSlot["trigger"]
	if !ok {
		return LowerResult{}, fmt.Errorf("SampleAndHold: no upstream event slot for trigger")
	}
	value, ok := ctx.Input["value"]
	if !ok {
		return LowerResult{}, fmt.Errorf("SampleAndHold: missing input value")
	}
	heldSlot, ok := ctx.Slots["held"]
	if !ok {
		return LowerResult{}, fmt.Errorf("SampleAndHold: no slot allocated for held")
	}

	triggerFlag, err := ctx.Builder.EventRead(triggerSlot)
	if err != nil {
		return LowerResult{}, err
	}
	prevHeld, err := ctx.Builder.StateRead(heldSlot, ctx.PortType["held"])
	if err != nil {
		return LowerResult{}, err
	}
	nextHeld, err := ctx.Builder.Kernel(valueir.KernelCombine, "sampleHold", []valueir.ExprID{triggerFlag, value, prevHeld}, ctx.PortType["held"])
	if err != nil {
		return LowerResult{}, err
	}
	return LowerResult{
		Outputs:     map[string]valueir.ExprID{"held": nextHeld},
		StateWrites: []StateWrite{{Slot: heldSlot, Value: nextHeld}},
	}, nil
}

// unitConvertLower builds a single-input, single-output adapter that maps
// its input through fn.
func unitConvertLower(fn func(float64) float64, name string) LowerFunc {
	return func(ctx LowerCtx) (LowerResult, error) {
		x, ok := ctx.Input["in"]
		if !ok {
			return LowerResult{}, fmt.Errorf("%s: missing input in", name)
		}
		op := kernelOpFor([]ctype.CardinalityValue{cardinalityGroup(ctx, "in")})
		id, err := ctx.Builder.Kernel(op, name, []valueir.ExprID{x}, ctx.PortType["out"])
		if err != nil {
			return LowerResult{}, err
		}
		_ = fn // fn documents intent for the backend's kernel table; the
		// compiler front/mid-end only needs the function's identity here.
		return LowerResult{Outputs: map[string]valueir.ExprID{"out": id}}, nil
	}
}

func registerAdapterBlocks(r *Registry) {
	anyFloatSignal := named(scalarSignal(ctype.Float), "in")
	anyFloatOut := named(scalarSignal(ctype.Float), "out")

	degToRad := anyFloatSignal
	degToRad.Unit = ctype.AngleUnitOf(ctype.Degrees)
	radOut := anyFloatOut
	radOut.Unit = ctype.AngleUnitOf(ctype.Radians)
	r.Register(&BlockSpec{
		TypeName:        "$adapter.degToRad",
		Inputs:          []PortSchema{degToRad},
		Outputs:         []PortSchema{radOut},
		CardinalityMode: CardinalityPreserve,
		Lower:           unitConvertLower(func(d float64) float64 { return d * math.Pi / 180 }, "degToRad"),
	})

	radIn := anyFloatSignal
	radIn.Unit = ctype.AngleUnitOf(ctype.Radians)
	degOut := anyFloatOut
	degOut.Unit = ctype.AngleUnitOf(ctype.Degrees)
	r.Register(&BlockSpec{
		TypeName:        "$adapter.radToDeg",
		Inputs:          []PortSchema{radIn},
		Outputs:         []PortSchema{degOut},
		CardinalityMode: CardinalityPreserve,
		Lower:           unitConvertLower(func(r float64) float64 { return r * 180 / math.Pi }, "radToDeg"),
	})

	phaseOut := anyFloatOut
	phaseOut.Unit = ctype.AngleUnitOf(ctype.Phase01)
	r.Register(&BlockSpec{
		TypeName:        "$adapter.degToPhase01",
		Inputs:          []PortSchema{degToRad},
		Outputs:         []PortSchema{phaseOut},
		CardinalityMode: CardinalityPreserve,
		Lower:           unitConvertLower(func(d float64) float64 { return math.Mod(d, 360) / 360 }, "degToPhase01"),
	})

	phaseIn := anyFloatSignal
	phaseIn.Unit = ctype.AngleUnitOf(ctype.Phase01)
	r.Register(&BlockSpec{
		TypeName:        "$adapter.phase01ToDeg",
		Inputs:          []PortSchema{phaseIn},
		Outputs:         []PortSchema{degOut},
		CardinalityMode: CardinalityPreserve,
		Lower:           unitConvertLower(func(p float64) float64 { return p * 360 }, "phase01ToDeg"),
	})

	worldPos := named(PortSchema{Payload: ctype.Vec2, Unit: ctype.SpaceUnitOf(ctype.World, 2), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "in")
	ndcPos := named(PortSchema{Payload: ctype.Vec2, Unit: ctype.SpaceUnitOf(ctype.NDC, 2), Temporality: ctype.Continuous, Binding: ctype.UnboundValue()}, "out")
	r.Register(&BlockSpec{
		TypeName:        "$adapter.worldToNDC",
		Inputs:          []PortSchema{worldPos},
		Outputs:         []PortSchema{ndcPos},
		CardinalityMode: CardinalityPreserve,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			x, ok := ctx.Input["in"]
			if !ok {
				return LowerResult{}, fmt.Errorf("worldToNDC: missing input in")
			}
			op := kernelOpFor([]ctype.CardinalityValue{cardinalityGroup(ctx, "in")})
			id, err := ctx.Builder.Kernel(op, "worldToNDC", []valueir.ExprID{x}, ctx.PortType["out"])
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"out": id}}, nil
		},
	})

	// $adapter.eventToSignal bridges a single edge: it has no wire for "what
	// to output between pulses" the way the explicit SampleAndHold block
	// does, so its semantics are the simpler eventRead indicator (1.0 the
	// frame an event fires, 0.0 otherwise) rather than hold-last-value.
	r.Register(&BlockSpec{
		TypeName: "$adapter.eventToSignal",
		Inputs: []PortSchema{
			named(PortSchema{Payload: ctype.Bool, Unit: ctype.NoneUnit(), Temporality: ctype.Discrete, Binding: ctype.UnboundValue()}, "in"),
		},
		Outputs:         []PortSchema{named(scalarSignal(ctype.Float), "out")},
		CardinalityMode: CardinalitySignalOnly,
		Lower: func(ctx LowerCtx) (LowerResult, error) {
			slot, ok := ctx.EventSlot["in"]
			if !ok {
				return LowerResult{}, fmt.Errorf("eventToSignal: no upstream event slot for in")
			}
			id, err := ctx.Builder.EventRead(slot)
			if err != nil {
				return LowerResult{}, err
			}
			return LowerResult{Outputs: map[string]valueir.ExprID{"out": id}}, nil
		},
	})
}

func builtinAdapterCatalog() *AdapterCatalog {
	c := NewAdapterCatalog()

	angleKind := func(u ctype.Unit) (ctype.AngleUnit, bool) {
		if u.Kind != ctype.UnitAngle {
			return 0, false
		}
		return u.Angle, true
	}

	c.Register(AdapterSpec{
		ID:        "degToRad",
		BlockType: "$adapter.degToRad",
		MatchUnit: func(source, target ctype.Unit) bool {
			s, sok := angleKind(source)
			t, tok := angleKind(target)
			return sok && tok && s == ctype.Degrees && t == ctype.Radians
		},
	})
	c.Register(AdapterSpec{
		ID:        "radToDeg",
		BlockType: "$adapter.radToDeg",
		MatchUnit: func(source, target ctype.Unit) bool {
			s, sok := angleKind(source)
			t, tok := angleKind(target)
			return sok && tok && s == ctype.Radians && t == ctype.Degrees
		},
	})
	c.Register(AdapterSpec{
		ID:        "degToPhase01",
		BlockType: "$adapter.degToPhase01",
		MatchUnit: func(source, target ctype.Unit) bool {
			s, sok := angleKind(source)
			t, tok := angleKind(target)
			return sok && tok && s == ctype.Degrees && t == ctype.Phase01
		},
	})
	c.Register(AdapterSpec{
		ID:        "phase01ToDeg",
		BlockType: "$adapter.phase01ToDeg",
		MatchUnit: func(source, target ctype.Unit) bool {
			s, sok := angleKind(source)
			t, tok := angleKind(target)
			return sok && tok && s == ctype.Phase01 && t == ctype.Degrees
		},
	})
	c.Register(AdapterSpec{
		ID:        "worldToNDC",
		BlockType: "$adapter.worldToNDC",
		MatchUnit: func(source, target ctype.Unit) bool {
			return source.Kind == ctype.UnitSpace && target.Kind == ctype.UnitSpace &&
				source.Space.Frame == ctype.World && target.Space.Frame == ctype.NDC &&
				source.Space.Dims == target.Space.Dims
		},
	})
	c.Register(AdapterSpec{
		ID:        "eventToSignal",
		BlockType: "$adapter.eventToSignal",
		MatchUnit: func(source, target ctype.Unit) bool { return true },
		MatchTemporality: func(source, target ctype.TemporalityValue) bool {
			return source == ctype.Discrete && target == ctype.Continuous
		},
	})

	return c
}
