package valueir

import (
	"testing"

	"github.com/flowpatch/corec/internal/ctype"
)

func TestConstHashConsIdempotent(t *testing.T) {
	b := NewBuilder()
	id1, err := b.Const(ctype.ConstFloat(1.0), ctype.ScalarUnit())
	if err != nil {
		t.Fatal(err)
	}
	id2, err := b.Const(ctype.ConstFloat(1.0), ctype.ScalarUnit())
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("expected hash-consing to return the same id, got %d and %d", id1, id2)
	}
	if b.Len() != 1 {
		t.Errorf("expected arena length 1, got %d", b.Len())
	}
}

func TestConstRejectsPayloadMismatch(t *testing.T) {
	b := NewBuilder()
	bad := ctype.ConstValue{Payload: ctype.Int, Float: 1.0}
	if _, err := b.Const(bad, ctype.ScalarUnit()); err == nil {
		t.Fatal("expected ConstPayloadMismatch error")
	}
}

func TestKernelReferentialIntegrity(t *testing.T) {
	b := NewBuilder()
	_, err := b.Kernel(KernelMap, "sin", []ExprID{99}, ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit()))
	if err == nil {
		t.Fatal("expected referential integrity error for out-of-range input")
	}
}

func TestKernelHashConsDistinguishesFunction(t *testing.T) {
	b := NewBuilder()
	c, _ := b.Const(ctype.ConstFloat(0), ctype.ScalarUnit())
	sinID, err := b.Kernel(KernelMap, "sin", []ExprID{c}, ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit()))
	if err != nil {
		t.Fatal(err)
	}
	cosID, err := b.Kernel(KernelMap, "cos", []ExprID{c}, ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit()))
	if err != nil {
		t.Fatal(err)
	}
	if sinID == cosID {
		t.Error("expected distinct functions to produce distinct ids")
	}
}

func TestEventReadLocksTypeRegardlessOfSlotPayload(t *testing.T) {
	b := NewBuilder()
	id, err := b.EventRead(SlotID(3))
	if err != nil {
		t.Fatal(err)
	}
	e, _ := b.Get(id)
	want := ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit())
	if !ctype.TypeEq(e.Type, want) {
		t.Errorf("EventRead type = %+v, want %+v", e.Type, want)
	}
}

func TestStateReadRejectsConstOrEventType(t *testing.T) {
	b := NewBuilder()
	if _, err := b.StateRead(SlotID(1), ctype.CanonicalConst(ctype.Float, ctype.ScalarUnit())); err == nil {
		t.Fatal("expected StateRead to reject a const-kind type")
	}
	if _, err := b.StateRead(SlotID(1), ctype.CanonicalEvent(ctype.Float, ctype.ScalarUnit())); err == nil {
		t.Fatal("expected StateRead to reject an event-kind type")
	}
}

func TestSweepRemovesUnreachableAndRemapsInputs(t *testing.T) {
	b := NewBuilder()
	sig := ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit())

	live1, _ := b.Const(ctype.ConstFloat(1), ctype.ScalarUnit())
	dead, _ := b.Const(ctype.ConstFloat(2), ctype.ScalarUnit())
	live2, _ := b.Kernel(KernelMap, "sin", []ExprID{live1}, sig)
	_ = dead

	mapping := b.Sweep([]ExprID{live2})

	if b.Len() != 2 {
		t.Fatalf("expected 2 surviving expressions, got %d", b.Len())
	}
	if _, ok := mapping[dead]; ok {
		t.Error("expected dead expression to be absent from the mapping")
	}
	newLive2, ok := mapping[live2]
	if !ok {
		t.Fatal("expected live2 to survive sweep")
	}
	got, _ := b.Get(newLive2)
	if len(got.Inputs) != 1 {
		t.Fatalf("expected remapped kernel to retain one input, got %d", len(got.Inputs))
	}
	if got.Inputs[0] != mapping[live1] {
		t.Errorf("expected remapped input to equal mapping[live1], got %d want %d", got.Inputs[0], mapping[live1])
	}
}
