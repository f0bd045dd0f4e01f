// Package validate implements the axis validator (spec.md §4.5): the last
// frontend gate before a patch.TypedPatch is handed to internal/schedule.
// Where internal/solver resolves axes, this package only checks what
// solving produced — it never mutates a port's type.
package validate

import (
	"fmt"
	"strings"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
)

// eventLockedOutputs names (blockType, portName) pairs whose Lower
// implementation bridges a discrete slot into a continuous signal via
// valueir.Builder.EventRead, which hardcodes its result to
// canonicalSignal(float, scalar) (spec.md §4.5). The validator checks the
// registry's declared schema for these ports still agrees with that lock,
// catching a registry edit that drifted out of sync with the builder.
var eventLockedOutputs = map[string]string{
	"SampleAndHold":         "held",
	"$adapter.eventToSignal": "out",
}

// Validate checks every resolved port type in tp against spec.md §4.5's
// axis rules, appends any AxisViolation diagnostics, and recomputes
// BackendReady as (tp.BackendReady && no new violations). It never removes
// or edits an existing PortTypes entry.
func Validate(tp patch.TypedPatch, reg *registry.Registry) patch.TypedPatch {
	blockType := make(map[patch.BlockID]string, len(tp.Patch.Blocks))
	for _, b := range tp.Patch.Blocks {
		blockType[b.ID] = b.Type
	}

	var violations []diag.Diagnostic
	for key, t := range tp.PortTypes {
		violations = append(violations, checkInstantiated(key, t)...)
		violations = append(violations, checkManyInstanceRegistered(key, t, tp.Patch.Domains)...)
		violations = append(violations, checkForbiddenCombos(key, t)...)
		violations = append(violations, checkCameraProjectionScope(key, t, blockType[key.Block], reg)...)
		violations = append(violations, checkEventLock(key, t, blockType[key.Block])...)
	}

	tp.Diagnostics = append(tp.Diagnostics, violations...)
	tp.BackendReady = tp.BackendReady && len(violations) == 0
	return tp
}

func checkInstantiated(key patch.PortKey, t ctype.CanonicalType) []diag.Diagnostic {
	if t.IsFullyInstantiated() {
		return nil
	}
	return []diag.Diagnostic{
		diag.New(diag.AxisViolation, diag.NodePort, 0,
			fmt.Sprintf("%s.%s (%s) has a free axis variable after solving", key.Block, key.Port, key.Dir)),
	}
}

func checkManyInstanceRegistered(key patch.PortKey, t ctype.CanonicalType, domains patch.Domains) []diag.Diagnostic {
	card, ok := t.Extent.Cardinality.Value()
	if !ok || card.Kind != ctype.CardinalityMany {
		return nil
	}
	for _, ref := range domains[card.Instance.Domain] {
		if ref == card.Instance {
			return nil
		}
	}
	return []diag.Diagnostic{
		diag.New(diag.AxisViolation, diag.NodePort, 0,
			fmt.Sprintf("%s.%s (%s) carries instance %s/%s not declared in any patch domain",
				key.Block, key.Port, key.Dir, card.Instance.Domain, card.Instance.Instance)),
	}
}

// checkForbiddenCombos rejects the extent combinations spec.md §4.5 names
// as never legal regardless of how they were reached: an event (discrete
// temporality) can't carry a many-cardinality field — a discrete signal
// fires as a single flag per frame, not per instance, so "many" here would
// mean a field of events, which the runtime's one-shot-per-frame event
// slot (spec.md §5) has no way to represent — and zero-cardinality is only
// sensible under continuous temporality (a const doesn't "happen" at a
// discrete moment).
func checkForbiddenCombos(key patch.PortKey, t ctype.CanonicalType) []diag.Diagnostic {
	card, cardOK := t.Extent.Cardinality.Value()
	temp, tempOK := t.Extent.Temporality.Value()
	if !cardOK || !tempOK {
		return nil
	}
	var diags []diag.Diagnostic
	if temp == ctype.Discrete && card.Kind == ctype.CardinalityMany {
		diags = append(diags, diag.New(diag.AxisViolation, diag.NodePort, 0,
			fmt.Sprintf("%s.%s (%s) combines discrete temporality with many cardinality", key.Block, key.Port, key.Dir)))
	}
	if card.Kind == ctype.CardinalityZero && temp != ctype.Continuous {
		diags = append(diags, diag.New(diag.AxisViolation, diag.NodePort, 0,
			fmt.Sprintf("%s.%s (%s) combines zero cardinality with non-continuous temporality", key.Block, key.Port, key.Dir)))
	}
	return diags
}

// checkCameraProjectionScope enforces spec.md §4.5's closed-enum-not-matrix
// rule's corollary: a cameraProjection payload only makes sense as a
// camera block's output, never as an arbitrary port — the reasonable
// reading of "forbidden combos" once cameraProjection is modeled as a
// payload rather than a first-class node kind. The registry has no
// dedicated marker for "is a camera block" (no SPEC_FULL scenario wires
// one), so this is scoped by the same naming convention the registry's own
// adapter blocks use for identifying themselves ("Camera" in TypeName).
func checkCameraProjectionScope(key patch.PortKey, t ctype.CanonicalType, blockType string, reg *registry.Registry) []diag.Diagnostic {
	if t.Payload != ctype.CameraProjection {
		return nil
	}
	if key.Dir == patch.DirOut && strings.Contains(blockType, "Camera") {
		return nil
	}
	return []diag.Diagnostic{
		diag.New(diag.AxisViolation, diag.NodePort, 0,
			fmt.Sprintf("%s.%s (%s) carries a cameraProjection payload outside a camera block's output", key.Block, key.Port, key.Dir)),
	}
}

func checkEventLock(key patch.PortKey, t ctype.CanonicalType, blockType string) []diag.Diagnostic {
	want, ok := eventLockedOutputs[blockType]
	if !ok || want != key.Port || key.Dir != patch.DirOut {
		return nil
	}
	locked := ctype.CanonicalSignal(ctype.Float, ctype.ScalarUnit())
	if ctype.TypeEq(t, locked) {
		return nil
	}
	return []diag.Diagnostic{
		diag.New(diag.AxisViolation, diag.NodePort, 0,
			fmt.Sprintf("%s.%s: event-to-signal output must stay locked to a scalar float signal, got a type that diverged from the registry", key.Block, key.Port)),
	}
}
