package registry

import "github.com/flowpatch/corec/internal/ctype"

// AdapterSpec names a block type the normalizer may splice onto an edge to
// bridge a specific, bridgeable mismatch (spec.md §4.3). Adapters are
// ordinary registered block types under the hood — they flow through the
// same lowering and slot-allocation machinery as any user-authored block —
// so AdapterSpec only carries the matching rule, not a second computation
// path.
type AdapterSpec struct {
	// ID is a stable, human-readable name surfaced in diagnostics and used
	// as the deterministic tie-break key when more than one spec matches.
	ID string
	// BlockType is the registered BlockSpec.TypeName this adapter splices
	// in. It must declare exactly one input port and one output port.
	BlockType string
	// MatchUnit reports whether this adapter bridges a source/target unit
	// pair. Nil means "don't care" (matches any units, used by adapters
	// that only care about temporality, e.g. event-to-signal).
	MatchUnit func(source, target ctype.Unit) bool
	// MatchTemporality reports whether this adapter bridges a
	// source/target temporality pair. Nil means "require equal".
	MatchTemporality func(source, target ctype.TemporalityValue) bool
}

func (a AdapterSpec) matches(sourceUnit, targetUnit ctype.Unit, sourceTemp, targetTemp ctype.TemporalityValue) bool {
	if a.MatchTemporality != nil {
		if !a.MatchTemporality(sourceTemp, targetTemp) {
			return false
		}
	} else if sourceTemp != targetTemp {
		return false
	}
	if a.MatchUnit != nil {
		return a.MatchUnit(sourceUnit, targetUnit)
	}
	return sourceUnit == targetUnit
}

// AdapterCatalog is the ordered list of adapter specs the normalizer
// consults. Order is registration order; the first match wins (spec.md
// §4.3: "earliest-registered wins" deterministic tie-break).
type AdapterCatalog struct {
	specs []AdapterSpec
}

func NewAdapterCatalog() *AdapterCatalog { return &AdapterCatalog{} }

func (c *AdapterCatalog) Register(spec AdapterSpec) { c.specs = append(c.specs, spec) }

// Find returns the first registered adapter bridging source -> target, or
// ok=false if none does (the caller then raises MissingAdapter).
func (c *AdapterCatalog) Find(sourceUnit, targetUnit ctype.Unit, sourceTemp, targetTemp ctype.TemporalityValue) (AdapterSpec, bool) {
	for _, s := range c.specs {
		if s.matches(sourceUnit, targetUnit, sourceTemp, targetTemp) {
			return s, true
		}
	}
	return AdapterSpec{}, false
}
