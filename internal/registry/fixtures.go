package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PortFixture is a port schema's documentation-and-drift-check shape: the
// axes a patch author or reviewer actually needs to see (name, payload,
// cardinality mode already lives at the block level, temporality, and
// whether the port breaks a cycle), not the full internal ctype encoding.
type PortFixture struct {
	Name                  string `yaml:"name"`
	Payload               string `yaml:"payload"`
	Temporality           string `yaml:"temporality"`
	BreaksCycleDependency bool   `yaml:"breaksCycleDependency,omitempty"`
}

// BlockFixture is one block type's declarative schema, the YAML shape
// internal/registry/testdata/builtin.yaml authors the built-in catalog's
// documentation in (spec.md SPEC_FULL domain stack: "Block registry ...
// authored as YAML"). A BlockSpec's Lower function has no YAML
// representation — fixtures describe the schema a reviewer (or
// fixtures_test.go, through Diff) can compare against the live Go
// registration, not a way to register a block without code.
type BlockFixture struct {
	TypeName        string        `yaml:"typeName"`
	Inputs          []PortFixture `yaml:"inputs,omitempty"`
	Outputs         []PortFixture `yaml:"outputs,omitempty"`
	CardinalityMode string        `yaml:"cardinalityMode"`
	BroadcastPolicy string        `yaml:"broadcastPolicy,omitempty"`
}

// CatalogFixture is the top-level YAML document shape: one BlockFixture per
// registered type.
type CatalogFixture struct {
	Blocks []BlockFixture `yaml:"blocks"`
}

// DecodeFixtures parses a YAML catalog fixture document.
func DecodeFixtures(data []byte) (CatalogFixture, error) {
	var cf CatalogFixture
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return CatalogFixture{}, fmt.Errorf("registry: decoding fixture YAML: %w", err)
	}
	return cf, nil
}

// ToFixture renders a registered BlockSpec into its documentation fixture
// shape, for writing out a fixture file from the live registry or for
// comparing against a hand-maintained one.
func (s *BlockSpec) ToFixture() BlockFixture {
	bf := BlockFixture{
		TypeName:        s.TypeName,
		CardinalityMode: string(s.CardinalityMode),
		BroadcastPolicy: string(s.BroadcastPolicy),
	}
	for _, p := range s.Inputs {
		bf.Inputs = append(bf.Inputs, portToFixture(p))
	}
	for _, p := range s.Outputs {
		bf.Outputs = append(bf.Outputs, portToFixture(p))
	}
	return bf
}

func portToFixture(p PortSchema) PortFixture {
	return PortFixture{
		Name:                  p.Name,
		Payload:               p.Payload.String(),
		Temporality:           p.Temporality.String(),
		BreaksCycleDependency: p.BreaksCycleDependency,
	}
}

// Diff reports every mismatch between a fixture and the live registry's
// BlockSpec for the same TypeName: a changed port set, payload, or
// temporality that drifted without the fixture being updated alongside it.
// An unregistered TypeName is reported as a single diff, not a panic —
// Diff is a check over an editable fixture file (fixtures_test.go runs it
// against testdata/builtin.yaml), not a registration-time invariant.
func (cf CatalogFixture) Diff(r *Registry) []string {
	var diffs []string
	for _, bf := range cf.Blocks {
		spec, ok := r.Lookup(bf.TypeName)
		if !ok {
			diffs = append(diffs, fmt.Sprintf("fixture names block %q, not registered", bf.TypeName))
			continue
		}
		live := spec.ToFixture()
		if live.CardinalityMode != bf.CardinalityMode {
			diffs = append(diffs, fmt.Sprintf("%s: cardinalityMode fixture=%q live=%q", bf.TypeName, bf.CardinalityMode, live.CardinalityMode))
		}
		if live.BroadcastPolicy != bf.BroadcastPolicy {
			diffs = append(diffs, fmt.Sprintf("%s: broadcastPolicy fixture=%q live=%q", bf.TypeName, bf.BroadcastPolicy, live.BroadcastPolicy))
		}
		diffs = append(diffs, diffPorts(bf.TypeName, "input", bf.Inputs, live.Inputs)...)
		diffs = append(diffs, diffPorts(bf.TypeName, "output", bf.Outputs, live.Outputs)...)
	}
	return diffs
}

func diffPorts(typeName, dir string, fixture, live []PortFixture) []string {
	var diffs []string
	byName := make(map[string]PortFixture, len(live))
	for _, p := range live {
		byName[p.Name] = p
	}
	for _, fp := range fixture {
		lp, ok := byName[fp.Name]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: fixture %s port %q not found in live registry", typeName, dir, fp.Name))
			continue
		}
		if lp.Payload != fp.Payload || lp.Temporality != fp.Temporality || lp.BreaksCycleDependency != fp.BreaksCycleDependency {
			diffs = append(diffs, fmt.Sprintf("%s: %s port %q fixture=%+v live=%+v", typeName, dir, fp.Name, fp, lp))
		}
	}
	return diffs
}
