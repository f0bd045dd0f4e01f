// Package patch implements the user-authored graph (spec.md §3.2): Patch,
// Block, Edge, and the frontend's output, TypedPatch (spec.md §3.3).
package patch

import (
	"fmt"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/registry"
)

// BlockID is a stable, user- or tool-assigned block identifier. Insertion
// order of Blocks is preserved (spec.md §3.2) but carries no semantic
// weight — the normalizer derives the real order topologically.
type BlockID string

// Block is one node in the patch: a stable id, a registry type-name key,
// and literal configuration the registry's LowerFunc reads via
// registry.LowerCtx.Params.
type Block struct {
	ID     BlockID
	Type   string
	Params map[string]ctype.ConstValue
}

// PortRef names one port on one block.
type PortRef struct {
	Block BlockID
	Port  string
}

// Edge connects one block's output port to another block's input port.
type Edge struct {
	From PortRef
	To   PortRef
}

// Domains maps a domain name (e.g. "Array") to the set of InstanceRefs the
// patch declares within it, used by the axis validator to check that a
// many-cardinality port's InstanceRef actually exists (spec.md §4.5).
type Domains map[string][]ctype.InstanceRef

// Patch is the user-authored graph: (Blocks, Edges, Domains).
type Patch struct {
	Blocks  []Block
	Edges   []Edge
	Domains Domains
}

func (p *Patch) blockByID(id BlockID) (Block, bool) {
	for _, b := range p.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// Validate enforces the structural invariants spec.md §3.2 lists that do
// not require the registry or the solver: every block id is unique, and
// every edge references a block id that exists in the patch. It does not
// check cycles (the normalizer's topological sort reports those) or port
// existence against schema (ValidateAgainstRegistry below does, since that
// needs registry metadata).
func (p *Patch) Validate() error {
	seen := make(map[BlockID]bool, len(p.Blocks))
	for _, b := range p.Blocks {
		if seen[b.ID] {
			return fmt.Errorf("patch: duplicate block id %q", b.ID)
		}
		seen[b.ID] = true
	}
	for i, e := range p.Edges {
		if !seen[e.From.Block] {
			return fmt.Errorf("patch: edge %d references unknown source block %q", i, e.From.Block)
		}
		if !seen[e.To.Block] {
			return fmt.Errorf("patch: edge %d references unknown target block %q", i, e.To.Block)
		}
	}
	return nil
}

// ValidateAgainstRegistry enforces spec.md §3.2's "every port referenced by
// an edge exists in its block's schema" invariant. Returns one diagnostic
// per offending edge rather than failing on the first (the normalizer's own
// accumulate-don't-fail-fast policy, spec.md §7).
func (p *Patch) ValidateAgainstRegistry(reg *registry.Registry) []diag.Diagnostic {
	var diags []diag.Diagnostic
	for i, e := range p.Edges {
		fromBlock, ok := p.blockByID(e.From.Block)
		if !ok {
			continue // caught by Validate
		}
		toBlock, ok := p.blockByID(e.To.Block)
		if !ok {
			continue
		}
		fromSpec, ok := reg.Lookup(fromBlock.Type)
		if !ok {
			diags = append(diags, diag.New(diag.ReferentialIntegrity, diag.NodeEdge, i,
				fmt.Sprintf("block %q has unregistered type %q", fromBlock.ID, fromBlock.Type)))
			continue
		}
		toSpec, ok := reg.Lookup(toBlock.Type)
		if !ok {
			diags = append(diags, diag.New(diag.ReferentialIntegrity, diag.NodeEdge, i,
				fmt.Sprintf("block %q has unregistered type %q", toBlock.ID, toBlock.Type)))
			continue
		}
		if _, ok := fromSpec.OutputSchema(e.From.Port); !ok {
			diags = append(diags, diag.New(diag.ReferentialIntegrity, diag.NodeEdge, i,
				fmt.Sprintf("block %q (%s) has no output port %q", fromBlock.ID, fromBlock.Type, e.From.Port)))
		}
		if _, ok := toSpec.InputSchema(e.To.Port); !ok {
			diags = append(diags, diag.New(diag.ReferentialIntegrity, diag.NodeEdge, i,
				fmt.Sprintf("block %q (%s) has no input port %q", toBlock.ID, toBlock.Type, e.To.Port)))
		}
	}
	return diags
}

// Direction discriminates a port's role for PortTypes keys.
type Direction uint8

const (
	DirIn Direction = iota
	DirOut
)

func (d Direction) String() string {
	if d == DirIn {
		return "in"
	}
	return "out"
}

// PortKey is the lookup key for TypedPatch.PortTypes.
type PortKey struct {
	Block BlockID
	Port  string
	Dir   Direction
}

// InsertedAdapter records one adapter the normalizer spliced onto an edge,
// kept on the TypedPatch for the "adapter insertion stability" round-trip
// property (spec.md §8).
type InsertedAdapter struct {
	OriginalEdgeIndex int
	AdapterBlockID    BlockID
	AdapterType       string
}

// TypedPatch is the frontend's output (spec.md §3.3): every type fully
// instantiated, every many-cardinality carrying a concrete InstanceRef.
type TypedPatch struct {
	Patch        Patch
	PortTypes    map[PortKey]ctype.CanonicalType
	Adapters     []InsertedAdapter
	Diagnostics  []diag.Diagnostic
	BackendReady bool
}

// Lookup returns the resolved type for a port, or false if the frontend
// never assigned one (e.g. an unreachable block after a fatal diagnostic).
func (tp *TypedPatch) Lookup(block BlockID, port string, dir Direction) (ctype.CanonicalType, bool) {
	t, ok := tp.PortTypes[PortKey{Block: block, Port: port, Dir: dir}]
	return t, ok
}

// AllFullyInstantiated is Testable Property 4 (spec.md §8): for every port
// in a TypedPatch with backendReady=true, every axis is Inst.
func (tp *TypedPatch) AllFullyInstantiated() bool {
	for _, t := range tp.PortTypes {
		if !t.IsFullyInstantiated() {
			return false
		}
	}
	return true
}
