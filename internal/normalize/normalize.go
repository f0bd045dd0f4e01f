// Package normalize implements the frontend's first stage (spec.md §4.3):
// topological ordering and static adapter insertion for edges whose
// source and target differ in unit or temporality in a bridgeable way.
// Cardinality mixing is not this package's concern: internal/solver's
// zip-broadcast relaxation (spec.md §4.4.2) handles it without inserting
// any adapter block.
package normalize

import (
	"fmt"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
)

// Result is the normalizer's output: a patch with adapter blocks and edges
// spliced in, the topological order of that spliced patch's blocks (for the
// "adapter insertion stability" round-trip property, spec.md §8), and any
// MissingAdapter diagnostics.
type Result struct {
	Patch       patch.Patch
	Order       []patch.BlockID
	Inserted    []patch.InsertedAdapter
	Diagnostics []diag.Diagnostic
}

// Normalize topologically orders p's blocks (failing fast on an
// unbreakable cycle, spec.md §3.2) and splices in adapters for every edge
// whose source/target unit or temporality differ in a way the catalog can
// bridge. Edges left unbridged (no registered adapter, or a payload
// mismatch no adapter catalog entry addresses) get a MissingAdapter
// diagnostic and are otherwise left as-is, so the solver can still surface
// any further problems in the same compile (spec.md §4.3, §7 accumulate
// policy).
func Normalize(p patch.Patch, reg *registry.Registry, catalog *registry.AdapterCatalog) (Result, error) {
	if _, err := TopoOrder(&p, reg); err != nil {
		return Result{}, err
	}

	out := patch.Patch{
		Blocks:  append([]patch.Block(nil), p.Blocks...),
		Edges:   nil,
		Domains: p.Domains,
	}

	var diags []diag.Diagnostic
	var inserted []patch.InsertedAdapter
	adapterSeq := 0

	for origIdx, e := range p.Edges {
		fromBlock, _ := blockByID(&p, e.From.Block)
		toBlock, _ := blockByID(&p, e.To.Block)
		fromSpec, fromOK := reg.Lookup(fromBlock.Type)
		toSpec, toOK := reg.Lookup(toBlock.Type)
		if !fromOK || !toOK {
			out.Edges = append(out.Edges, e)
			continue
		}
		fromPort, fpOK := fromSpec.OutputSchema(e.From.Port)
		toPort, tpOK := toSpec.InputSchema(e.To.Port)
		if !fpOK || !tpOK {
			out.Edges = append(out.Edges, e)
			continue
		}

		if fromPort.Payload != toPort.Payload {
			diags = append(diags, diag.New(diag.MissingAdapter, diag.NodeEdge, origIdx,
				fmt.Sprintf("no adapter bridges payload %v -> %v on edge %s.%s -> %s.%s",
					fromPort.Payload, toPort.Payload, e.From.Block, e.From.Port, e.To.Block, e.To.Port)))
			out.Edges = append(out.Edges, e)
			continue
		}

		needsAdapter := !ctype.UnitEq(fromPort.Unit, toPort.Unit) || fromPort.Temporality != toPort.Temporality
		if !needsAdapter {
			out.Edges = append(out.Edges, e)
			continue
		}

		spec, ok := catalog.Find(fromPort.Unit, toPort.Unit, fromPort.Temporality, toPort.Temporality)
		if !ok {
			diags = append(diags, diag.New(diag.MissingAdapter, diag.NodeEdge, origIdx,
				fmt.Sprintf("no adapter bridges %s.%s -> %s.%s", e.From.Block, e.From.Port, e.To.Block, e.To.Port)))
			out.Edges = append(out.Edges, e)
			continue
		}

		adapterID := patch.BlockID(fmt.Sprintf("$adapter#%d.%s", adapterSeq, spec.ID))
		adapterSeq++
		adapterBlockSpec, _ := reg.Lookup(spec.BlockType)
		inPortName := adapterBlockSpec.Inputs[0].Name
		outPortName := adapterBlockSpec.Outputs[0].Name

		out.Blocks = append(out.Blocks, patch.Block{ID: adapterID, Type: spec.BlockType})
		out.Edges = append(out.Edges,
			patch.Edge{From: e.From, To: patch.PortRef{Block: adapterID, Port: inPortName}},
			patch.Edge{From: patch.PortRef{Block: adapterID, Port: outPortName}, To: e.To},
		)
		inserted = append(inserted, patch.InsertedAdapter{
			OriginalEdgeIndex: origIdx,
			AdapterBlockID:    adapterID,
			AdapterType:       spec.BlockType,
		})
	}

	// Re-derive the order over the spliced patch rather than patching up
	// the pre-splice order by hand: an adapter sits strictly between its
	// source and target, and asking TopoOrder again is simpler and no less
	// deterministic than hand-threading its position in.
	fullOrder, err := TopoOrder(&out, reg)
	if err != nil {
		return Result{}, err
	}

	return Result{Patch: out, Order: fullOrder, Inserted: inserted, Diagnostics: diags}, nil
}
