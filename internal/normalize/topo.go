package normalize

import (
	"fmt"
	"strings"

	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
)

// CycleError reports a dependency cycle the state-read/state-write
// cycle-break rule could not absorb (spec.md §3.2). Grounded on the
// teacher's link/topo.go CycleError, which carries the offending path for
// the same reason: a bare "cycle detected" tells the author nothing about
// where to look.
type CycleError struct {
	Cycle []patch.BlockID
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		names[i] = string(id)
	}
	return fmt.Sprintf("normalize: dependency cycle: %s", strings.Join(names, " -> "))
}

// dependencyEdges builds the block-level dependency graph used for
// topological ordering. An edge whose source port is marked
// BreaksCycleDependency contributes no dependency: spec.md §3.2's "a read
// is a source, a write is a sink" is realized by simply omitting that
// edge from the graph walked here.
func dependencyEdges(p *patch.Patch, reg *registry.Registry) (map[patch.BlockID][]patch.BlockID, error) {
	deps := make(map[patch.BlockID][]patch.BlockID, len(p.Blocks))
	for _, b := range p.Blocks {
		deps[b.ID] = nil
	}
	for _, e := range p.Edges {
		fromBlock, ok := blockByID(p, e.From.Block)
		if !ok {
			continue
		}
		spec, ok := reg.Lookup(fromBlock.Type)
		if !ok {
			continue
		}
		portSchema, ok := spec.OutputSchema(e.From.Port)
		if !ok || portSchema.BreaksCycleDependency {
			continue
		}
		deps[e.To.Block] = append(deps[e.To.Block], e.From.Block)
	}
	return deps, nil
}

func blockByID(p *patch.Patch, id patch.BlockID) (patch.Block, bool) {
	for _, b := range p.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return patch.Block{}, false
}

// TopoOrder returns the patch's blocks in dependency order: every block
// appears after every block it (non-cycle-breaking) depends on. Ties are
// broken by the blocks' insertion order in p.Blocks, so the result is a
// deterministic function of the patch alone.
func TopoOrder(p *patch.Patch, reg *registry.Registry) ([]patch.BlockID, error) {
	deps, err := dependencyEdges(p, reg)
	if err != nil {
		return nil, err
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[patch.BlockID]int, len(p.Blocks))
	var order []patch.BlockID
	var path []patch.BlockID

	var visit func(id patch.BlockID) error
	visit = func(id patch.BlockID) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			cycle := append(append([]patch.BlockID(nil), path...), id)
			return &CycleError{Cycle: cycle}
		}
		color[id] = gray
		path = append(path, id)
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, b := range p.Blocks {
		if color[b.ID] == white {
			if err := visit(b.ID); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}
