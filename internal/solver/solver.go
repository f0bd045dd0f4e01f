package solver

import (
	"fmt"

	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/diag"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/registry"
)

// node is a dense index over every (block, port, direction) the patch
// declares, the unit of both the cardinality and binding union-finds.
type node struct {
	block patch.BlockID
	port  string
	dir   patch.Direction
}

// Solve implements spec.md §4.4: it walks the normalizer's output,
// resolves each port's cardinality and binding axis by union-find over the
// edges (plus each block's CardinalityMode constraint), relaxes
// preserve+allowZipSig mismatches by leaving each one-cardinality port a
// true signal rather than broadcasting it up to the block's many-instance
// (spec.md §8 scenario 2: the block's own Kernel lowering picks
// KernelZipWithSignal and combines the field with the real scalar expr
// directly — no adapter block is spliced in), and returns a
// patch.TypedPatch with every resolvable port's CanonicalType filled in.
// Unresolved or conflicting axes are reported as diagnostics and leave
// BackendReady false. Solve returns a nil error in every case: an edge
// naming a port the registry doesn't know about is skipped here (that is
// patch.ValidateAgainstRegistry's diagnostic to report).
func Solve(p patch.Patch, reg *registry.Registry) (patch.TypedPatch, error) {
	s := &solverState{patch: p, reg: reg}
	if err := s.run(); err != nil {
		return patch.TypedPatch{}, err
	}
	return s.result(), nil
}

type solverState struct {
	patch patch.Patch
	reg   *registry.Registry

	nodes   []node
	index   map[node]int
	card    *valueGroups[ctype.CardinalityValue]
	bind    *valueGroups[ctype.BindingValue]
	reqMany map[int]bool // fieldOnly ports: must resolve to many

	diags  []diag.Diagnostic
	minted map[string][]ctype.InstanceRef
}

func (s *solverState) run() error {
	s.index = make(map[node]int)
	s.reqMany = make(map[int]bool)
	s.minted = make(map[string][]ctype.InstanceRef)

	for _, b := range s.patch.Blocks {
		spec, ok := s.reg.Lookup(b.Type)
		if !ok {
			continue
		}
		for _, in := range spec.Inputs {
			s.addNode(node{b.ID, in.Name, patch.DirIn})
		}
		for _, out := range spec.Outputs {
			s.addNode(node{b.ID, out.Name, patch.DirOut})
		}
	}

	s.card = newValueGroups[ctype.CardinalityValue](len(s.nodes))
	s.bind = newValueGroups[ctype.BindingValue](len(s.nodes))

	// Seed every port's binding group with its declared binding, so an edge
	// joining differently bound ports conflicts in the union below.
	for _, b := range s.patch.Blocks {
		spec, ok := s.reg.Lookup(b.Type)
		if !ok {
			continue
		}
		for _, in := range spec.Inputs {
			s.bind.assign(s.index[node{b.ID, in.Name, patch.DirIn}], in.Binding)
		}
		for _, out := range spec.Outputs {
			s.bind.assign(s.index[node{b.ID, out.Name, patch.DirOut}], out.Binding)
		}
	}

	// Edge-driven propagation: every axis merges across an edge (spec.md
	// §4.4.2: "merge the source's port-group with the target's port-group
	// on every axis").
	for i, e := range s.patch.Edges {
		fromIdx, fromOK := s.index[node{e.From.Block, e.From.Port, patch.DirOut}]
		toIdx, toOK := s.index[node{e.To.Block, e.To.Port, patch.DirIn}]
		if !fromOK || !toOK {
			continue // unregistered port, already reported by ValidateAgainstRegistry
		}
		if conflict, left, right := s.card.union(fromIdx, toIdx); conflict {
			s.reportCardinalityConflict(diag.NodeEdge, i, left, right)
		}
		if conflict, left, right := s.bind.union(fromIdx, toIdx); conflict {
			s.reportBindingMismatch(i, left, right)
		}
	}

	// Block-level cardinality constraints, deferred allowZipSig blocks last.
	var zipBlocks []patch.Block
	for _, b := range s.patch.Blocks {
		spec, ok := s.reg.Lookup(b.Type)
		if !ok {
			continue
		}
		switch spec.CardinalityMode {
		case registry.CardinalityPreserve:
			if spec.BroadcastPolicy == registry.BroadcastAllowZipSignal {
				zipBlocks = append(zipBlocks, b)
				continue
			}
			s.unionBlockPorts(b, spec)
		case registry.CardinalityTransform:
			s.fixTransformOutputs(b, spec)
		case registry.CardinalitySignalOnly:
			s.fixAllPorts(b, spec, ctype.One())
		case registry.CardinalityFieldOnly:
			s.markRequireMany(b, spec)
		}
	}

	for _, b := range zipBlocks {
		spec, _ := s.reg.Lookup(b.Type)
		s.resolveZipBroadcast(b, spec)
	}

	s.checkRequireMany()
	return nil
}

func (s *solverState) addNode(n node) int {
	if idx, ok := s.index[n]; ok {
		return idx
	}
	idx := len(s.nodes)
	s.nodes = append(s.nodes, n)
	s.index[n] = idx
	return idx
}

func (s *solverState) unionBlockPorts(b patch.Block, spec *registry.BlockSpec) {
	var all []int
	for _, in := range spec.Inputs {
		all = append(all, s.index[node{b.ID, in.Name, patch.DirIn}])
	}
	for _, out := range spec.Outputs {
		all = append(all, s.index[node{b.ID, out.Name, patch.DirOut}])
	}
	for i := 1; i < len(all); i++ {
		if conflict, left, right := s.card.union(all[0], all[i]); conflict {
			s.reportCardinalityConflict(diag.NodeBlock, 0, left, right)
		}
	}
}

// fixTransformOutputs mints a fresh many-cardinality instance for a
// CardinalityTransform block occurrence (e.g. Array) and registers it into
// s.minted so result() can fold it into the TypedPatch's Domains — a
// compiler-minted instance is valid by construction, unlike a user-named one
// referenced elsewhere in a patch's Params, so it never needs the patch
// author to declare it up front (internal/validate's
// checkManyInstanceRegistered, spec.md §4.5, checks exactly this set).
func (s *solverState) fixTransformOutputs(b patch.Block, spec *registry.BlockSpec) {
	inst := ctype.InstanceRef{Domain: b.Type, Instance: fmt.Sprintf("%s#%s", b.Type, b.ID)}
	s.minted[inst.Domain] = append(s.minted[inst.Domain], inst)
	val := ctype.Many(inst)
	for _, out := range spec.Outputs {
		idx := s.index[node{b.ID, out.Name, patch.DirOut}]
		if conflict, prev := s.card.assign(idx, val); conflict {
			s.reportCardinalityConflict(diag.NodeBlock, 0, prev, val)
		}
	}
}

func (s *solverState) fixAllPorts(b patch.Block, spec *registry.BlockSpec, val ctype.CardinalityValue) {
	for _, in := range spec.Inputs {
		idx := s.index[node{b.ID, in.Name, patch.DirIn}]
		if conflict, prev := s.card.assign(idx, val); conflict {
			s.reportCardinalityConflict(diag.NodeBlock, 0, prev, val)
		}
	}
	for _, out := range spec.Outputs {
		idx := s.index[node{b.ID, out.Name, patch.DirOut}]
		if conflict, prev := s.card.assign(idx, val); conflict {
			s.reportCardinalityConflict(diag.NodeBlock, 0, prev, val)
		}
	}
}

func (s *solverState) markRequireMany(b patch.Block, spec *registry.BlockSpec) {
	for _, in := range spec.Inputs {
		s.reqMany[s.card.find(s.index[node{b.ID, in.Name, patch.DirIn}])] = true
	}
	for _, out := range spec.Outputs {
		s.reqMany[s.card.find(s.index[node{b.ID, out.Name, patch.DirOut}])] = true
	}
}

func (s *solverState) checkRequireMany() {
	for root := range s.reqMany {
		v, ok := s.card.value[root], s.card.has[root]
		if !ok {
			s.diags = append(s.diags, diag.New(diag.UnresolvedAxis, diag.NodeBlock, 0,
				"fieldOnly port never resolved a concrete cardinality"))
			continue
		}
		if v.Kind != ctype.CardinalityMany {
			s.diags = append(s.diags, diag.New(diag.CardinalityConflict, diag.NodeBlock, 0,
				"fieldOnly port resolved to a non-many cardinality").WithTypes("many", v.Kind.String()))
		}
	}
}

// resolveZipBroadcast implements the preserve+allowZipSig relaxation
// (spec.md §4.4.2): a block occurrence may mix one-cardinality and
// many-cardinality inputs as long as at most one distinct many-instance is
// present. A one-cardinality port stays exactly that — a true signal — so
// the block's own Kernel lowering sees the field on one operand and the
// real scalar on the other and picks KernelZipWithSignal itself (builtin.go's
// kernelOpFor); only a port with no value of its own yet (an output with no
// incoming edge) is fixed to the resolved cardinality. Ports were
// deliberately left un-unioned for these blocks (see run()), so each
// port's own edge-derived group value is still visible here.
func (s *solverState) resolveZipBroadcast(b patch.Block, spec *registry.BlockSpec) {
	var ports []int
	for _, in := range spec.Inputs {
		ports = append(ports, s.index[node{b.ID, in.Name, patch.DirIn}])
	}
	for _, out := range spec.Outputs {
		ports = append(ports, s.index[node{b.ID, out.Name, patch.DirOut}])
	}

	var many *ctype.CardinalityValue
	oneCount := 0
	for _, idx := range ports {
		v, ok := s.card.get(idx)
		if !ok {
			continue
		}
		switch v.Kind {
		case ctype.CardinalityMany:
			if many != nil && !(many.Instance == v.Instance) {
				s.reportCardinalityConflict(diag.NodeBlock, 0, *many, v)
				return
			}
			vv := v
			many = &vv
		case ctype.CardinalityOne:
			oneCount++
		}
	}

	resolved := ctype.One()
	if many != nil {
		resolved = *many
	} else if oneCount == 0 {
		// Nothing resolved yet on either side; leave the whole group
		// unassigned so later edge propagation (or UnresolvedAxis) can
		// still apply.
		return
	}

	for _, idx := range ports {
		if _, ok := s.card.get(idx); ok {
			// Already has a concrete cardinality from its own edge (or a
			// literal). A one-cardinality port stays one even when the
			// block's resolved instance is many — it is a true signal the
			// Kernel lowering zips against the field, not a field itself.
			continue
		}
		if conflict, prev := s.card.assign(idx, resolved); conflict {
			s.reportCardinalityConflict(diag.NodeBlock, 0, prev, resolved)
		}
	}
}

func (s *solverState) reportCardinalityConflict(nk diag.NodeKind, idx int, left, right ctype.CardinalityValue) {
	kind := diag.CardinalityConflict
	if left.Kind == ctype.CardinalityMany && right.Kind == ctype.CardinalityMany {
		kind = diag.InstanceConflict
	}
	s.diags = append(s.diags, diag.New(kind, nk, idx,
		"conflicting cardinality at a merged port group").WithTypes(left.Kind.String(), right.Kind.String()))
}

func (s *solverState) reportBindingMismatch(edgeIdx int, left, right ctype.BindingValue) {
	s.diags = append(s.diags, diag.New(diag.BindingMismatchError, diag.NodeEdge, edgeIdx,
		"binding mismatch across an edge: a bound value feeds an unbound (or differently bound) port").
		WithRemedy(diag.RemedyInsertStateOp))
}

// result materializes the resolved patch into a patch.TypedPatch.
func (s *solverState) result() patch.TypedPatch {
	out := s.patch
	portTypes := make(map[patch.PortKey]ctype.CanonicalType)
	out.Domains = s.mergedDomains()

	blockType := make(map[patch.BlockID]string, len(out.Blocks))
	for _, b := range out.Blocks {
		blockType[b.ID] = b.Type
	}

	for _, n := range s.nodes {
		spec, ok := s.reg.Lookup(blockType[n.block])
		if !ok {
			continue
		}
		var schema registry.PortSchema
		var found bool
		if n.dir == patch.DirIn {
			schema, found = spec.InputSchema(n.port)
		} else {
			schema, found = spec.OutputSchema(n.port)
		}
		if !found {
			continue
		}
		cardVal, ok := s.card.get(s.index[n])
		if !ok {
			if !s.reqMany[s.card.find(s.index[n])] { // fieldOnly: checkRequireMany reported it
				s.diags = append(s.diags, diag.New(diag.UnresolvedAxis, diag.NodePort, 0,
					fmt.Sprintf("%s.%s never resolved a concrete cardinality", n.block, n.port)))
			}
			continue
		}
		bindVal, ok := s.bind.get(s.index[n])
		if !ok {
			bindVal = schema.Binding
		}
		t := ctype.CanonicalType{
			Payload: schema.Payload,
			Unit:    schema.Unit,
			Extent: ctype.Extent{
				Cardinality: ctype.InstAxis(cardVal),
				Temporality: ctype.InstAxis(schema.Temporality),
				Binding:     ctype.InstAxis(bindVal),
				Perspective: ctype.InstAxis(ctype.PerspectiveDefault),
				Branch:      ctype.InstAxis(ctype.BranchDefault),
			},
		}
		portTypes[patch.PortKey{Block: n.block, Port: n.port, Dir: n.dir}] = t
	}

	tp := patch.TypedPatch{
		Patch:       out,
		PortTypes:   portTypes,
		Diagnostics: s.diags,
	}
	tp.BackendReady = len(s.diags) == 0 && len(portTypes) == len(s.nodes)
	return tp
}

// mergedDomains returns the patch's declared domains plus every instance
// this solve minted, so a block-minted instance always passes
// internal/validate's registration check without requiring the patch author
// to hand-declare it.
func (s *solverState) mergedDomains() patch.Domains {
	if len(s.minted) == 0 {
		return s.patch.Domains
	}
	out := make(patch.Domains, len(s.patch.Domains)+len(s.minted))
	for domain, refs := range s.patch.Domains {
		out[domain] = append([]ctype.InstanceRef(nil), refs...)
	}
	for domain, refs := range s.minted {
		out[domain] = append(out[domain], refs...)
	}
	return out
}
