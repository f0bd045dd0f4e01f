// Package patchio loads an author-facing patch document (JSON or YAML,
// spec.md SPEC_FULL ambient stack) off disk and converts it into the
// patch.Patch the rest of the compiler operates on. It exists as a
// separate layer so patch.Patch itself stays free of wire-format concerns
// — the same separation the teacher draws between source text and its
// parsed AST.
package patchio

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowpatch/corec/internal/config"
	"github.com/flowpatch/corec/internal/ctype"
	"github.com/flowpatch/corec/internal/patch"
)

// ParamDoc is one block's literal configuration as authored in a patch
// document. Only the payload kinds built-in blocks actually read from
// Params are represented (spec.md SPEC_FULL supplemented feature 1's
// built-in catalog); an unrecognized kind is a decode error rather than a
// silently dropped field.
type ParamDoc struct {
	Kind  string     `json:"kind" yaml:"kind"`
	Float float64    `json:"float,omitempty" yaml:"float,omitempty"`
	Int   int64      `json:"int,omitempty" yaml:"int,omitempty"`
	Bool  bool       `json:"bool,omitempty" yaml:"bool,omitempty"`
	Vec2  [2]float64 `json:"vec2,omitempty" yaml:"vec2,omitempty"`
	Vec3  [3]float64 `json:"vec3,omitempty" yaml:"vec3,omitempty"`
	Color [4]float64 `json:"color,omitempty" yaml:"color,omitempty"`
}

func (d ParamDoc) toConstValue() (ctype.ConstValue, error) {
	switch d.Kind {
	case "float":
		return ctype.ConstFloat(d.Float), nil
	case "int":
		return ctype.ConstInt(d.Int), nil
	case "bool":
		return ctype.ConstBool(d.Bool), nil
	case "vec2":
		return ctype.ConstVec2(d.Vec2), nil
	case "vec3":
		return ctype.ConstVec3(d.Vec3), nil
	case "color":
		return ctype.ConstColor(d.Color), nil
	default:
		return ctype.ConstValue{}, fmt.Errorf("patchio: unrecognized param kind %q", d.Kind)
	}
}

func fromConstValue(v ctype.ConstValue) ParamDoc {
	switch v.Payload {
	case ctype.Float:
		return ParamDoc{Kind: "float", Float: v.Float}
	case ctype.Int:
		return ParamDoc{Kind: "int", Int: v.Int}
	case ctype.Bool:
		return ParamDoc{Kind: "bool", Bool: v.Bool}
	case ctype.Vec2:
		return ParamDoc{Kind: "vec2", Vec2: v.Vec2}
	case ctype.Vec3:
		return ParamDoc{Kind: "vec3", Vec3: v.Vec3}
	case ctype.Color:
		return ParamDoc{Kind: "color", Color: v.Color}
	default:
		return ParamDoc{Kind: "float"}
	}
}

// PortRefDoc names one port on one block.
type PortRefDoc struct {
	Block string `json:"block" yaml:"block"`
	Port  string `json:"port" yaml:"port"`
}

// EdgeDoc connects one output port to one input port.
type EdgeDoc struct {
	From PortRefDoc `json:"from" yaml:"from"`
	To   PortRefDoc `json:"to" yaml:"to"`
}

// BlockDoc is one block occurrence as authored.
type BlockDoc struct {
	ID     string              `json:"id" yaml:"id"`
	Type   string              `json:"type" yaml:"type"`
	Params map[string]ParamDoc `json:"params,omitempty" yaml:"params,omitempty"`
}

// InstanceRefDoc names one domain instance a patch declares up front.
type InstanceRefDoc struct {
	Domain   string `json:"domain" yaml:"domain"`
	Instance string `json:"instance" yaml:"instance"`
}

// PatchDoc is the full author-facing document shape.
type PatchDoc struct {
	Blocks  []BlockDoc                  `json:"blocks" yaml:"blocks"`
	Edges   []EdgeDoc                   `json:"edges" yaml:"edges"`
	Domains map[string][]InstanceRefDoc `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// ToPatch converts a decoded document into the compiler's patch.Patch.
func (d PatchDoc) ToPatch() (patch.Patch, error) {
	p := patch.Patch{}
	for _, b := range d.Blocks {
		var params map[string]ctype.ConstValue
		if len(b.Params) > 0 {
			params = make(map[string]ctype.ConstValue, len(b.Params))
			for k, v := range b.Params {
				cv, err := v.toConstValue()
				if err != nil {
					return patch.Patch{}, fmt.Errorf("patchio: block %q param %q: %w", b.ID, k, err)
				}
				params[k] = cv
			}
		}
		p.Blocks = append(p.Blocks, patch.Block{ID: patch.BlockID(b.ID), Type: b.Type, Params: params})
	}
	for _, e := range d.Edges {
		p.Edges = append(p.Edges, patch.Edge{
			From: patch.PortRef{Block: patch.BlockID(e.From.Block), Port: e.From.Port},
			To:   patch.PortRef{Block: patch.BlockID(e.To.Block), Port: e.To.Port},
		})
	}
	if len(d.Domains) > 0 {
		p.Domains = make(patch.Domains, len(d.Domains))
		for domain, refs := range d.Domains {
			for _, r := range refs {
				p.Domains[domain] = append(p.Domains[domain], ctype.InstanceRef{Domain: r.Domain, Instance: r.Instance})
			}
		}
	}
	return p, nil
}

// FromPatch converts a compiled patch.Patch back into its document shape
// (the inverse of ToPatch).
func FromPatch(p patch.Patch) PatchDoc {
	d := PatchDoc{}
	for _, b := range p.Blocks {
		bd := BlockDoc{ID: string(b.ID), Type: b.Type}
		if len(b.Params) > 0 {
			bd.Params = make(map[string]ParamDoc, len(b.Params))
			for k, v := range b.Params {
				bd.Params[k] = fromConstValue(v)
			}
		}
		d.Blocks = append(d.Blocks, bd)
	}
	for _, e := range p.Edges {
		d.Edges = append(d.Edges, EdgeDoc{
			From: PortRefDoc{Block: string(e.From.Block), Port: e.From.Port},
			To:   PortRefDoc{Block: string(e.To.Block), Port: e.To.Port},
		})
	}
	if len(p.Domains) > 0 {
		d.Domains = make(map[string][]InstanceRefDoc, len(p.Domains))
		for domain, refs := range p.Domains {
			for _, r := range refs {
				d.Domains[domain] = append(d.Domains[domain], InstanceRefDoc{Domain: r.Domain, Instance: r.Instance})
			}
		}
	}
	return d
}

// Decode parses a patch document, dispatching on isYAML rather than
// sniffing content — the caller already knows the format (LoadFile takes
// it from the file extension).
func Decode(data []byte, isYAML bool) (patch.Patch, error) {
	var doc PatchDoc
	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return patch.Patch{}, fmt.Errorf("patchio: decoding patch document: %w", err)
	}
	return doc.ToPatch()
}

// LoadFile reads and decodes a patch document from disk, picking JSON or
// YAML by the file's recognized extension (internal/config).
func LoadFile(path string) (patch.Patch, error) {
	if !config.HasSourceExt(path) {
		return patch.Patch{}, fmt.Errorf("patchio: %s has no recognized patch extension (%v)", path, config.SourceFileExtensions)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return patch.Patch{}, fmt.Errorf("patchio: %w", err)
	}
	isYAML := strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
	return Decode(data, isYAML)
}
