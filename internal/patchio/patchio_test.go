package patchio_test

import (
	"testing"

	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/patchio"
)

const jsonDoc = `{
  "blocks": [
    {"id": "deg", "type": "DegreesInput", "params": {"value": {"kind": "float", "float": 90}}},
    {"id": "adapt", "type": "$adapter.degToRad"}
  ],
  "edges": [
    {"from": {"block": "deg", "port": "deg"}, "to": {"block": "adapt", "port": "in"}}
  ]
}`

const yamlDoc = `
blocks:
  - id: deg
    type: DegreesInput
    params:
      value:
        kind: float
        float: 90
  - id: adapt
    type: $adapter.degToRad
edges:
  - from: {block: deg, port: deg}
    to: {block: adapt, port: in}
`

func TestDecodeJSONAndYAMLProduceTheSamePatch(t *testing.T) {
	jp, err := patchio.Decode([]byte(jsonDoc), false)
	if err != nil {
		t.Fatal(err)
	}
	yp, err := patchio.Decode([]byte(yamlDoc), true)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []patch.Patch{jp, yp} {
		if len(p.Blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(p.Blocks))
		}
		if len(p.Edges) != 1 {
			t.Fatalf("expected 1 edge, got %d", len(p.Edges))
		}
		v, ok := p.Blocks[0].Params["value"]
		if !ok {
			t.Fatal("expected a decoded value param")
		}
		if v.Float != 90 {
			t.Errorf("expected float 90, got %v", v.Float)
		}
	}
}

func TestFromPatchRoundTripsThroughJSON(t *testing.T) {
	p, err := patchio.Decode([]byte(jsonDoc), false)
	if err != nil {
		t.Fatal(err)
	}
	doc := patchio.FromPatch(p)
	if len(doc.Blocks) != 2 || len(doc.Edges) != 1 {
		t.Fatalf("unexpected round-tripped doc: %+v", doc)
	}
}

func TestDecodeUnknownParamKindFails(t *testing.T) {
	_, err := patchio.Decode([]byte(`{"blocks":[{"id":"b","type":"X","params":{"v":{"kind":"nope"}}}]}`), false)
	if err == nil {
		t.Fatal("expected an error for an unrecognized param kind")
	}
}
