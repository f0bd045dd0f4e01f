package repl_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/repl"
)

const fieldPatchJSON = `{
  "blocks": [
    {"id": "arr", "type": "Array"},
    {"id": "pos", "type": "PositionXY"},
    {"id": "disp", "type": "Render"}
  ],
  "edges": [
    {"from": {"block": "arr", "port": "index"}, "to": {"block": "pos", "port": "index"}},
    {"from": {"block": "pos", "port": "pos"}, "to": {"block": "disp", "port": "pos"}}
  ]
}`

// TestREPLLoadCompilesAndReportsBackendReady is a smoke test for the
// :load -> compile -> :schedule path: loading a known-good field pipeline
// should compile clean and the schedule command should list its steps.
func TestREPLLoadCompilesAndReportsBackendReady(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "field.patch.json")
	require.NoError(t, os.WriteFile(path, []byte(fieldPatchJSON), 0o644))

	reg, catalog := registry.LoadBuiltins()
	r := repl.New(reg, catalog)

	var out bytes.Buffer
	r.HandleCommand(":load "+path, &out)
	require.Contains(t, out.String(), "Loaded")
	require.Contains(t, out.String(), "OK")

	out.Reset()
	r.HandleCommand(":schedule", &out)
	require.Contains(t, out.String(), "render")
}

// TestREPLAddRejectsUnregisteredBlockType confirms :add never appends a
// block the registry doesn't know about.
func TestREPLAddRejectsUnregisteredBlockType(t *testing.T) {
	reg, catalog := registry.LoadBuiltins()
	r := repl.New(reg, catalog)

	var out bytes.Buffer
	r.HandleCommand(":add NoSuchBlock", &out)
	require.Contains(t, out.String(), "unregistered block type")
}

// TestREPLBlocksListsRegisteredTypesSorted confirms :blocks surfaces the
// registry's deterministic sorted listing rather than registration order.
func TestREPLBlocksListsRegisteredTypesSorted(t *testing.T) {
	reg, catalog := registry.LoadBuiltins()
	r := repl.New(reg, catalog)

	var out bytes.Buffer
	r.HandleCommand(":blocks", &out)
	require.Contains(t, out.String(), "Array")
	require.Contains(t, out.String(), "Time")
	// Time registers before Array, so only a sorted listing puts Array first.
	require.Less(t, strings.Index(out.String(), "Array"), strings.Index(out.String(), "Time"))
}

// TestREPLUnknownCommandReportsError confirms an unrecognized ":"-prefixed
// input is reported rather than silently ignored.
func TestREPLUnknownCommandReportsError(t *testing.T) {
	reg, catalog := registry.LoadBuiltins()
	r := repl.New(reg, catalog)

	var out bytes.Buffer
	r.HandleCommand(":nonsense", &out)
	require.Contains(t, out.String(), "unknown command")
}
