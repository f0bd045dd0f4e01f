// Package config holds ambient, build- and run-time constants shared across
// cmd/patchc and internal/repl: the patch file extension, the tool's
// version string, and a couple of process-wide mode flags set once at
// startup.
package config

// Version is the current patchc version.
// Set at build time via -ldflags or by hand-editing this file ahead of a
// release tag.
var Version = "0.1.0"

const SourceFileExt = ".patch.json"

// SourceFileExtensions are all recognized patch source file extensions: a
// patch is authored as JSON or YAML (spec.md SPEC_FULL ambient stack).
var SourceFileExtensions = []string{".patch.json", ".patch.yaml", ".patch.yml"}

// TrimSourceExt removes any recognized source extension from a filename.
// Returns the original string if no extension matches.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// HasSourceExt returns true if the path ends with any recognized source
// extension.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// IsTestMode marks a test run (golden comparisons, verbose diagnostics).
// cmd/patchc has no subcommand that sets it.
var IsTestMode = false

// IsREPLMode indicates the process is running the interactive REPL rather
// than a one-shot compile. Set in cmd/patchc before the REPL's Start.
var IsREPLMode = false

// FrozenRegistryMode indicates the block registry was built once from
// registry.LoadBuiltins and frozen before any patch was compiled (spec.md
// SPEC_FULL ambient stack). Every compile in this module runs this way;
// the flag exists so a future plugin-loading command (none exists yet) has
// a documented place to say it does not.
var FrozenRegistryMode = true

// Built-in block type names, mirrored from internal/registry/builtin.go's
// registration calls so cmd/patchc and internal/repl have a single place to
// reference them without importing string literals by hand.
const (
	BlockTime          = "Time"
	BlockSin           = "Sin"
	BlockMul           = "Mul"
	BlockArray         = "Array"
	BlockPositionXY    = "PositionXY"
	BlockDegreesInput  = "DegreesInput"
	BlockPulse         = "Pulse"
	BlockSampleAndHold = "SampleAndHold"
	BlockStateWrite    = "StateWrite"
	BlockRender        = "Render"
	BlockDisplay       = "Display"
)
