package registry_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowpatch/corec/internal/registry"
)

// TestBuiltinCatalogMatchesYAMLFixture guards against schema drift: if a
// builtin block's ports, cardinality mode, or broadcast policy change
// without testdata/builtin.yaml being updated alongside it, this fails
// with a readable per-field diff instead of a downstream solver test
// failing somewhere unrelated.
func TestBuiltinCatalogMatchesYAMLFixture(t *testing.T) {
	data, err := os.ReadFile("testdata/builtin.yaml")
	require.NoError(t, err)

	cf, err := registry.DecodeFixtures(data)
	require.NoError(t, err)
	require.NotEmpty(t, cf.Blocks)

	reg, _ := registry.LoadBuiltins()
	diffs := cf.Diff(reg)
	require.Empty(t, diffs, "builtin registry drifted from testdata/builtin.yaml:\n%v", diffs)
}
