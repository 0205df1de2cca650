package cpufreq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	root := t.TempDir()

	valid := filepath.Join(root, "policy4")
	require.NoError(t, os.Mkdir(valid, 0o755))
	writeControlFile(t, valid, availableFrequenciesFile, "100000 200000\n")
	writeControlFile(t, valid, affectedCPUsFile, "4 5\n")

	// broken domain is skipped, not fatal
	broken := filepath.Join(root, "policy5")
	require.NoError(t, os.Mkdir(broken, 0o755))
	writeControlFile(t, broken, affectedCPUsFile, "5\n")

	// unrelated entries are ignored
	require.NoError(t, os.Mkdir(filepath.Join(root, "schedutil"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "policy9"), []byte("not a dir"), 0o644))

	domains, err := Discover(root, testr.New(t))
	require.NoError(t, err)

	require.Len(t, domains, 1)
	assert.Equal(t, 4, domains[0].PolicyID())
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), testr.New(t))
	assert.Error(t, err)
}
