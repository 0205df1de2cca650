package usage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statBaseline = `cpu  200 0 200 1600 0 0 0 0 0 0
cpu0 100 0 100 800 0 0 0 0 0 0
cpu1 100 0 100 800 0 0 0 0 0 0
intr 0
ctxt 0
`

const statBusyCPU1 = `cpu  700 0 600 2700 0 0 0 0 0 0
cpu0 150 0 150 1700 0 0 0 0 0 0
cpu1 550 0 450 1000 0 0 0 0 0 0
intr 0
ctxt 0
`

func overrideProcStat(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "stat")
	originalPath := procStatPath
	procStatPath = path
	t.Cleanup(func() { procStatPath = originalPath })
	return path
}

func writeProcStat(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSample_FirstCallIsBaseline(t *testing.T) {
	path := overrideProcStat(t)
	writeProcStat(t, path, statBaseline)
	tracker := NewTracker(testr.New(t))

	snapshot, err := tracker.Sample(2)
	require.NoError(t, err)

	assert.Equal(t, map[uint]int{0: 0, 1: 0}, snapshot.Busyness)
	assert.Equal(t, 0, snapshot.TopCores.Count())
}

func TestSample_RanksBusyCores(t *testing.T) {
	path := overrideProcStat(t)
	writeProcStat(t, path, statBaseline)
	tracker := NewTracker(testr.New(t))

	_, err := tracker.Sample(1)
	require.NoError(t, err)

	writeProcStat(t, path, statBusyCPU1)
	snapshot, err := tracker.Sample(1)
	require.NoError(t, err)

	assert.Equal(t, map[uint]int{0: 10, 1: 80}, snapshot.Busyness)
	assert.True(t, snapshot.TopCores.Contains(1))
	assert.False(t, snapshot.TopCores.Contains(0))
	assert.Equal(t, 1, snapshot.TopCores.Count())
}

func TestSample_MissingStat(t *testing.T) {
	overrideProcStat(t)
	tracker := NewTracker(testr.New(t))

	_, err := tracker.Sample(2)
	assert.Error(t, err)
}

func TestSample_MalformedCounters(t *testing.T) {
	path := overrideProcStat(t)
	writeProcStat(t, path, "cpu0 1 2 x 4 5 6 7 8 9 10\n")
	tracker := NewTracker(testr.New(t))

	_, err := tracker.Sample(2)
	assert.Error(t, err)
}

func TestCoreSet(t *testing.T) {
	set := &CoreSet{}

	assert.False(t, set.Contains(3))
	set.Add(3)
	assert.True(t, set.Contains(3))
	assert.Equal(t, 1, set.Count())
}
