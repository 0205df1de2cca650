package fswrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createControlFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "scaling_max_freq")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWrite(t *testing.T) {
	handler := NewFileHandler(testr.New(t))
	defer handler.Close()
	path := createControlFile(t, "")

	require.NoError(t, handler.Write(path, "2000000"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2000000", string(data))
}

func TestWrite_ReusesHandle(t *testing.T) {
	handler := NewFileHandler(testr.New(t))
	defer handler.Close()
	path := createControlFile(t, "")

	require.NoError(t, handler.Write(path, "1000000"))
	require.NoError(t, handler.Write(path, "3000000"))

	assert.Len(t, handler.files, 1)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3000000", string(data))
}

func TestWrite_ReopensReadOnlyFile(t *testing.T) {
	handler := NewFileHandler(testr.New(t))
	defer handler.Close()
	path := createControlFile(t, "")
	require.NoError(t, os.Chmod(path, 0o444))

	require.NoError(t, handler.Write(path, "1500000"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1500000", string(data))
}

func TestWrite_MissingFile(t *testing.T) {
	handler := NewFileHandler(testr.New(t))
	defer handler.Close()

	err := handler.Write(filepath.Join(t.TempDir(), "nope"), "100")
	assert.Error(t, err)
	assert.Empty(t, handler.files)
}

func TestClose(t *testing.T) {
	handler := NewFileHandler(testr.New(t))
	path := createControlFile(t, "")
	require.NoError(t, handler.Write(path, "100"))

	handler.Close()
	assert.Empty(t, handler.files)
}
