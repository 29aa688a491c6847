package interp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystemAppends(t *testing.T) {
	dir := t.TempDir()
	fs := OSFileSystem{Dir: dir}

	for _, line := range []string{"one\n", "two\n"} {
		f, err := fs.Open("log.txt", "a")
		require.NoError(t, err)
		_, err = f.Write([]byte(line))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestOSFileSystemMissingFile(t *testing.T) {
	_, err := OSFileSystem{Dir: t.TempDir()}.Open("absent.txt", "r")
	assert.Error(t, err)
}

func TestMemoryFileSystemModes(t *testing.T) {
	fs := NewMemoryFileSystem()

	_, err := fs.Open("new.txt", "r")
	assert.Error(t, err)

	f, err := fs.Open("new.txt", "w")
	require.NoError(t, err)
	_, err = f.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Error(t, f.Close())

	f, err = fs.Open("new.txt", "a")
	require.NoError(t, err)
	_, err = f.Write([]byte(" second"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "first second", fs.Contents("new.txt"))

	f, err = fs.Open("new.txt", "r")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	assert.Error(t, err)
	require.NoError(t, f.Close())

	f, err = fs.Open("new.txt", "w")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Empty(t, fs.Contents("new.txt"))

	_, err = fs.Open("new.txt", "q")
	assert.Error(t, err)
	assert.Equal(t, []string{"new.txt"}, fs.Paths())
}
