package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateCommitsOnClose(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	w, err := m.Create("out/report.html")
	require.NoError(t, err)

	_, err = w.Write([]byte("<html>"))
	require.NoError(t, err)
	_, err = w.Write([]byte("</html>"))
	require.NoError(t, err)

	// Nothing visible until the writer closes.
	_, err = m.ReadFile("out/report.html")
	require.Error(t, err)

	require.NoError(t, w.Close())
	data, err := m.ReadFile("out/report.html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestMemoryReadMissingFile(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	_, err := m.ReadFile("nope.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryMkdirAllMarksParents(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	require.NoError(t, m.MkdirAll("a/b/c", 0755))
	assert.True(t, m.Exists("a/b/c"))
	assert.True(t, m.Exists("a/b"))
	assert.True(t, m.Exists("a"))
	assert.False(t, m.Exists("a/b/c/d"))
}

func TestMemoryCreateOverwrites(t *testing.T) {
	t.Parallel()

	m := NewMemoryFileSystem()
	for _, content := range []string{"first", "second"} {
		w, err := m.Create("f.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	data, err := m.ReadFile("f.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestOSFileSystemRoundTrip(t *testing.T) {
	t.Parallel()

	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, fsys.MkdirAll(dir, 0755))

	path := filepath.Join(dir, "map.png")
	assert.False(t, fsys.Exists(path))

	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.True(t, fsys.Exists(path))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4, info.Size())
}
