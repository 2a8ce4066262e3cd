package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "world")

	m, err := Build(dir)
	require.NoError(t, err)

	assert.Equal(t, DirSentinel, m["sub"])
	assert.NotEmpty(t, m["a.txt"])
	assert.NotEmpty(t, m["sub/b.txt"])
	assert.NotEqual(t, m["a.txt"], m["sub/b.txt"])
}

func TestBuildSamePathsIdenticalContent(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(dir1, "a.txt"), "same content")
	writeFile(t, filepath.Join(dir2, "a.txt"), "same content")

	m1, err := Build(dir1)
	require.NoError(t, err)
	m2, err := Build(dir2)
	require.NoError(t, err)

	assert.Equal(t, m1["a.txt"], m2["a.txt"])
}

func TestDiff(t *testing.T) {
	client := Manifest{"x": "h1", "keep_dir": DirSentinel}
	server := Manifest{"x": "h1", "y": "h2"}

	toDelete, toFetch := Diff(client, server)
	assert.Equal(t, []string{"y"}, toDelete)
	assert.Empty(t, toFetch)
}

func TestDiffFetchesMissingAndChanged(t *testing.T) {
	client := Manifest{"new": "h1", "changed": "h2", "same": "h3", "dir": DirSentinel}
	server := Manifest{"changed": "old-hash", "same": "h3"}

	toDelete, toFetch := Diff(client, server)
	assert.Empty(t, toDelete)
	assert.ElementsMatch(t, []string{"new", "changed"}, toFetch)
}

func TestDiffNeverFetchesDirectories(t *testing.T) {
	client := Manifest{"dir": DirSentinel}
	server := Manifest{}

	_, toFetch := Diff(client, server)
	assert.Empty(t, toFetch)
}

func TestApplyDeletionsDepthFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "b", "file.txt"), "x")

	err := ApplyDeletions(dir, []string{"a", "a/b", "a/b/file.txt"})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyDeletionsRetainsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "keep.txt"), "x")

	// "a" is listed for deletion but a file inside it is not, so it stays.
	err := ApplyDeletions(dir, []string{"a"})
	require.Error(t, err)

	info, statErr := os.Stat(filepath.Join(dir, "a"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}
