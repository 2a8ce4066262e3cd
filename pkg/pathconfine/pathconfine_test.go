package pathconfine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/apperrors"
)

func setupRoot(t *testing.T) Root {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0644))
	root, err := NewRoot(dir)
	require.NoError(t, err)
	return root
}

func TestResolveWithinRoot(t *testing.T) {
	root := setupRoot(t)
	target, err := Resolve(root, root.String(), "sub")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root.String(), "sub"), target)
}

func TestResolveRejectsEscape(t *testing.T) {
	root := setupRoot(t)
	_, err := Resolve(root, root.String(), "../../etc")
	require.Error(t, err)
}

func TestResolveAbsoluteInputTreatedAsRootRelative(t *testing.T) {
	root := setupRoot(t)
	target, err := Resolve(root, root.String(), "/sub")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root.String(), "sub"), target)
}

func TestResolveForCDNonexistentIsInvalidPath(t *testing.T) {
	root := setupRoot(t)
	_, err := ResolveForCD(root, root.String(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidPath, apperrors.KindOf(err))
}

func TestResolveForCDFileTargetIsInvalidPath(t *testing.T) {
	root := setupRoot(t)
	_, err := ResolveForCD(root, root.String(), "a.txt")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidPath, apperrors.KindOf(err))
}

func TestResolveForCDValidDirectory(t *testing.T) {
	root := setupRoot(t)
	target, err := ResolveForCD(root, root.String(), "sub")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root.String(), "sub"), target)
}

func TestResolveForDownloadMissingIsNotFound(t *testing.T) {
	root := setupRoot(t)
	_, err := ResolveForDownload(root, root.String(), "missing.txt")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestResolveForDownloadDirectoryIsInvalidPath(t *testing.T) {
	root := setupRoot(t)
	_, err := ResolveForDownload(root, root.String(), "sub")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidPath, apperrors.KindOf(err))
}

func TestValidateComponent(t *testing.T) {
	assert.NoError(t, ValidateComponent("ok"))
	assert.Error(t, ValidateComponent(".."))
	assert.Error(t, ValidateComponent("."))
	assert.Error(t, ValidateComponent(""))
	assert.Error(t, ValidateComponent(string(make([]byte, 256))))
}

func TestValidateDepth(t *testing.T) {
	assert.NoError(t, ValidateDepth("a/b/c"))
	deep := ""
	for i := 0; i < 11; i++ {
		deep += "d/"
	}
	assert.Error(t, ValidateDepth(deep))
}
