package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFilenameWithoutExt(t *testing.T) {
	assert.Equal(t, "scene", GetFilenameWithoutExt("/a/b/scene.tif"))
	assert.Equal(t, "scene.v2", GetFilenameWithoutExt("scene.v2.tiff"))
	assert.Equal(t, "noext", GetFilenameWithoutExt("noext"))
}

func TestGetUniqTmpPath(t *testing.T) {
	a := GetUniqTmpPath("/out/mask.tif", "%s.%s.tmp")
	b := GetUniqTmpPath("/out/mask.tif", "%s.%s.tmp")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "/out/mask.tif."))
	assert.True(t, strings.HasSuffix(a, ".tmp"))
}

func TestIsHttpUrl(t *testing.T) {
	assert.True(t, IsHttpUrl("https://host/x.tif"))
	assert.True(t, IsHttpUrl("HTTP://host/x.tif"))
	assert.False(t, IsHttpUrl("/vsicurl/https://host/x.tif"))
	assert.False(t, IsHttpUrl("ftp://host/x.tif"))
}

func TestHasExt(t *testing.T) {
	assert.True(t, HasExt("a.TIF", ".tif", ".tiff"))
	assert.True(t, HasExt("a.tiff", ".tif", ".tiff"))
	assert.False(t, HasExt("a.png", ".tif", ".tiff"))
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "x", "y")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(""))
	assert.False(t, FileExists(dir))
	f := filepath.Join(dir, "f.tif")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.True(t, FileExists(f))
	assert.False(t, FileExists(filepath.Join(dir, "missing.tif")))
}
