package pools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_BuiltInPoolsResolveSectorByCommodityCode(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "precious_metal", reg.SectorOf("au2412"))
	assert.Equal(t, "black", reg.SectorOf("rb2410"))
	assert.Equal(t, "", reg.SectorOf("zzz"))
}

func TestLoad_SectorOfStripsSimulatedDominantSuffix(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "precious_metal", reg.SectorOf("au-dom"))
}

func TestExpand_KnownPoolReturnsItsCodes(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	codes, err := reg.Expand("precious_metal")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"au", "ag"}, codes)
}

func TestExpand_UnknownPoolIsAnError(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	_, err = reg.Expand("nonexistent")
	assert.Error(t, err)
}

func TestExpand_AllFlattensEveryPool(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	all, err := reg.Expand("all")
	require.NoError(t, err)
	assert.Contains(t, all, "au")
	assert.Contains(t, all, "rb")
	assert.Contains(t, all, "if")
}

func TestLoad_MissingOverrideFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.NoError(t, err)
}

func TestLoad_OverrideFileAddsAndReplacesPools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	writeFile(t, path, "precious_metal:\n  - au\ncustom:\n  - xy\n")

	reg, err := Load(path)
	require.NoError(t, err)

	codes, err := reg.Expand("precious_metal")
	require.NoError(t, err)
	assert.Equal(t, []string{"au"}, codes)
	assert.Equal(t, "", reg.SectorOf("ag"))

	custom, err := reg.Expand("custom")
	require.NoError(t, err)
	assert.Equal(t, []string{"xy"}, custom)
}

func TestLoad_InvalidOverrideYAMLIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	writeFile(t, path, "not: [valid: yaml")

	_, err := Load(path)
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
