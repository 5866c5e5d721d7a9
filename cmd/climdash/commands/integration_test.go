package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"climdash/pkg/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run 执行一次完整的命令 (包括配置加载和 App 组装)
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root, e := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	require.NoError(t, e.close())
	return stdout.String(), stderr.String(), err
}

// setupWorkspace 执行 init 并写入一些数据集
func setupWorkspace(t *testing.T) (cfg string, dataDir string) {
	t.Helper()
	dir := t.TempDir()

	out, _, err := run(t, "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized climdash")

	cfg = filepath.Join(dir, ".climdash", "config.yaml")
	require.FileExists(t, cfg)
	dataDir = filepath.Join(dir, "data")
	require.DirExists(t, dataDir)

	files := map[string]string{
		"sn/ts/tasmax/tasmax_rcp45.csv":           "year,value\n2041,31.2\n",
		"sn/ts/tasmax/tasmax_rcp45_2041-2070.csv": "year,value\n",
		"sn/ts/pr/pr_rcp45.csv":                   "year,value\n2041,1.1\n",
		"boundaries/sn.geojson": `{"type":"FeatureCollection","features":[
			{"properties":{"name":"Senegal"},"geometry":{"type":"Polygon","coordinates":[[[-17,12],[-11,12],[-11,16],[-17,16],[-17,12]]]}}]}`,
	}
	for rel, content := range files {
		full := filepath.Join(dataDir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return cfg, dataDir
}

func TestInit_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	_, _, err := run(t, "init", "--dir", dir)
	require.NoError(t, err)

	out, _, err := run(t, "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already initialized")
}

func TestIntegration_ResolveFlow(t *testing.T) {
	cfg, _ := setupWorkspace(t)

	// 1. resolve
	out, _, err := run(t, "--config", cfg, "resolve", "sn/ts/tasmax/rcp45")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:  local (local)")
	assert.Contains(t, out, "sn/ts/tasmax/tasmax_rcp45.csv")

	// 2. 带 horizon 的 JSON 输出
	out, _, err = run(t, "--config", cfg, "--json", "resolve", "sn/ts/tasmax/rcp45", "--horizon", "2041-2070")
	require.NoError(t, err)
	var res resolver.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "sn/ts/tasmax/tasmax_rcp45_2041-2070.csv", res.Handle.Path)

	// 3. 不存在的数据集
	_, _, err = run(t, "--config", cfg, "resolve", "sn/ts/hurs/rcp45")
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	// 4. 参数错误
	_, _, err = run(t, "--config", cfg, "resolve")
	assert.Error(t, err)
	_, _, err = run(t, "--config", cfg, "resolve", "sn/ts/tasmax")
	assert.Error(t, err)
}

func TestIntegration_OpenAndMirror(t *testing.T) {
	cfg, _ := setupWorkspace(t)

	out, _, err := run(t, "--config", cfg, "open", "sn/ts/pr/rcp45")
	require.NoError(t, err)
	assert.Equal(t, "year,value\n2041,1.1\n", out)

	dst := filepath.Join(t.TempDir(), "pr.csv")
	_, stderr, err := run(t, "--config", cfg, "open", "sn/ts/pr/rcp45", "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote 20 bytes")
	assert.FileExists(t, dst)

	mirror := t.TempDir()
	_, stderr, err = run(t, "--config", cfg, "mirror", "sn/ts", mirror, "-q")
	require.NoError(t, err)
	assert.Contains(t, stderr, "mirrored 3 files")
	assert.FileExists(t, filepath.Join(mirror, "tasmax", "tasmax_rcp45_2041-2070.csv"))
}

func TestIntegration_CatalogAndBoundary(t *testing.T) {
	cfg, _ := setupWorkspace(t)

	out, _, err := run(t, "--config", cfg, "--json", "catalog", "sn/ts")
	require.NoError(t, err)
	var listing resolver.Listing
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "pr", listing.Entries[0].Name)

	out, _, err = run(t, "--config", cfg, "boundary", "boundaries/sn.geojson")
	require.NoError(t, err)
	assert.Contains(t, out, "Senegal")
	assert.Contains(t, out, "[-17.0000, 12.0000, -11.0000, 16.0000]")
}

func TestIntegration_History(t *testing.T) {
	cfg, _ := setupWorkspace(t)

	_, _, err := run(t, "--config", cfg, "resolve", "sn/ts/tasmax/rcp45")
	require.NoError(t, err)
	_, _, err = run(t, "--config", cfg, "resolve", "sn/ts/hurs/rcp45")
	require.Error(t, err)

	out, _, err := run(t, "--config", cfg, "--json", "history")
	require.NoError(t, err)
	var records []struct {
		Key     string `json:"key"`
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "not_found", records[0].Outcome)

	out, _, err = run(t, "--config", cfg, "history", "sn/ts/tasmax/rcp45")
	require.NoError(t, err)
	assert.Contains(t, out, "found")
	assert.NotContains(t, out, "hurs")
}
