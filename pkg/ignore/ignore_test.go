package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"climdash/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 1. 空的临时目录 (没有 .climdashignore)
	matcher, err := NewMatcher(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		path     string
		isDir    bool
		shouldIg bool
	}{
		{".climdash", true, true},
		{".climdash/cache", false, true}, // 子路径也应该被忽略
		{".climdash", false, false},     // 只针对目录的规则不匹配同名文件
		{".git", true, true},
		{"config.yaml", false, true},
		{"sn/ts/tasmax/tasmax_rcp45.csv.part", false, true},
		{".DS_Store", false, true},
		{"sn/ts/tasmax/tasmax_rcp45.csv", false, false},
		{"sn/boundary.geojson", false, false},
		{"sn/ts", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, _ := matcher.Match(tt.path, tt.isDir)
			assert.Equal(t, tt.shouldIg, got, "Path: %s dir=%v", tt.path, tt.isDir)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	tmpDir := t.TempDir()

	ignoreContent := `
# 草稿数据不对外展示
*.bak
drafts/
!keep.bak
!config.yaml
`
	err := os.WriteFile(filepath.Join(tmpDir, IgnoreFile), []byte(ignoreContent), 0644)
	require.NoError(t, err)

	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)

	// --- 默认规则依然生效 ---
	assert.True(t, matcher.MatchesDir(".climdash"))

	// --- 用户规则 ---
	assert.True(t, matcher.MatchesFile("old.bak"))
	assert.True(t, matcher.MatchesFile("sn/map/old.bak"))
	assert.True(t, matcher.MatchesDir("sn/drafts"))
	assert.True(t, matcher.MatchesDir("sn/drafts/"), "trailing slash is tolerated")
	assert.True(t, matcher.MatchesFile("sn/drafts/tasmax.csv"))
	assert.False(t, matcher.MatchesFile("sn/drafts"), "directory-only rule must not hide a file")
	assert.False(t, matcher.MatchesFile("sn/map/pr/pr_ref.csv"))

	// --- 负向规则，包括覆盖默认规则 ---
	assert.False(t, matcher.MatchesFile("keep.bak"))
	assert.False(t, matcher.MatchesFile("config.yaml"))
}

func TestMatcher_ReportsRule(t *testing.T) {
	matcher, err := NewMatcher(t.TempDir())
	require.NoError(t, err)

	ok, rule := matcher.Match("./sn/ts/a.csv.part", false)
	assert.True(t, ok)
	assert.Equal(t, "*.part", rule)

	ok, rule = matcher.Match("sn/ts/a.csv", false)
	assert.False(t, ok)
	assert.Empty(t, rule)
}

func TestMatcher_Filter(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, IgnoreFile), []byte("drafts/\n"), 0644))
	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)

	entries := []storage.Entry{
		{Name: "drafts", IsDir: true},
		{Name: "drafts.csv"},
		{Name: "tasmax", IsDir: true},
		{Name: "pr_rcp45.csv.tmp"},
	}
	got := matcher.Filter("sn/ts/", entries)
	assert.Equal(t, []storage.Entry{{Name: "drafts.csv"}, {Name: "tasmax", IsDir: true}}, got)
	assert.Len(t, entries, 4, "input slice is not modified")
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.MatchesFile("anything"))
	assert.Equal(t, []storage.Entry{{Name: "a"}}, m.Filter("", []storage.Entry{{Name: "a"}}))
}
