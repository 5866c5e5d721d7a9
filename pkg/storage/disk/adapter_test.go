package disk

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"climdash/pkg/ignore"
	"climdash/pkg/storage"
	"climdash/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile 在 root 下按相对路径写入文件
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestDiskAdapter_HasAndOpen(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sn/ts/tasmax/tasmax_rcp45.csv", "year,value\n2041,31.2\n")

	store, err := NewAdapter("local", root)
	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())
	assert.Equal(t, types.KindLocal, store.Kind())

	ctx := context.Background()

	// 1. 存在的文件
	ok, err := store.Has(ctx, "sn/ts/tasmax/tasmax_rcp45.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	// 2. 不存在的文件
	ok, err = store.Has(ctx, "sn/ts/tasmax/tasmax_rcp85.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	// 3. 目录不算数据集
	ok, err = store.Has(ctx, "sn/ts/tasmax")
	require.NoError(t, err)
	assert.False(t, ok)

	// 4. 读取内容
	rc, err := store.Open(ctx, "sn/ts/tasmax/tasmax_rcp45.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "year,value"))

	// 5. Open 不存在的文件 -> ErrNotFound
	_, err = store.Open(ctx, "sn/ts/tasmax/missing.csv")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Open(ctx, "sn/ts")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_MissingRootIsUnavailable(t *testing.T) {
	root := filepath.Join(t.TempDir(), "unmounted")

	store, err := NewAdapter("usb", root)
	require.NoError(t, err, "missing root is not a configuration error")

	_, err = store.Has(context.Background(), "sn/ts/tasmax/tasmax_rcp45.csv")
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = store.List(context.Background(), "sn")
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	// 根目录不会被自动创建
	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiskAdapter_List(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sn/ts/tasmax/tasmax_rcp45.csv", "a")
	writeFile(t, root, "sn/ts/pr/pr_rcp45.csv", "b")
	writeFile(t, root, "sn/ts/notes.tmp", "scratch")
	writeFile(t, root, "sn/ts/.hidden", "x")
	writeFile(t, root, "sn/ts/readme.csv", "hello")

	store, err := NewAdapter("local", root)
	require.NoError(t, err)

	entries, err := store.List(context.Background(), "sn/ts")
	require.NoError(t, err)

	// 按名称排序，隐藏文件与 *.tmp 被过滤
	require.Len(t, entries, 3)
	assert.Equal(t, storage.Entry{Name: "pr", IsDir: true}, entries[0])
	assert.Equal(t, storage.Entry{Name: "readme.csv", Size: 5}, entries[1])
	assert.Equal(t, storage.Entry{Name: "tasmax", IsDir: true}, entries[2])

	_, err = store.List(context.Background(), "sn/map")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 根目录
	entries, err = store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sn", entries[0].Name)
}

func TestDiskAdapter_Locate(t *testing.T) {
	root := t.TempDir()
	store, err := NewAdapter("local", root)
	require.NoError(t, err)

	loc := store.Locate("sn/ts/tasmax/tasmax_rcp45.csv")
	assert.True(t, strings.HasPrefix(loc, "file://"))
	assert.True(t, strings.HasSuffix(loc, "/sn/ts/tasmax/tasmax_rcp45.csv"))
	assert.Equal(t, root, store.Root())
}

func TestDiskAdapter_CancelledContext(t *testing.T) {
	store, err := NewAdapter("local", t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Has(ctx, "a.csv")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDiskAdapter_ListDirectoryOnlyRule(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ignore.IgnoreFile, "drafts/\n")
	writeFile(t, root, "sn/ts/drafts/tasmax_rcp45.csv", "a")
	writeFile(t, root, "sn/ts/drafts.csv", "bb")

	store, err := NewAdapter("local", root)
	require.NoError(t, err)

	// 只针对目录的规则不会隐藏同名前缀的文件
	entries, err := store.List(context.Background(), "sn/ts")
	require.NoError(t, err)
	assert.Equal(t, []storage.Entry{{Name: "drafts.csv", Size: 2}}, entries)
}
