package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"climdash/pkg/ignore"
	"climdash/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInvalidator 记录收到的失效请求
type recordingInvalidator struct {
	mu       sync.Mutex
	paths    []string
	prefixes []string
}

func (r *recordingInvalidator) InvalidatePath(_ context.Context, p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, p)
}

func (r *recordingInvalidator) InvalidatePrefix(_ context.Context, dir string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, dir)
	return 0
}

func (r *recordingInvalidator) sawPath(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.paths {
		if x == p {
			return true
		}
	}
	return false
}

func (r *recordingInvalidator) sawPathWithPrefix(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.paths {
		if strings.HasPrefix(x, prefix) {
			return true
		}
	}
	return false
}

func (r *recordingInvalidator) sawPrefix(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.prefixes {
		if x == p {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string) *recordingInvalidator {
	t.Helper()
	inv := &recordingInvalidator{}
	w, err := New(root, inv, observability.Discard(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return inv
}

func TestWatcher_InvalidatesOnCreateAndRemove(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sn", "ts", "tasmax"), 0755))

	inv := startWatcher(t, root)

	// 1. 新文件
	file := filepath.Join(root, "sn", "ts", "tasmax", "tasmax_rcp45.csv")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0644))
	require.Eventually(t, func() bool {
		return inv.sawPath("sn/ts/tasmax/tasmax_rcp45.csv")
	}, 3*time.Second, 20*time.Millisecond)

	// 2. 删除
	require.NoError(t, os.Remove(file))
	require.Eventually(t, func() bool {
		return inv.sawPrefix("sn/ts/tasmax/tasmax_rcp45.csv")
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	inv := startWatcher(t, root)

	dir := filepath.Join(root, "ch")
	require.NoError(t, os.Mkdir(dir, 0755))
	require.Eventually(t, func() bool { return inv.sawPrefix("ch") }, 3*time.Second, 20*time.Millisecond)

	// 新目录加入监听后，目录内的变化也能被捕获
	// 每次使用新文件名，确保产生 Create 事件
	i := 0
	require.Eventually(t, func() bool {
		i++
		name := fmt.Sprintf("sample%d.csv", i)
		_ = os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)
		return inv.sawPathWithPrefix("ch/sample")
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcher_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), &recordingInvalidator{}, nil, nil)
	assert.Error(t, err)
}

func TestWatcher_SkipsIgnoredEntries(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sn"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ignore.IgnoreFile), []byte("drafts/\n"), 0644))

	inv := startWatcher(t, root)

	// 1. 未完成的下载和被忽略的目录不触发失效
	require.NoError(t, os.WriteFile(filepath.Join(root, "sn", "pr_rcp45.csv.part"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sn", "drafts"), 0755))

	// 2. 之后的普通文件照常失效 (事件按顺序处理)
	require.NoError(t, os.WriteFile(filepath.Join(root, "sn", "pr_rcp45.csv"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return inv.sawPath("sn/pr_rcp45.csv") }, 3*time.Second, 20*time.Millisecond)

	assert.False(t, inv.sawPath("sn/pr_rcp45.csv.part"))
	assert.False(t, inv.sawPath("sn/drafts"))
	assert.False(t, inv.sawPrefix("sn/drafts"))
}

func TestWatcher_ReloadsIgnoreRules(t *testing.T) {
	root := t.TempDir()
	inv := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ignore.IgnoreFile), []byte("*.bak\n"), 0644))
	require.Eventually(t, func() bool { return inv.sawPrefix("") }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, inv.sawPath(ignore.IgnoreFile))

	// 新规则立即生效
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.bak"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.csv"), []byte("x"), 0644))
	require.Eventually(t, func() bool { return inv.sawPath("new.csv") }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, inv.sawPath("old.bak"))
}
