// Package watch 监听本地数据目录，文件变化时让解析缓存失效
// 新增的本地文件应当立刻胜过缓存中更低优先级的位置，删除的文件不应继续被返回。
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"climdash/pkg/ignore"
	"climdash/pkg/observability"

	"github.com/fsnotify/fsnotify"
)

// Invalidator 是 Watcher 需要的缓存失效能力 (由 resolver.Resolver 实现)
type Invalidator interface {
	InvalidatePath(ctx context.Context, p string)
	InvalidatePrefix(ctx context.Context, dir string) int
}

// Watcher 监听一个本地后端的根目录
type Watcher struct {
	root    string
	fs      *fsnotify.Watcher
	matcher *ignore.Matcher
	inv     Invalidator
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(root string, inv Invalidator, logger *slog.Logger, metrics *observability.Metrics) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", absRoot)
	}
	if logger == nil {
		logger = slog.Default()
	}

	matcher, err := ignore.NewMatcher(absRoot)
	if err != nil {
		return nil, fmt.Errorf("load ignore rules: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{root: absRoot, fs: fw, matcher: matcher, inv: inv, logger: logger, metrics: metrics}
	if err := w.addRecursive(absRoot); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", absRoot, err)
	}
	return w, nil
}

// addRecursive 监听目录及其所有子目录 (fsnotify 不递归)
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// 遍历过程中目录被删除
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		// 被忽略的目录不会出现在目录枚举中，也不需要监听
		if rel, err := filepath.Rel(w.root, p); err == nil && rel != "." && w.matcher.MatchesDir(rel) {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

// Run 处理事件直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	w.logger.InfoContext(ctx, "watching local data root", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)

	// 1. 忽略规则本身变了：重新加载，所有缓存都可能受影响
	if rel == ignore.IgnoreFile {
		if ev.Has(fsnotify.Chmod) {
			return
		}
		w.reloadRules(ctx)
		return
	}

	// 2. 被忽略的条目 (未完成的下载等) 不影响解析结果
	if w.matcher.MatchesFile(rel) && w.matcher.MatchesDir(rel) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		// 新目录需要加入监听，目录下已有的文件也可能改变解析结果
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.matcher.MatchesDir(rel) {
				return
			}
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.WarnContext(ctx, "watch new directory failed", "dir", rel, "error", err)
			}
			w.invalidate(ctx, rel, true)
			return
		}
		w.invalidate(ctx, rel, false)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// 已经无法判断是文件还是目录，两种都清理
		w.invalidate(ctx, rel, true)
	}
}

func (w *Watcher) reloadRules(ctx context.Context) {
	matcher, err := ignore.NewMatcher(w.root)
	if err != nil {
		w.logger.WarnContext(ctx, "reload ignore rules failed, keeping previous rules", "error", err)
		return
	}
	w.matcher = matcher
	n := w.inv.InvalidatePrefix(ctx, "")
	if w.metrics != nil {
		w.metrics.Invalidations.Add(float64(n))
	}
	w.logger.InfoContext(ctx, "ignore rules reloaded", "file", ignore.IgnoreFile)
}

func (w *Watcher) invalidate(ctx context.Context, rel string, dir bool) {
	w.inv.InvalidatePath(ctx, rel)
	n := 1
	if dir {
		n += w.inv.InvalidatePrefix(ctx, rel)
	}
	if w.metrics != nil {
		w.metrics.Invalidations.Add(float64(n))
	}
	w.logger.DebugContext(ctx, "cache invalidated", "path", rel, "dir", dir)
}
