package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"climdash/pkg/ignore"
	"climdash/pkg/storage"
	"climdash/pkg/types"
)

// Adapter 实现了 storage.Backend 接口 (本地磁盘)
type Adapter struct {
	name     string
	rootPath string // 比如: /data/climdash
	matcher  *ignore.Matcher
}

// NewAdapter 创建一个新的磁盘后端
// 数据目录是只读的：这里不会创建 root。root 暂时不存在 (例如外接硬盘未挂载)
// 不算配置错误，届时 Has 会报告后端不可用。
func NewAdapter(name, root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	var matcher *ignore.Matcher
	if info, err := os.Stat(absRoot); err == nil && info.IsDir() {
		matcher, err = ignore.NewMatcher(absRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore rules: %w", err)
		}
	}

	return &Adapter{name: name, rootPath: absRoot, matcher: matcher}, nil
}

func (s *Adapter) Name() string     { return s.name }
func (s *Adapter) Kind() types.Kind { return types.KindLocal }

// Root 返回数据根目录的绝对路径
func (s *Adapter) Root() string { return s.rootPath }

// layout 返回相对路径对应的物理路径
func (s *Adapter) layout(rel string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(rel))
}

// checkRoot 区分“文件不存在”和“整个数据目录不可达”
func (s *Adapter) checkRoot() error {
	info, err := os.Stat(s.rootPath)
	if err != nil {
		return fmt.Errorf("%w: data root %s: %v", storage.ErrUnavailable, s.rootPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: data root %s is not a directory", storage.ErrUnavailable, s.rootPath)
	}
	return nil
}

func (s *Adapter) Has(ctx context.Context, rel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	info, err := os.Stat(s.layout(rel))
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		if rootErr := s.checkRoot(); rootErr != nil {
			return false, rootErr
		}
		return false, nil
	}
	return false, err
}

func (s *Adapter) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targetPath := s.layout(rel)
	f, err := os.Open(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// 目录不是数据集
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, storage.ErrNotFound
	}
	return f, nil
}

// List 列出子目录和文件 (跳过隐藏文件和忽略规则命中的条目)
func (s *Adapter) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.layout(dir))
	if os.IsNotExist(err) {
		if rootErr := s.checkRoot(); rootErr != nil {
			return nil, rootErr
		}
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entries := make([]storage.Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if ok, _ := s.matcher.Match(path.Join(dir, name), d.IsDir()); ok {
			continue
		}

		e := storage.Entry{Name: name, IsDir: d.IsDir()}
		if !e.IsDir {
			if info, err := d.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *Adapter) Locate(rel string) string {
	return "file://" + filepath.ToSlash(s.layout(rel))
}
