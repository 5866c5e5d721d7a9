// Package exporter 把解析到的数据集导出到本地，以及 CLI 的输出格式
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"climdash/pkg/resolver"
	"climdash/pkg/storage"
)

// Source 是可以枚举和读取数据的一方：本地解析器或远程客户端
type Source interface {
	Catalog(ctx context.Context, dir string) (*resolver.Listing, error)
	OpenPath(ctx context.Context, p string) (io.ReadCloser, storage.Handle, error)
}

type resolverSource struct {
	r *resolver.Resolver
}

// FromResolver 把本地解析器适配为 Source
func FromResolver(r *resolver.Resolver) Source {
	return resolverSource{r: r}
}

func (s resolverSource) Catalog(ctx context.Context, dir string) (*resolver.Listing, error) {
	return s.r.Catalog(ctx, dir)
}

func (s resolverSource) OpenPath(ctx context.Context, p string) (io.ReadCloser, storage.Handle, error) {
	rc, res, err := s.r.OpenPath(ctx, p)
	if err != nil {
		return nil, storage.Handle{}, err
	}
	return rc, res.Handle, nil
}

type Exporter struct {
	src Source
}

func NewExporter(src Source) *Exporter {
	return &Exporter{src: src}
}

// ExportFile 解析 p 并把内容写入 writer
func (e *Exporter) ExportFile(ctx context.Context, p string, writer io.Writer) (storage.Handle, int64, error) {
	rc, h, err := e.src.OpenPath(ctx, p)
	if err != nil {
		return storage.Handle{}, 0, err
	}
	defer rc.Close()

	n, err := io.Copy(writer, rc)
	if err != nil {
		return h, n, fmt.Errorf("failed to copy %s: %w", h.Location, err)
	}
	return h, n, nil
}

// ExportToFile 把数据写到本地文件
// 先写同目录下的临时文件再 rename，中断时不会留下半个文件。
func (e *Exporter) ExportToFile(ctx context.Context, p, dst string) (storage.Handle, int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return storage.Handle{}, 0, fmt.Errorf("failed to create dir for %s: %w", dst, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return storage.Handle{}, 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // rename 成功后这里是 no-op

	h, n, err := e.ExportFile(ctx, p, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return h, n, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return h, n, fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return h, n, nil
}

// ErrUnsafeEntry 表示目录项名称会让镜像写到目标目录之外
var ErrUnsafeEntry = errors.New("unsafe catalog entry")

type RestoreCallback func(localPath string, h storage.Handle, size int64)

// RestoreTree 递归地把 dir 下的全部数据复制到 targetDir
// 用于给离线使用的本地后端准备一份镜像。
func (e *Exporter) RestoreTree(ctx context.Context, dir, targetDir string, onRestore RestoreCallback) error {
	listing, err := e.src.Catalog(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to list %q: %w", dir, err)
	}

	for _, entry := range listing.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		// 1. 目录项名称来自远端，只接受单个路径段
		if !storage.ValidEntryName(entry.Name) {
			return fmt.Errorf("%w: %q in %q", ErrUnsafeEntry, entry.Name, listing.Dir)
		}
		rel := path.Join(listing.Dir, entry.Name)
		local := filepath.Join(targetDir, entry.Name)
		if !within(targetDir, local) {
			return fmt.Errorf("%w: %q escapes %s", ErrUnsafeEntry, entry.Name, targetDir)
		}

		if entry.IsDir {
			if err := e.RestoreTree(ctx, rel, local, onRestore); err != nil {
				return err
			}
			continue
		}

		h, n, err := e.ExportToFile(ctx, rel, local)
		if err != nil {
			return err
		}
		if onRestore != nil {
			onRestore(local, h, n)
		}
	}
	return nil
}

// within 报告 p 是否位于 root 之下
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
