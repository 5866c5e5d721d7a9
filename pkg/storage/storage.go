package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"climdash/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable 标记后端不可达 (网络错误、认证失败、超时...)
	ErrUnavailable = errors.New("backend unavailable")
)

// Backend 是所有数据源 (本地磁盘 / 托管服务器 / 云盘) 的统一抽象
// 所有方法都是只读的，path 是 dataset.Ref.Path() 形式的相对路径。
type Backend interface {
	// Name 是配置中的唯一名称，用于优先级排序和诊断
	Name() string
	Kind() types.Kind

	// Has 是有界时间内的存在性检查
	// (false, nil) 表示确定不存在；error 表示无法判断 (后端不可达)
	Has(ctx context.Context, path string) (bool, error)

	// Open 打开数据流，不存在时返回 ErrNotFound
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// List 列出目录下的直接子项 (数据集枚举)
	List(ctx context.Context, dir string) ([]Entry, error)

	// Locate 返回具体位置 URI (file://, https://, sftp://, s3://)
	Locate(path string) string
}

// Entry 是 List 返回的目录项
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"dir"`
	Size  int64  `json:"size,omitempty"`
}

// ValidEntryName 报告 name 能否作为单个路径段使用
// 列举结果来自外部 (对象存储前缀、服务端清单)，拼进本地路径前必须检查。
func ValidEntryName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// Handle 是解析结果：渲染层凭它从具体后端取数据
type Handle struct {
	Backend  string     `json:"backend" cbor:"b"`
	Kind     types.Kind `json:"kind" cbor:"k"`
	Path     string     `json:"path" cbor:"p"`
	Location string     `json:"location" cbor:"l"`
}

func (h Handle) IsZero() bool { return h.Backend == "" }

// NewHandle 由后端和相对路径构造 Handle
func NewHandle(b Backend, path string) Handle {
	return Handle{
		Backend:  b.Name(),
		Kind:     b.Kind(),
		Path:     path,
		Location: b.Locate(path),
	}
}
