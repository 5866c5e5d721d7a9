// Package httpstore 实现托管服务器 (HTTP/HTTPS) 后端
// 存在性检查用 HEAD 请求：200 即存在。目录枚举读取服务端生成的 <dir>/index.json。
package httpstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"climdash/pkg/storage"
	"climdash/pkg/types"
)

// IndexFile 是托管服务器上每个目录的清单文件名
const IndexFile = "index.json"

// Config 用于初始化 Adapter
type Config struct {
	BaseURL string        // 比如: https://data.example.org/climdash
	Token   string        // 可选 Bearer Token
	Timeout time.Duration // 单个请求的上限，0 表示只受 ctx 约束
}

// Adapter 实现了 storage.Backend 接口
type Adapter struct {
	name   string
	base   *url.URL
	token  string
	client *http.Client
}

func NewAdapter(name string, cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpstore %s: base url is required", name)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpstore %s: invalid base url: %w", name, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpstore %s: unsupported scheme %q", name, base.Scheme)
	}

	return &Adapter{
		name:   name,
		base:   base,
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// WithHTTPClient 替换底层 http.Client (测试或自定义 Transport)
func (s *Adapter) WithHTTPClient(c *http.Client) *Adapter {
	s.client = c
	return s
}

func (s *Adapter) Name() string     { return s.name }
func (s *Adapter) Kind() types.Kind { return types.KindHosted }

func (s *Adapter) Locate(rel string) string {
	u := *s.base
	u.Path = path.Join(s.base.Path, rel)
	return u.String()
}

func (s *Adapter) newRequest(ctx context.Context, method, rel string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.Locate(rel), nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

// do 发送请求，并把传输层错误标记为不可用
func (s *Adapter) do(req *http.Request) (*http.Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		// 调用方取消时保留 ctx 的错误，让上层能区分
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", storage.ErrUnavailable, req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

func isAbsent(code int) bool {
	return code == http.StatusNotFound || code == http.StatusGone
}

func statusError(req *http.Request, code int) error {
	return fmt.Errorf("%w: %s %s: status %d", storage.ErrUnavailable, req.Method, req.URL.Redacted(), code)
}

func (s *Adapter) Has(ctx context.Context, rel string) (bool, error) {
	req, err := s.newRequest(ctx, http.MethodHead, rel)
	if err != nil {
		return false, err
	}
	resp, err := s.do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case isAbsent(resp.StatusCode):
		return false, nil
	default:
		return false, statusError(req, resp.StatusCode)
	}
}

func (s *Adapter) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, http.MethodGet, rel)
	if err != nil {
		return nil, err
	}
	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	resp.Body.Close()
	if isAbsent(resp.StatusCode) {
		return nil, storage.ErrNotFound
	}
	return nil, statusError(req, resp.StatusCode)
}

// List 读取 <dir>/index.json
// 格式: [{"name": "tasmax", "dir": true}, {"name": "a.csv", "size": 123}]
func (s *Adapter) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	rc, err := s.Open(ctx, path.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var entries []storage.Entry
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return nil, fmt.Errorf("httpstore %s: bad index for %q: %w", s.name, dir, err)
	}

	// 清单由服务端生成，过滤掉不合法的名字
	out := entries[:0]
	for _, e := range entries {
		if !storage.ValidEntryName(e.Name) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
