// Package sftpstore 实现托管服务器 (SFTP) 后端
// 连接是惰性建立的：第一次探测时才拨号，操作失败后丢弃连接，下次重新拨号。
package sftpstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"climdash/pkg/storage"
	"climdash/pkg/types"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config 用于初始化 Adapter
type Config struct {
	Addr       string // host:port
	User       string
	Password   string
	KeyFile    string // 私钥路径，与 Password 二选一
	KnownHosts string // known_hosts 路径，为空时不校验主机指纹
	Root       string // 远端数据根目录
	Timeout    time.Duration
}

// DialFunc 建立一条 SFTP 会话，返回的 Closer 负责关闭底层连接
type DialFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// Adapter 实现了 storage.Backend 接口
type Adapter struct {
	name string
	addr string
	user string
	root string
	dial DialFunc

	mu     sync.Mutex
	client *sftp.Client
	closer io.Closer
}

func NewAdapter(name string, cfg Config) (*Adapter, error) {
	if cfg.Addr == "" || cfg.User == "" {
		return nil, fmt.Errorf("sftp %s: addr and user are required", name)
	}

	// 1. 认证方式
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp %s: read key: %w", name, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("sftp %s: parse key: %w", name, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp %s: password or key_file is required", name)
	}

	// 2. 主机指纹校验
	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("sftp %s: load known_hosts: %w", name, err)
		}
		hostKey = cb
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}

	a := newAdapter(name, cfg)
	a.dial = func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		return dialSSH(ctx, cfg.Addr, sshCfg)
	}
	return a, nil
}

// NewAdapterWithDialer 使用自定义拨号函数 (测试中用内存 SFTP 服务端)
func NewAdapterWithDialer(name string, cfg Config, dial DialFunc) *Adapter {
	a := newAdapter(name, cfg)
	a.dial = dial
	return a
}

func newAdapter(name string, cfg Config) *Adapter {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &Adapter{name: name, addr: cfg.Addr, user: cfg.User, root: root}
}

// dialSSH 带 ctx 的 SSH 拨号 (ssh.Dial 本身不接受 ctx)
func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*sftp.Client, io.Closer, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	// 握手阶段也受 ctx 截止时间约束
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return nil, nil, err
	}
	_ = netConn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, err
	}
	return client, sshClient, nil
}

func (s *Adapter) Name() string     { return s.name }
func (s *Adapter) Kind() types.Kind { return types.KindHosted }

func (s *Adapter) Locate(rel string) string {
	p := path.Join(s.root, rel)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return fmt.Sprintf("sftp://%s@%s%s", s.user, s.addr, p)
}

func (s *Adapter) remote(rel string) string {
	return path.Join(s.root, rel)
}

// session 返回当前会话，必要时重新拨号
func (s *Adapter) session(ctx context.Context) (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	client, closer, err := s.dial(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: sftp dial %s: %v", storage.ErrUnavailable, s.addr, err)
	}
	s.client, s.closer = client, closer
	return client, nil
}

// reset 丢弃失效的会话
func (s *Adapter) reset(client *sftp.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client {
		return
	}
	s.client.Close()
	if s.closer != nil {
		s.closer.Close()
	}
	s.client, s.closer = nil, nil
}

// Close 关闭当前会话
func (s *Adapter) Close() error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		s.reset(client)
	}
	return nil
}

// run 在会话上执行 fn
// sftp 的调用不感知 ctx：ctx 结束时关闭会话，让阻塞的调用尽快失败。
func (s *Adapter) run(ctx context.Context, fn func(c *sftp.Client) error) error {
	client, err := s.session(ctx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- fn(client) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.reset(client)
			return fmt.Errorf("%w: sftp %s: %v", storage.ErrUnavailable, s.addr, err)
		}
		return err
	case <-ctx.Done():
		s.reset(client)
		return ctx.Err()
	}
}

func (s *Adapter) Has(ctx context.Context, rel string) (bool, error) {
	var info os.FileInfo
	err := s.run(ctx, func(c *sftp.Client) error {
		var err error
		info, err = c.Stat(s.remote(rel))
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *Adapter) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	var f *sftp.File
	err := s.run(ctx, func(c *sftp.Client) error {
		info, err := c.Stat(s.remote(rel))
		if err != nil {
			return err
		}
		if info.IsDir() {
			return os.ErrNotExist
		}
		f, err = c.Open(s.remote(rel))
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	var infos []os.FileInfo
	err := s.run(ctx, func(c *sftp.Client) error {
		var err error
		infos, err = c.ReadDir(s.remote(dir))
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entries := make([]storage.Entry, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}
		e := storage.Entry{Name: info.Name(), IsDir: info.IsDir()}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
