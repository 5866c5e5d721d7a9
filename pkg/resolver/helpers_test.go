package resolver

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"climdash/pkg/dataset"
	"climdash/pkg/storage"
	"climdash/pkg/types"
)

// -----------------------------------------------------------------------------
// SpyBackend (间谍后端)
// 用于统计探测次数，并模拟延迟、故障和不响应 ctx 的后端
// -----------------------------------------------------------------------------
type spyBackend struct {
	name string
	kind types.Kind

	mu    sync.Mutex
	files map[string]string
	dirs  map[string][]storage.Entry

	err       error         // 非空时所有操作返回该错误
	delay     time.Duration // Has 的响应延迟
	ignoreCtx bool          // 延迟期间不理会 ctx (模拟卡死的连接)

	hasCount  int32
	listCount int32
}

func newSpy(name string, kind types.Kind, paths ...string) *spyBackend {
	s := &spyBackend{
		name:  name,
		kind:  kind,
		files: make(map[string]string),
		dirs:  make(map[string][]storage.Entry),
	}
	for _, p := range paths {
		s.files[p] = name + ":" + p
	}
	return s
}

func (s *spyBackend) Name() string     { return s.name }
func (s *spyBackend) Kind() types.Kind { return s.kind }

func (s *spyBackend) Locate(p string) string {
	return string(s.kind) + "://" + s.name + "/" + p
}

func (s *spyBackend) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	if s.ignoreCtx {
		time.Sleep(s.delay)
		return nil
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *spyBackend) Has(ctx context.Context, p string) (bool, error) {
	atomic.AddInt32(&s.hasCount, 1)
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[p]
	return ok, nil
}

func (s *spyBackend) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[p]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *spyBackend) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	atomic.AddInt32(&s.listCount, 1)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	entries, ok := s.dirs[dir]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return entries, nil
}

func (s *spyBackend) remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, p)
}

func (s *spyBackend) has() int32 { return atomic.LoadInt32(&s.hasCount) }

// mustRef 构造测试用的数据集引用
func mustRef(varIdx, scenario string) dataset.Ref {
	ref, err := dataset.New("sn", types.ViewTimeSeries, varIdx, scenario, dataset.Options{})
	if err != nil {
		panic(err)
	}
	return ref
}

// memRecorder 收集解析事件
type memRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *memRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) all() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
