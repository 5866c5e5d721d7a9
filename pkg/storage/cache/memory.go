package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"climdash/pkg/storage"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxEntries 是内存缓存的默认容量
const DefaultMaxEntries = 4096

// Memory 是进程内的 TTL + LRU 缓存
type Memory struct {
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // 头部是最近使用的
}

type memEntry struct {
	key     string
	handle  storage.Handle
	expires time.Time
}

// NewMemory 创建内存缓存。clock 为 nil 时使用真实时钟。
func NewMemory(ttl time.Duration, maxEntries int, clock clockwork.Clock) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (m *Memory) Get(_ context.Context, key string) (storage.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return storage.Handle{}, false
	}
	e := el.Value.(*memEntry)
	// 过期即删除 (惰性清理)
	if !m.clock.Now().Before(e.expires) {
		m.removeElement(el)
		return storage.Handle{}, false
	}
	m.order.MoveToFront(el)
	return e.handle, true
}

func (m *Memory) Set(_ context.Context, key string, h storage.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires := m.clock.Now().Add(m.ttl)
	if el, ok := m.entries[key]; ok {
		e := el.Value.(*memEntry)
		e.handle, e.expires = h, expires
		m.order.MoveToFront(el)
		return
	}

	m.entries[key] = m.order.PushFront(&memEntry{key: key, handle: h, expires: expires})
	for len(m.entries) > m.maxEntries {
		m.removeElement(m.order.Back())
	}
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, el := range m.entries {
		if strings.HasPrefix(key, prefix) {
			m.removeElement(el)
			n++
		}
	}
	return n
}

// Len 返回当前条目数 (包含尚未清理的过期条目)
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) removeElement(el *list.Element) {
	e := el.Value.(*memEntry)
	delete(m.entries, e.key)
	m.order.Remove(el)
}
