// Package resolver 决定一个数据集由哪个后端提供
//
// 所有后端并发探测，结果按优先级顺序检查：第一个确认存在的后端胜出。
// 不可达或超时的后端被记录并跳过，不会让整个解析失败。
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"climdash/pkg/dataset"
	"climdash/pkg/observability"
	"climdash/pkg/storage"
	"climdash/pkg/storage/cache"
	"climdash/pkg/types"

	"github.com/jonboulle/clockwork"
)

// Outcome 是单个后端探测的结果分类
type Outcome string

const (
	OutcomeFound       Outcome = "found"
	OutcomeAbsent      Outcome = "absent"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeTimeout     Outcome = "timeout"
	// OutcomeNotProbed: 更高优先级的后端已命中，未等待该后端
	OutcomeNotProbed Outcome = "not_probed"
)

// Skipped 表示该后端没有给出确定答复
func (o Outcome) Skipped() bool {
	return o == OutcomeUnavailable || o == OutcomeTimeout
}

// Attempt 记录一次后端探测，用于诊断
type Attempt struct {
	Backend  string        `json:"backend"`
	Kind     types.Kind    `json:"kind"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Result 是一次成功解析的结果，只在请求范围内有效
type Result struct {
	Handle   storage.Handle `json:"handle"`
	Attempts []Attempt      `json:"attempts,omitempty"`
	Cached   bool           `json:"cached"`
	Duration time.Duration  `json:"duration_ns"`
}

// Resolver 实现数据定位
type Resolver struct {
	backends []storage.Backend // 已按优先级排序
	byName   map[string]storage.Backend
	cfg      Config

	cache    cache.Cache
	logger   *slog.Logger
	metrics  *observability.Metrics
	recorder Recorder
	clock    clockwork.Clock
}

// New 创建解析器，backends 的顺序即默认优先级
func New(backends []storage.Backend, cfg Config, opts ...Option) (*Resolver, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	// 1. 后端名称必须唯一
	byName := make(map[string]storage.Backend, len(backends))
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		if b == nil {
			return nil, errors.New("nil backend")
		}
		if _, dup := byName[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate backend name %q", b.Name())
		}
		byName[b.Name()] = b
		names = append(names, b.Name())
	}

	// 2. 按优先级排序
	if err := ValidatePrecedence(cfg.Precedence, names); err != nil {
		return nil, err
	}
	ordered := backends
	if len(cfg.Precedence) > 0 {
		ordered = make([]storage.Backend, 0, len(backends))
		for _, n := range cfg.Precedence {
			ordered = append(ordered, byName[n])
		}
	}

	r := &Resolver{
		backends: ordered,
		byName:   byName,
		cfg:      cfg.withDefaults(),
		cache:    cache.Nop{},
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Backends 返回按优先级排序的后端
func (r *Resolver) Backends() []storage.Backend {
	out := make([]storage.Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Backend 按名称查找后端
func (r *Resolver) Backend(name string) (storage.Backend, bool) {
	b, ok := r.byName[name]
	return b, ok
}

func (r *Resolver) Config() Config { return r.cfg }

// Resolve 解析数据集引用
func (r *Resolver) Resolve(ctx context.Context, ref dataset.Ref) (*Result, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: empty reference", dataset.ErrInvalidRef)
	}
	return r.resolve(ctx, ref.Key(), ref.Path())
}

// ResolvePath 解析辅助文件 (比如区域边界)
func (r *Resolver) ResolvePath(ctx context.Context, p string) (*Result, error) {
	clean, err := dataset.CleanPath(p)
	if err != nil {
		r.observe("invalid", 0)
		return nil, err
	}
	return r.resolve(ctx, clean, clean)
}

func (r *Resolver) resolve(ctx context.Context, key, p string) (*Result, error) {
	start := r.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	// 1. 读穿透缓存
	if h, ok := r.cache.Get(ctx, key); ok {
		if _, known := r.byName[h.Backend]; known {
			r.cacheLookup("hit")
			res := &Result{Handle: h, Cached: true, Duration: r.clock.Since(start)}
			r.finish(ctx, key, res, nil)
			return res, nil
		}
		// 缓存来自已下线的后端 (共享 Redis 时可能发生)
		r.cache.Delete(ctx, key)
	}
	r.cacheLookup("miss")

	// 2. 并发探测
	handle, attempts, err := r.probe(ctx, p)
	if err != nil {
		r.finish(ctx, key, &Result{Attempts: attempts, Duration: r.clock.Since(start)}, err)
		return nil, err
	}

	// 3. 只缓存确定的解析：有更高优先级的后端被跳过时，它恢复后应重新胜出
	if degraded(attempts) {
		r.logger.DebugContext(ctx, "resolution not cached, a higher precedence backend was skipped", "key", key, "backend", handle.Backend)
	} else {
		r.cache.Set(ctx, key, handle)
	}

	res := &Result{Handle: handle, Attempts: attempts, Duration: r.clock.Since(start)}
	r.finish(ctx, key, res, nil)
	return res, nil
}

// degraded 报告胜出者之前是否有后端没有给出确定答复
func degraded(attempts []Attempt) bool {
	for _, a := range attempts {
		if a.Outcome == OutcomeFound {
			return false
		}
		if a.Outcome.Skipped() {
			return true
		}
	}
	return false
}

type probeResult struct {
	found    bool
	err      error
	duration time.Duration
}

// probe 并发探测所有后端，按优先级顺序检查结果
func (r *Resolver) probe(ctx context.Context, p string) (storage.Handle, []Attempt, error) {
	probeCtx, cancelProbes := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancelProbes()

	// 1. 同时发起所有探测，每个结果通道带缓冲，探测者永远不会阻塞
	results := make([]chan probeResult, len(r.backends))
	for i, b := range r.backends {
		ch := make(chan probeResult, 1)
		results[i] = ch
		go func(b storage.Backend) {
			began := r.clock.Now()
			found, err := b.Has(probeCtx, p)
			ch <- probeResult{found: found, err: err, duration: r.clock.Since(began)}
		}(b)
	}

	// 2. 按优先级顺序检查
	attempts := make([]Attempt, 0, len(r.backends))
	for i, b := range r.backends {
		res, answered := r.await(probeCtx, results[i])

		// 调用方取消：直接返回调用方的错误 (预算耗尽则继续按超时处理)
		if errors.Is(ctx.Err(), context.Canceled) && (!answered || errors.Is(res.err, context.Canceled)) {
			return storage.Handle{}, attempts, ctx.Err()
		}

		a := r.classify(b, res, answered)
		attempts = append(attempts, a)
		r.probed(b, a)

		if a.Outcome == OutcomeFound {
			// 剩余的探测不再需要
			cancelProbes()
			for _, rest := range r.backends[i+1:] {
				attempts = append(attempts, Attempt{Backend: rest.Name(), Kind: rest.Kind(), Outcome: OutcomeNotProbed})
			}
			return storage.NewHandle(b, p), attempts, nil
		}
		if a.Outcome.Skipped() {
			r.logger.WarnContext(ctx, "backend skipped",
				"backend", b.Name(),
				"kind", b.Kind(),
				"path", p,
				"outcome", a.Outcome,
				"error", a.Reason,
			)
		}
	}

	// 3. 谁都没有
	for _, a := range attempts {
		if a.Outcome.Skipped() {
			return storage.Handle{}, attempts, &UnavailableError{Path: p, Attempts: attempts}
		}
	}
	return storage.Handle{}, attempts, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// await 等待一个探测结果
// 已经到达的结果优先于截止时间：截止时已经答复“存在”的低优先级后端仍然可以胜出。
func (r *Resolver) await(probeCtx context.Context, ch <-chan probeResult) (probeResult, bool) {
	select {
	case res := <-ch:
		return res, true
	default:
	}
	select {
	case res := <-ch:
		return res, true
	case <-probeCtx.Done():
		return probeResult{}, false
	}
}

func (r *Resolver) classify(b storage.Backend, res probeResult, answered bool) Attempt {
	a := Attempt{Backend: b.Name(), Kind: b.Kind(), Duration: res.duration}

	switch {
	case !answered:
		a.Outcome = OutcomeTimeout
		a.Err = fmt.Errorf("%w: no answer within %s", context.DeadlineExceeded, r.cfg.ProbeTimeout)
		a.Duration = r.cfg.ProbeTimeout
	case res.err == nil && res.found:
		a.Outcome = OutcomeFound
	case res.err == nil:
		a.Outcome = OutcomeAbsent
	case errors.Is(res.err, context.DeadlineExceeded):
		a.Outcome = OutcomeTimeout
		a.Err = res.err
	default:
		a.Outcome = OutcomeUnavailable
		a.Err = res.err
	}
	if a.Err != nil {
		a.Reason = a.Err.Error()
	}
	return a
}

// Open 解析并打开数据流
// 缓存的位置可能已经失效 (文件被删除)：此时清除缓存并重新解析一次。
func (r *Resolver) Open(ctx context.Context, ref dataset.Ref) (io.ReadCloser, *Result, error) {
	if ref.IsZero() {
		return nil, nil, fmt.Errorf("%w: empty reference", dataset.ErrInvalidRef)
	}
	return r.open(ctx, ref.Key(), ref.Path())
}

// OpenPath 解析并打开辅助文件
func (r *Resolver) OpenPath(ctx context.Context, p string) (io.ReadCloser, *Result, error) {
	clean, err := dataset.CleanPath(p)
	if err != nil {
		return nil, nil, err
	}
	return r.open(ctx, clean, clean)
}

func (r *Resolver) open(ctx context.Context, key, p string) (io.ReadCloser, *Result, error) {
	res, err := r.resolve(ctx, key, p)
	if err != nil {
		return nil, nil, err
	}

	rc, err := r.byName[res.Handle.Backend].Open(ctx, res.Handle.Path)
	if errors.Is(err, storage.ErrNotFound) && res.Cached {
		r.logger.InfoContext(ctx, "cached location is stale, resolving again", "key", key, "backend", res.Handle.Backend)
		r.cache.Delete(ctx, key)

		res, err = r.resolve(ctx, key, p)
		if err != nil {
			return nil, nil, err
		}
		rc, err = r.byName[res.Handle.Backend].Open(ctx, res.Handle.Path)
	}
	if errors.Is(err, storage.ErrNotFound) {
		r.cache.Delete(ctx, key)
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s on %s: %w", p, res.Handle.Backend, err)
	}
	return rc, res, nil
}

// Invalidate 丢弃一个引用的缓存
func (r *Resolver) Invalidate(ctx context.Context, ref dataset.Ref) {
	r.cache.Delete(ctx, ref.Key())
}

// InvalidatePath 丢弃一个路径的缓存
func (r *Resolver) InvalidatePath(ctx context.Context, p string) {
	r.cache.Delete(ctx, p)
}

// InvalidatePrefix 丢弃某个目录下所有路径的缓存，返回删除的条目数
func (r *Resolver) InvalidatePrefix(ctx context.Context, dir string) int {
	if dir == "" {
		return r.cache.DeletePrefix(ctx, "")
	}
	return r.cache.DeletePrefix(ctx, dir+"/")
}

// CheckReadiness 至少一个后端能给出确定答复时即就绪
func (r *Resolver) CheckReadiness(ctx context.Context) error {
	_, attempts, err := r.probe(ctx, ".climdash-ready")
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	for _, a := range attempts {
		if !a.Outcome.Skipped() {
			return nil
		}
	}
	return err
}

// --- metrics / audit helpers ---

func (r *Resolver) finish(ctx context.Context, key string, res *Result, err error) {
	outcome := outcomeLabel(err)
	r.observe(outcome, res.Duration)

	if r.recorder == nil {
		return
	}
	ev := Event{
		Key:      key,
		Outcome:  outcome,
		Handle:   res.Handle,
		Cached:   res.Cached,
		Attempts: res.Attempts,
		Duration: res.Duration,
		Err:      err,
		At:       r.clock.Now(),
	}
	// 审计失败不影响解析结果；调用方取消后仍然记录
	if recErr := r.recorder.Record(context.WithoutCancel(ctx), ev); recErr != nil {
		r.logger.WarnContext(ctx, "record resolution failed", "key", key, "error", recErr)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (r *Resolver) observe(outcome string, d time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.Resolutions.WithLabelValues(outcome).Inc()
	if d > 0 {
		r.metrics.ResolutionDuration.Observe(d.Seconds())
	}
}

func (r *Resolver) cacheLookup(result string) {
	if r.metrics != nil {
		r.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (r *Resolver) probed(b storage.Backend, a Attempt) {
	if r.metrics == nil {
		return
	}
	r.metrics.Probes.WithLabelValues(b.Name(), string(a.Outcome)).Inc()
	r.metrics.ProbeDuration.WithLabelValues(b.Name()).Observe(a.Duration.Seconds())
}
