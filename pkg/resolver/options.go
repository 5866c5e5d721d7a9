package resolver

import (
	"fmt"
	"log/slog"
	"time"

	"climdash/pkg/observability"
	"climdash/pkg/storage/cache"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultBudget       = 5 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Config 是解析器的显式配置，不依赖任何全局状态
type Config struct {
	// Precedence 按优先级从高到低列出后端名称
	// 为空时使用后端的配置顺序；非空时必须恰好列出每个后端一次。
	Precedence []string `mapstructure:"precedence"`
	// Budget 是单次解析 (含缓存查询和所有探测) 的总时间预算
	Budget time.Duration `mapstructure:"budget"`
	// ProbeTimeout 是单个后端存在性探测的上限
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeTimeout > c.Budget {
		c.ProbeTimeout = c.Budget
	}
	return c
}

// ValidatePrecedence 检查优先级列表是否恰好覆盖所有后端
func ValidatePrecedence(precedence, names []string) error {
	if len(precedence) == 0 {
		return nil
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	seen := make(map[string]bool, len(precedence))
	for _, n := range precedence {
		if !known[n] {
			return fmt.Errorf("precedence names unknown backend %q", n)
		}
		if seen[n] {
			return fmt.Errorf("precedence names backend %q twice", n)
		}
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			return fmt.Errorf("precedence is missing backend %q", n)
		}
	}
	return nil
}

// Option 配置 Resolver 的可选依赖
type Option func(*Resolver)

func WithCache(c cache.Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithRecorder 注册解析事件的记录器 (审计)
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

func WithClock(c clockwork.Clock) Option {
	return func(r *Resolver) {
		if c != nil {
			r.clock = c
		}
	}
}
