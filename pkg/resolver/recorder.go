package resolver

import (
	"context"
	"time"

	"climdash/pkg/storage"
)

// Event 描述一次解析，交给 Recorder 持久化
type Event struct {
	Key      string
	Outcome  string // found | not_found | unavailable | canceled | error
	Handle   storage.Handle
	Cached   bool
	Attempts []Attempt
	Duration time.Duration
	Err      error
	At       time.Time
}

// Recorder 接收解析事件 (比如审计日志)
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RecorderFunc 让普通函数实现 Recorder
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }
