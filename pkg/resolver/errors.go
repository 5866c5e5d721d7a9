package resolver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound 表示所有后端都确认不存在该数据集，不应重试
	ErrNotFound = errors.New("dataset unavailable")
	// ErrBackendUnavailable 表示至少一个后端不可达，且没有更高优先级的后端命中
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNoBackends 表示解析器没有配置任何后端
	ErrNoBackends = errors.New("no backends configured")
)

// UnavailableError 汇总一次解析中每个后端的尝试结果
// errors.Is(err, ErrBackendUnavailable) 为 true。
type UnavailableError struct {
	Path     string
	Attempts []Attempt
}

func (e *UnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (", ErrBackendUnavailable, e.Path)
	for i, a := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(a.Backend)
		b.WriteString(": ")
		if a.Reason != "" {
			b.WriteString(a.Reason)
		} else {
			b.WriteString(string(a.Outcome))
		}
	}
	b.WriteString(")")
	return b.String()
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// Unwrap 暴露各后端的底层错误 (比如 context.DeadlineExceeded)
func (e *UnavailableError) Unwrap() []error {
	var errs []error
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Skipped 返回被跳过 (不可达或超时) 的尝试
func (e *UnavailableError) Skipped() []Attempt {
	var out []Attempt
	for _, a := range e.Attempts {
		if a.Outcome.Skipped() {
			out = append(out, a)
		}
	}
	return out
}
