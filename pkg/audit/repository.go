// Package audit 持久化解析事件 (审计轨迹)
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"climdash/pkg/resolver"
	"climdash/pkg/types"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DefaultLimit 是查询的默认返回条数
const DefaultLimit = 50

// Repository 封装所有对审计表的操作，实现 resolver.Recorder
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

var _ resolver.Recorder = (*Repository)(nil)

// attemptJSON 是 Attempts 列中的单个元素
type attemptJSON struct {
	Backend    string `json:"backend"`
	Kind       string `json:"kind"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Record 写入一条解析事件
func (r *Repository) Record(ctx context.Context, ev resolver.Event) error {
	// 1. 转换 Attempts -> JSON
	attempts := make([]attemptJSON, 0, len(ev.Attempts))
	for _, a := range ev.Attempts {
		attempts = append(attempts, attemptJSON{
			Backend:    a.Backend,
			Kind:       string(a.Kind),
			Outcome:    string(a.Outcome),
			Error:      a.Reason,
			DurationMs: a.Duration.Milliseconds(),
		})
	}
	raw, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}

	// 2. 构造 Model
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	rec := ResolutionRecord{
		ID:         uuid.NewString(),
		RefKey:     ev.Key,
		Outcome:    ev.Outcome,
		Backend:    ev.Handle.Backend,
		Location:   ev.Handle.Location,
		Cached:     ev.Cached,
		DurationMs: ev.Duration.Milliseconds(),
		Attempts:   datatypes.JSON(raw),
		CreatedAt:  at.UTC(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}

	// 3. 写入数据库
	if err := r.db.GetConn().WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// Recent 按时间倒序返回最近的记录
func (r *Repository) Recent(ctx context.Context, limit int) ([]ResolutionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var records []ResolutionRecord
	err := r.db.GetConn().WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ForKey 返回某个数据集的解析历史
func (r *Repository) ForKey(ctx context.Context, key string, limit int) ([]ResolutionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var records []ResolutionRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("ref_key = ?", key).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Prune 删除早于 before 的记录，返回删除条数
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.GetConn().WithContext(ctx).
		Where("created_at < ?", before.UTC()).
		Delete(&ResolutionRecord{})
	return result.RowsAffected, result.Error
}

// DecodeAttempts 解析记录中的 Attempts 列
func (rec ResolutionRecord) DecodeAttempts() ([]resolver.Attempt, error) {
	var raw []attemptJSON
	if len(rec.Attempts) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(rec.Attempts, &raw); err != nil {
		return nil, err
	}
	out := make([]resolver.Attempt, 0, len(raw))
	for _, a := range raw {
		out = append(out, resolver.Attempt{
			Backend:  a.Backend,
			Kind:     types.Kind(a.Kind),
			Outcome:  resolver.Outcome(a.Outcome),
			Reason:   a.Error,
			Duration: time.Duration(a.DurationMs) * time.Millisecond,
		})
	}
	return out, nil
}
