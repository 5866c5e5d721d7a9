package audit

import (
	"time"

	"gorm.io/datatypes"
)

// ResolutionRecord 是一次解析的审计记录
// 用于回答“这个数据集上次是从哪里来的”、“哪个后端经常超时”这类问题
type ResolutionRecord struct {
	ID string `gorm:"primaryKey;type:char(36)" json:"id"`

	// RefKey 是数据集的缓存键 (即相对路径)
	RefKey string `gorm:"index;type:varchar(512);not null" json:"key"`

	Outcome  string `gorm:"index;type:varchar(20);not null" json:"outcome"`
	Backend  string `gorm:"type:varchar(100)" json:"backend,omitempty"` // 命中的后端，失败时为空
	Location string `gorm:"type:text" json:"location,omitempty"`
	Cached   bool   `json:"cached"`

	DurationMs int64  `json:"duration_ms"`
	Error      string `gorm:"type:text" json:"error,omitempty"`

	// Attempts: 每个后端的探测结果 [{"backend":..,"outcome":..,"error":..}]
	Attempts datatypes.JSON `json:"attempts,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName 强制指定表名
func (ResolutionRecord) TableName() string {
	return "resolutions"
}
