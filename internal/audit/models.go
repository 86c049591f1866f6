package audit

import (
	"time"
)

// ============================================================
// 运行审计表
// ============================================================

// RunRecord 一次恢复运行的汇总记录
type RunRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       string    `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	Outcome     string    `gorm:"size:32;not null;index" json:"outcome"`     // success / fallback / exhausted / budget_exceeded / canceled
	LayerUsed   string    `gorm:"size:32" json:"layer_used"`                  // 最后修改数据的层
	Validated   bool      `gorm:"default:false" json:"validated"`             // 是否通过校验
	TotalCost   int       `gorm:"default:0" json:"total_cost"`                // 全部 LLM 调用的 token 总和
	Model       string    `gorm:"size:100" json:"model"`                      // 初始生成模型
	ContractTag string    `gorm:"size:100;index" json:"contract_tag"`         // 调用方标注的契约名
	Error       string    `gorm:"type:text" json:"error,omitempty"`           // 失败原因
	DurationMs  int64     `gorm:"default:0" json:"duration_ms"`
	StartedAt   time.Time `gorm:"index" json:"started_at"`
	CreatedAt   time.Time `json:"created_at"`

	// 关联
	Attempts   []AttemptRecord   `gorm:"foreignKey:RunID;references:RunID" json:"attempts,omitempty"`
	Violations []ViolationRecord `gorm:"foreignKey:RunID;references:RunID" json:"violations,omitempty"`
}

func (RunRecord) TableName() string {
	return "regen_runs"
}

// AttemptRecord 单次修复尝试
type AttemptRecord struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	RunID               string    `gorm:"size:36;not null;index:idx_attempt_run" json:"run_id"`
	Seq                 int       `gorm:"not null;index:idx_attempt_run" json:"seq"` // 运行内序号，从 0 开始
	Layer               string    `gorm:"size:32;not null;index" json:"layer"`
	Succeeded           bool      `gorm:"default:false" json:"succeeded"`
	TokenCost           int       `gorm:"default:0" json:"token_cost"`
	RemainingViolations int       `gorm:"default:0" json:"remaining_violations"`
	Model               string    `gorm:"size:100" json:"model"`
	Detail              string    `gorm:"type:text" json:"detail"`
	DurationMs          int64     `gorm:"default:0" json:"duration_ms"`
	StartedAt           time.Time `json:"started_at"`
}

func (AttemptRecord) TableName() string {
	return "regen_attempts"
}

// ViolationRecord 首次校验发现的违规，用于统计反复出现的路径
type ViolationRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"size:36;not null;index" json:"run_id"`
	Path      string    `gorm:"size:255;not null" json:"path"`                     // lessons[2].type
	Pattern   string    `gorm:"size:255;not null;index:idx_pattern_kind" json:"pattern"` // lessons[*].type
	Kind      string    `gorm:"size:32;not null;index:idx_pattern_kind" json:"kind"`
	Expected  string    `gorm:"type:text" json:"expected"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ViolationRecord) TableName() string {
	return "regen_violations"
}
