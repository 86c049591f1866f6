package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/maslennikov-ig/MC-2-sub003/internal/database"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("audit: run not found")

// Run 一次运行的审计输入
type Run struct {
	RunID       string
	Outcome     string
	LayerUsed   string
	Validated   bool
	TotalCost   int
	Model       string
	ContractTag string
	Error       string
	StartedAt   time.Time
	Duration    time.Duration
	Attempts    []Attempt
	// Violations 为首次校验结果
	Violations []schema.Violation
}

// Attempt 单次尝试的审计输入
type Attempt struct {
	Layer               string
	Succeeded           bool
	TokenCost           int
	RemainingViolations int
	Model               string
	Detail              string
	StartedAt           time.Time
	DurationMs          int64
}

// PathCount 违规路径统计
type PathCount struct {
	Pattern string `json:"pattern"`
	Kind    string `json:"kind"`
	Count   int64  `json:"count"`
}

// Store 基于 GORM 的运行审计存储
type Store struct {
	db       *database.Manager
	logger   *zap.Logger
	attempts int
}

// NewStore 创建审计存储
func NewStore(db *database.Manager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:       db,
		logger:   logger.With(zap.String("component", "audit")),
		attempts: 3,
	}
}

// Migrate 自动迁移审计表
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.DB().WithContext(ctx).AutoMigrate(
		&RunRecord{},
		&AttemptRecord{},
		&ViolationRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate audit tables: %w", err)
	}
	return nil
}

// Record 在一个事务中写入运行、尝试与违规记录
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return errors.New("audit: run id is required")
	}
	rec := toRecord(run)

	err := s.db.WithTransactionRetry(ctx, s.attempts, func(tx *gorm.DB) error {
		if err := tx.Omit("Attempts", "Violations").Create(&rec).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if len(rec.Attempts) > 0 {
			if err := tx.Create(&rec.Attempts).Error; err != nil {
				return fmt.Errorf("insert attempts: %w", err)
			}
		}
		if len(rec.Violations) > 0 {
			if err := tx.Create(&rec.Violations).Error; err != nil {
				return fmt.Errorf("insert violations: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to record run", zap.String("run_id", run.RunID), zap.Error(err))
		return err
	}

	s.logger.Debug("run recorded",
		zap.String("run_id", run.RunID),
		zap.String("outcome", run.Outcome),
		zap.Int("attempts", len(rec.Attempts)),
	)
	return nil
}

// FindRun 按 RunID 读取运行及其尝试、违规记录
func (s *Store) FindRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.DB().WithContext(ctx).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Preload("Violations", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("run_id = ?", runID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return &rec, nil
}

// RecurringViolationPaths 统计 since 之后首次校验中出现最多的违规路径模式
func (s *Store) RecurringViolationPaths(ctx context.Context, since time.Time, limit int) ([]PathCount, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []PathCount
	err := s.db.DB().WithContext(ctx).
		Model(&ViolationRecord{}).
		Select("pattern, kind, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("pattern, kind").
		Order("count DESC, pattern ASC, kind ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query recurring violation paths: %w", err)
	}
	return out, nil
}

// OutcomeCounts 统计 since 之后各结果的运行次数
func (s *Store) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Count   int64
	}
	err := s.db.DB().WithContext(ctx).
		Model(&RunRecord{}).
		Select("outcome, COUNT(*) AS count").
		Where("started_at >= ?", since).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.Count
	}
	return out, nil
}

func toRecord(run Run) RunRecord {
	now := time.Now()
	started := run.StartedAt
	if started.IsZero() {
		started = now
	}
	rec := RunRecord{
		RunID:       run.RunID,
		Outcome:     run.Outcome,
		LayerUsed:   run.LayerUsed,
		Validated:   run.Validated,
		TotalCost:   run.TotalCost,
		Model:       run.Model,
		ContractTag: run.ContractTag,
		Error:       run.Error,
		DurationMs:  run.Duration.Milliseconds(),
		StartedAt:   started,
	}
	for i, a := range run.Attempts {
		rec.Attempts = append(rec.Attempts, AttemptRecord{
			RunID:               run.RunID,
			Seq:                 i,
			Layer:               a.Layer,
			Succeeded:           a.Succeeded,
			TokenCost:           a.TokenCost,
			RemainingViolations: a.RemainingViolations,
			Model:               a.Model,
			Detail:              a.Detail,
			DurationMs:          a.DurationMs,
			StartedAt:           a.StartedAt,
		})
	}
	for _, v := range run.Violations {
		rec.Violations = append(rec.Violations, ViolationRecord{
			RunID:     run.RunID,
			Path:      v.Path,
			Pattern:   schema.Pattern(v.Path),
			Kind:      string(v.Kind),
			Expected:  v.Expected,
			CreatedAt: started,
		})
	}
	return rec
}
