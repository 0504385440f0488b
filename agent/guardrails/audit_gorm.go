package guardrails

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AuditRecord 审计日志表模型
type AuditRecord struct {
	ID          uint      `gorm:"primaryKey"`
	CreatedAt   time.Time `gorm:"index"`
	SessionID   string    `gorm:"size:128;index"`
	Direction   string    `gorm:"size:16"`
	Reason      string    `gorm:"size:64;index"`
	Validator   string    `gorm:"size:64"`
	ContentHash string    `gorm:"size:64"`
}

// TableName 指定表名
func (AuditRecord) TableName() string {
	return "guardrail_audit_logs"
}

// TxRunner 在事务中执行写入，可由连接池提供带重试的实现
type TxRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// GormAuditOption 配置 GormAuditLogger
type GormAuditOption func(*GormAuditLogger)

// WithTxRunner 写入审计记录时使用给定的事务执行器
func WithTxRunner(run TxRunner) GormAuditOption {
	return func(l *GormAuditLogger) { l.runTx = run }
}

// GormAuditLogger 将审计日志写入关系型数据库
type GormAuditLogger struct {
	db    *gorm.DB
	runTx TxRunner
}

// NewGormAuditLogger 创建数据库审计日志记录器并迁移表结构
func NewGormAuditLogger(db *gorm.DB, opts ...GormAuditOption) (*GormAuditLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm audit logger: nil db")
	}
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	l := &GormAuditLogger{db: db}
	for _, opt := range opts {
		opt(l)
	}
	if l.runTx == nil {
		l.runTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return db.WithContext(ctx).Transaction(fn)
		}
	}
	return l, nil
}

// Log 记录审计日志
func (l *GormAuditLogger) Log(ctx context.Context, entry AuditEntry) error {
	rec := AuditRecord{
		CreatedAt:   entry.Timestamp,
		SessionID:   entry.SessionID,
		Direction:   string(entry.Direction),
		Reason:      entry.Reason,
		Validator:   entry.Validator,
		ContentHash: entry.ContentHash,
	}
	err := l.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Query 查询审计日志
func (l *GormAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	q := l.db.WithContext(ctx).Model(&AuditRecord{}).Order("created_at ASC, id ASC")
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if len(filter.Reasons) > 0 {
		q = q.Where("reason IN ?", filter.Reasons)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []AuditRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}

	out := make([]AuditEntry, len(records))
	for i, r := range records {
		out[i] = AuditEntry{
			Timestamp:   r.CreatedAt,
			SessionID:   r.SessionID,
			Direction:   Direction(r.Direction),
			Reason:      r.Reason,
			Validator:   r.Validator,
			ContentHash: r.ContentHash,
		}
	}
	return out, nil
}
