package guardrails

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Direction 审计事件方向
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// AuditEntry 审计日志条目
// 只保存内容哈希，不保存原始文本
type AuditEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Direction   Direction `json:"direction"`
	Reason      string    `json:"reason"`
	Validator   string    `json:"validator,omitempty"`
	ContentHash string    `json:"content_hash"`
}

// AuditFilter 审计日志查询过滤器
type AuditFilter struct {
	SessionID string
	Reasons   []string
	Since     *time.Time
	Limit     int
}

// AuditLogger 护栏审计日志接口
type AuditLogger interface {
	// Log 记录审计日志
	Log(ctx context.Context, entry AuditEntry) error
	// Query 查询审计日志，按时间升序
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// MemoryAuditLogger 内存审计日志记录器
// 用于测试和开发环境，超过容量时丢弃最旧条目
type MemoryAuditLogger struct {
	entries []AuditEntry
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryAuditLogger 创建内存审计日志记录器
func NewMemoryAuditLogger(maxSize int) *MemoryAuditLogger {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryAuditLogger{maxSize: maxSize}
}

// Log 记录审计日志
func (l *MemoryAuditLogger) Log(_ context.Context, entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxSize {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Query 查询审计日志
func (l *MemoryAuditLogger) Query(_ context.Context, filter AuditFilter) ([]AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []AuditEntry
	for _, e := range l.entries {
		if filter.matches(e) {
			out = append(out, e)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
	}
	return out, nil
}

// Len 返回当前条目数
func (l *MemoryAuditLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (f AuditFilter) matches(e AuditEntry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if len(f.Reasons) > 0 {
		for _, r := range f.Reasons {
			if r == e.Reason {
				return true
			}
		}
		return false
	}
	return true
}

// hashContent 计算内容的 SHA256 哈希
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
