package guardrails

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func sampleEntries(base time.Time) []AuditEntry {
	return []AuditEntry{
		{Timestamp: base, SessionID: "a", Direction: DirectionInput, Reason: ErrCodeProhibitedTopic, ContentHash: hashContent("x")},
		{Timestamp: base.Add(time.Second), SessionID: "b", Direction: DirectionInput, Reason: ErrCodeSQLInjection, ContentHash: hashContent("y")},
		{Timestamp: base.Add(2 * time.Second), SessionID: "a", Direction: DirectionOutput, Reason: ErrCodeEmptyResponse, ContentHash: hashContent("z")},
	}
}

func TestMemoryAuditLogger(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	l := NewMemoryAuditLogger(2)
	for _, e := range sampleEntries(base) {
		require.NoError(t, l.Log(ctx, e))
	}
	assert.Equal(t, 2, l.Len())

	all, err := l.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].SessionID, "oldest entry should be dropped")

	bySession, err := l.Query(ctx, AuditFilter{SessionID: "a"})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, ErrCodeEmptyResponse, bySession[0].Reason)
}

func TestGormAuditLogger(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	l, err := NewGormAuditLogger(db)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("guardrail_audit_logs"))

	for _, e := range sampleEntries(base) {
		require.NoError(t, l.Log(ctx, e))
	}

	all, err := l.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ErrCodeProhibitedTopic, all[0].Reason)
	assert.Equal(t, hashContent("x"), all[0].ContentHash)

	filtered, err := l.Query(ctx, AuditFilter{SessionID: "a", Reasons: []string{ErrCodeEmptyResponse}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, DirectionOutput, filtered[0].Direction)

	since := base.Add(time.Second)
	recent, err := l.Query(ctx, AuditFilter{Since: &since, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].SessionID)

	_, err = NewGormAuditLogger(nil)
	assert.Error(t, err)
}

func TestGormAuditLogger_TxRunner(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	attempts := 0
	l, err := NewGormAuditLogger(db, WithTxRunner(func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		attempts++
		if attempts == 1 {
			return errors.New("database is locked")
		}
		return db.WithContext(ctx).Transaction(fn)
	}))
	require.NoError(t, err)

	entry := sampleEntries(time.Now())[0]
	assert.Error(t, l.Log(context.Background(), entry))
	require.NoError(t, l.Log(context.Background(), entry))
	assert.Equal(t, 2, attempts)

	all, err := l.Query(context.Background(), AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
