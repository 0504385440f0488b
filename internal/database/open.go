package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/finagent/config"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 按配置打开数据库，支持 sqlite（纯 Go 驱动）与 postgres
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// PoolConfigFrom 由数据库配置生成连接池配置
func PoolConfigFrom(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	pc.Name = cfg.Driver
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if pc.MaxIdleConns > pc.MaxOpenConns {
		pc.MaxIdleConns = pc.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return pc
}

// =============================================================================
// ⏱️ 查询耗时回调
// =============================================================================

const startKey = "finagent:query_start"

// registerQueryCallbacks 在 GORM 各类操作前后记录耗时
func registerQueryCallbacks(db *gorm.DB, name string, observer Observer) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				observer.RecordDBQuery(name, operation, time.Since(start))
			}
		}
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("finagent:before_create", before),
		cb.Create().After("gorm:create").Register("finagent:after_create", after("create")),
		cb.Query().Before("gorm:query").Register("finagent:before_query", before),
		cb.Query().After("gorm:query").Register("finagent:after_query", after("query")),
		cb.Update().Before("gorm:update").Register("finagent:before_update", before),
		cb.Update().After("gorm:update").Register("finagent:after_update", after("update")),
		cb.Delete().Before("gorm:delete").Register("finagent:before_delete", before),
		cb.Delete().After("gorm:delete").Register("finagent:after_delete", after("delete")),
		cb.Row().Before("gorm:row").Register("finagent:before_row", before),
		cb.Row().After("gorm:row").Register("finagent:after_row", after("row")),
		cb.Raw().Before("gorm:raw").Register("finagent:before_raw", before),
		cb.Raw().After("gorm:raw").Register("finagent:after_raw", after("raw")),
	)
}
