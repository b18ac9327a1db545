package mysql

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	mu         sync.Mutex
	dbInstance *gorm.DB
)

// DSN 构建 MySQL 连接串。时间按 UTC 解析，和授权表中的时间戳一致。
func DSN(cfg *config.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username,
		cfg.Password,
		cfg.Address,
		cfg.Database,
	)
}

// GetDB 返回进程内共享的 GORM 实例。
// 首次连接成功后缓存；失败不缓存，下次调用会重试。
func GetDB(ctx context.Context, cfg *config.MySQLConfig, log *logger.Logger) (*gorm.DB, error) {
	mu.Lock()
	defer mu.Unlock()
	if dbInstance != nil {
		return dbInstance, nil
	}

	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MySQL %s: %w", cfg.Address, err)
	}

	// 获取底层 *sql.DB 实例，以便配置连接池。
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("无法获取底层 SQL DB 实例: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("MySQL Ping 失败: %w", err)
	}

	log.WithField("address", cfg.Address).WithField("database", cfg.Database).Info("成功连接到 MySQL")
	dbInstance = db
	return dbInstance, nil
}

// Close 关闭共享连接，之后的 GetDB 会重新建立连接。
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if dbInstance == nil {
		return nil
	}
	sqlDB, err := dbInstance.DB()
	dbInstance = nil
	if err != nil {
		return fmt.Errorf("获取底层 SQL DB 实例失败: %w", err)
	}
	return sqlDB.Close()
}

// HealthCheck 检查数据库连接的健康状况。
func HealthCheck(ctx context.Context) error {
	mu.Lock()
	db := dbInstance
	mu.Unlock()
	if db == nil {
		return errors.New("数据库连接未初始化")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("无法获取底层 SQL DB 实例进行健康检查: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
