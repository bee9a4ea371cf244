// 文件: pkg/calc/db.go
// MySQL 连接池与建表。建表只在显式调用 Migrate 时执行。

package calc

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"bspnl.com/pkg/config"
	"bspnl.com/pkg/logger"
)

// Open 打开 MySQL 连接并设置连接池
func Open(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.PoolSize)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate 创建/更新 BlackScholesInputs、BlackScholesOutputs 表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Input{}, &Output{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
