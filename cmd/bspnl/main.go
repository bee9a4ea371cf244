package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"bspnl.com/pkg/calc"
	"bspnl.com/pkg/config"
	"bspnl.com/pkg/kafka"
	"bspnl.com/pkg/logger"
	"bspnl.com/pkg/nats"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "bspnl",
	Short:         "Black-Scholes option pricing and PnL scenario surfaces",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file")

	rootCmd.AddCommand(priceCmd(), pnlCmd(), surfaceCmd(), serveCmd(), migrateCmd(), writerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// 运行环境
// =============================================================================

// app 子命令共享的配置、日志和需要关闭的资源
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	closers []func()
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	log, logCloser, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.onClose(func() { _ = logCloser.Close() })
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close 逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) openDB() (*gorm.DB, error) {
	if !a.cfg.Database.Enabled() {
		return nil, fmt.Errorf("database is not configured (set DB_HOST or database.host)")
	}
	db, err := calc.Open(a.cfg.Database, a.log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, nil
}

// newService 按配置组装计算服务：
// db 为 nil 时使用内存存储；否则输出行走 Kafka 或直接写库。配置了 NATS 时发布保存事件
func (a *app) newService(db *gorm.DB) (*calc.Service, error) {
	ids, err := calc.NewSnowflakeGenerator(a.cfg.Snowflake.NodeID)
	if err != nil {
		return nil, err
	}

	var (
		store calc.Store = calc.NewMemoryStore()
		sink  calc.RowSink
	)
	if db != nil {
		store = calc.NewMySQLStore(db)
	}
	// Kafka 的输出行由 writer 写进 MySQL，内存存储不走这条路
	if db != nil && len(a.cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(a.cfg.Kafka.Brokers), logger.Component(a.log, "kafka"))
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = producer.Close() })
		sink = calc.NewKafkaSink(producer, a.cfg.Kafka.Topic)
	}

	svc := calc.NewService(store, sink, ids, logger.Component(a.log, "calc"))

	if a.cfg.Nats.URL != "" {
		pub, err := nats.NewPublisher(a.cfg.Nats.URL)
		if err != nil {
			return nil, err
		}
		a.onClose(pub.Close)
		svc.WithEvents(pub, a.cfg.Nats.SavedSubject)
	}
	return svc, nil
}

// withApp 包装 RunE：创建 app，结束时释放
func withApp(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a)
	}
}
