package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"bspnl.com/pkg/cache"
	"bspnl.com/pkg/calc"
	"bspnl.com/pkg/logger"
	"bspnl.com/pkg/scenario"
	"bspnl.com/pkg/web"
)

// notifySignal SIGINT / SIGTERM 到达时可读
func notifySignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}

// =============================================================================
// serve
// =============================================================================

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and JSON API",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			log := logger.Component(a.log, "web")

			// 未配置数据库时计算记录只保存在内存中
			var db *gorm.DB
			if a.cfg.Database.Enabled() {
				var err error
				if db, err = a.openDB(); err != nil {
					return err
				}
				if migrate {
					if err := calc.Migrate(db); err != nil {
						return err
					}
					log.Info("migrations applied")
				}
			} else {
				log.Warn("database not configured, calculations are kept in memory")
			}
			svc, err := a.newService(db)
			if err != nil {
				return err
			}

			var surfaces web.SurfaceCache
			if a.cfg.Redis.Addr != "" {
				client := cache.NewRedisClient(a.cfg.Redis.Addr)
				a.onClose(func() { _ = client.Close() })
				sc := cache.NewSurfaceCache(client, a.cfg.Redis.TTL)
				if err := sc.Ping(cmd.Context()); err != nil {
					log.WithError(err).Warn("redis unavailable, surface cache disabled")
				} else {
					surfaces = sc
				}
			}

			engine := scenario.NewEngine(a.cfg.Engine.Workers)
			log.WithField("workers", engine.Workers()).Debug("scenario engine ready")
			srv := web.NewHTTPServer(a.cfg.Server, web.NewServer(engine, svc, surfaces, a.cfg.Engine, log).Router())

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", a.cfg.Server.Addr).Info("dashboard listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-notifySignal():
			}

			log.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}),
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run database migrations before serving")
	return cmd
}

// =============================================================================
// migrate
// =============================================================================

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the BlackScholesInputs and BlackScholesOutputs tables",
		RunE: withApp(func(_ *cobra.Command, a *app) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if err := calc.Migrate(db); err != nil {
				return err
			}
			a.log.Info("migrations applied")
			return nil
		}),
	}
}

// =============================================================================
// writer
// =============================================================================

func writerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "writer",
		Short: "Run the Kafka output writer and the NATS calculation request consumer",
		RunE: withApp(func(_ *cobra.Command, a *app) error {
			if len(a.cfg.Kafka.Brokers) == 0 && a.cfg.Nats.URL == "" {
				return errors.New("neither kafka.brokers nor nats.url is configured")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			sigCh := notifySignal()

			if len(a.cfg.Kafka.Brokers) > 0 {
				w, err := calc.NewKafkaDBWriter(calc.DBWriterConfig{
					Brokers:       a.cfg.Kafka.Brokers,
					GroupID:       a.cfg.Kafka.GroupID,
					Topic:         a.cfg.Kafka.Topic,
					BatchSize:     a.cfg.Kafka.BatchSize,
					FlushInterval: a.cfg.Kafka.FlushInterval,
				}, calc.NewMySQLOutputRepository(db), logger.Component(a.log, "db_writer"))
				if err != nil {
					return err
				}
				// 消费只由 Stop 结束：先停消费再最后刷新，早于数据库关闭 (onClose 逆序执行)
				w.Start(context.Background())
				a.onClose(func() {
					if err := w.Stop(); err != nil {
						a.log.WithError(err).Warn("stop db writer")
					}
					st := w.Stats()
					a.log.WithField("written_rows", st.WrittenRows).WithField("errors", st.ErrorCount).Info("db writer stopped")
				})
			}

			if a.cfg.Nats.URL != "" {
				svc, err := a.newService(db)
				if err != nil {
					return err
				}
				log := logger.Component(a.log, "request_consumer")
				handler := calc.NewRequestHandler(scenario.NewEngine(a.cfg.Engine.Workers), svc, a.cfg.Engine, log)
				consumer, err := calc.NewConsumer(handler, a.cfg.Nats.URL, a.cfg.Nats.RequestSubj, a.cfg.Nats.ConsumerQueue, log)
				if err != nil {
					return err
				}
				if err := consumer.Start(); err != nil {
					return err
				}
				a.onClose(func() { _ = consumer.Stop() })
			}

			a.log.Info("writer running, press Ctrl+C to stop")
			<-sigCh
			a.log.Info("shutting down")
			return nil
		}),
	}
}
