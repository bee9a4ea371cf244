// 文件: pkg/calc/db_writer.go
// 输出行落库器
//
// 消费 Kafka 上的 OutputBatch，批量写入 BlackScholesOutputs:
// - 缓冲达到 BatchSize 立即刷新
// - 定时刷新兜底
// - 停止时最后刷新一次

package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"bspnl.com/pkg/kafka"
)

// DBWriterConfig 配置
type DBWriterConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	BatchSize     int
	FlushInterval time.Duration
}

// DBWriterStats 写入统计
type DBWriterStats struct {
	ReceivedBatches int64
	WrittenRows     int64
	ErrorCount      int64
	FlushCount      int64
}

// DBWriter 数据库写入器
type DBWriter struct {
	repo     OutputRepository
	consumer *kafka.Consumer
	log      logrus.FieldLogger

	buffer    []*Output
	bufferMu  sync.Mutex
	batchSize int
	interval  time.Duration
	flushCh   chan struct{}

	received atomic.Int64
	written  atomic.Int64
	errors   atomic.Int64
	flushes  atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDBWriter 创建写入器 (不含 Kafka 消费者，用于直接喂数据)
func NewDBWriter(repo OutputRepository, batchSize int, interval time.Duration, log logrus.FieldLogger) *DBWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &DBWriter{
		repo:      repo,
		log:       log,
		buffer:    make([]*Output, 0, batchSize),
		batchSize: batchSize,
		interval:  interval,
		flushCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// NewKafkaDBWriter 创建挂在 Kafka 消费者组上的写入器
func NewKafkaDBWriter(cfg DBWriterConfig, repo OutputRepository, log logrus.FieldLogger) (*DBWriter, error) {
	w := NewDBWriter(repo, cfg.BatchSize, cfg.FlushInterval, log)

	consumerCfg := kafka.DefaultConsumerConfig(cfg.Brokers, cfg.GroupID, []string{cfg.Topic})
	consumer, err := kafka.NewConsumer(consumerCfg, w.HandleMessage, log)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	w.consumer = consumer
	return w, nil
}

// =============================================================================
// 消息处理
// =============================================================================

// HandleMessage 处理一条 OutputBatch 消息
func (w *DBWriter) HandleMessage(topic string, partition int32, offset int64, key, value []byte) error {
	var batch OutputBatch
	if err := json.Unmarshal(value, &batch); err != nil {
		w.errors.Add(1)
		return fmt.Errorf("unmarshal output batch: %w", err)
	}
	w.received.Add(1)

	outputs := make([]*Output, len(batch.Rows))
	for i, row := range batch.Rows {
		outputs[i] = NewOutput(row)
	}

	w.bufferMu.Lock()
	w.buffer = append(w.buffer, outputs...)
	shouldFlush := len(w.buffer) >= w.batchSize
	w.bufferMu.Unlock()

	if shouldFlush {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush 把缓冲写入数据库
func (w *DBWriter) Flush(ctx context.Context) {
	w.bufferMu.Lock()
	rows := w.buffer
	w.buffer = make([]*Output, 0, w.batchSize)
	w.bufferMu.Unlock()

	if len(rows) == 0 {
		return
	}

	n, err := w.repo.CreateBatch(ctx, rows)
	if err != nil {
		w.errors.Add(1)
		w.log.WithField("rows", len(rows)).WithError(err).Error("batch insert outputs")
		return
	}
	w.written.Add(n)
	w.flushes.Add(1)
}

// =============================================================================
// 生命周期
// =============================================================================

// Start 启动消费与定时刷新。
// ctx 取消只停止消费，刷新循环一直运行到 Stop，保证已接收的行都会落库。
func (w *DBWriter) Start(ctx context.Context) {
	if w.consumer != nil {
		w.consumer.Start(ctx)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				w.flushWithTimeout()
				return
			case <-ticker.C:
				w.flushWithTimeout()
			case <-w.flushCh:
				w.flushWithTimeout()
			}
		}
	}()
}

func (w *DBWriter) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.Flush(ctx)
}

// Stop 先停消费，再做最后一次刷新
func (w *DBWriter) Stop() error {
	var err error
	if w.consumer != nil {
		err = w.consumer.Stop()
	}
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return err
}

// Stats 获取统计
func (w *DBWriter) Stats() DBWriterStats {
	return DBWriterStats{
		ReceivedBatches: w.received.Load(),
		WrittenRows:     w.written.Load(),
		ErrorCount:      w.errors.Load(),
		FlushCount:      w.flushes.Load(),
	}
}
