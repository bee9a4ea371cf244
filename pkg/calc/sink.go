// 文件: pkg/calc/sink.go
// 输出行的去向：直接写 MySQL，或发到 Kafka 由 DBWriter 异步落库

package calc

import (
	"context"
	"encoding/json"
	"strconv"

	"bspnl.com/pkg/kafka"
	"bspnl.com/pkg/scenario"
)

// RowSink 输出行写入器
type RowSink interface {
	WriteRows(ctx context.Context, calcID int64, rows []scenario.OutputRow) error
}

// =============================================================================
// 同步写库
// =============================================================================

type DirectSink struct {
	repo OutputRepository
}

func NewDirectSink(repo OutputRepository) *DirectSink {
	return &DirectSink{repo: repo}
}

func (s *DirectSink) WriteRows(ctx context.Context, calcID int64, rows []scenario.OutputRow) error {
	outputs := make([]*Output, len(rows))
	for i, row := range rows {
		outputs[i] = NewOutput(row)
	}
	_, err := s.repo.CreateBatch(ctx, outputs)
	return err
}

// =============================================================================
// Kafka
// =============================================================================

// OutputBatch 一次计算的全部输出行，作为一条 Kafka 消息
type OutputBatch struct {
	CalculationID int64                `json:"calculation_id"`
	Rows          []scenario.OutputRow `json:"rows"`
}

type outputBatchMessage struct {
	topic string
	batch OutputBatch
}

func (m outputBatchMessage) Topic() string { return m.topic }

// Key 同一计算的消息进入同一分区
func (m outputBatchMessage) Key() string { return strconv.FormatInt(m.batch.CalculationID, 10) }

func (m outputBatchMessage) Value() ([]byte, error) { return json.Marshal(m.batch) }

// MessageSender kafka.Producer 的发送能力
type MessageSender interface {
	Send(msg kafka.Message) error
}

type KafkaSink struct {
	sender MessageSender
	topic  string
}

func NewKafkaSink(sender MessageSender, topic string) *KafkaSink {
	return &KafkaSink{sender: sender, topic: topic}
}

func (s *KafkaSink) WriteRows(_ context.Context, calcID int64, rows []scenario.OutputRow) error {
	return s.sender.Send(outputBatchMessage{
		topic: s.topic,
		batch: OutputBatch{CalculationID: calcID, Rows: rows},
	})
}
