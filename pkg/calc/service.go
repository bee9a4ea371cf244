// 文件: pkg/calc/service.go
// 计算服务：保存一次曲面计算 (输入 + 逐格输出)，查询历史

package calc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

// EventPublisher 事件发布 (nats.Publisher)
type EventPublisher interface {
	Publish(subject string, data any) error
}

// SavedEvent 计算保存完成事件
type SavedEvent struct {
	EventID       string         `json:"event_id"`
	CalculationID int64          `json:"calculation_id"`
	Entry         options.Params `json:"entry"`
	Rows          int            `json:"rows"`
	Timestamp     int64          `json:"timestamp"`
}

// Calculation 一次计算的完整记录
type Calculation struct {
	Input   *Input    `json:"input"`
	Outputs []*Output `json:"outputs"`
}

type Service struct {
	store Store
	sink  RowSink // nil: 输出行随输入在同一事务内写库
	ids   IDGenerator

	events       EventPublisher
	savedSubject string

	log logrus.FieldLogger
}

// NewService sink 为 nil 时输出行直接写 store
func NewService(store Store, sink RowSink, ids IDGenerator, log logrus.FieldLogger) *Service {
	return &Service{
		store: store,
		sink:  sink,
		ids:   ids,
		log:   log,
	}
}

// WithEvents 保存成功后向 subject 发布 SavedEvent
func (s *Service) WithEvents(pub EventPublisher, subject string) *Service {
	s.events = pub
	s.savedSubject = subject
	return s
}

// =============================================================================
// 写入
// =============================================================================

// Save 保存曲面对应的输入记录和逐格输出记录，返回计算 ID。
// 输入和输出在同一事务内写入；走 Kafka 时输出行的发送也在事务内，发送失败则输入回滚。
func (s *Service) Save(ctx context.Context, surface *scenario.Surface) (int64, error) {
	calcID := s.ids.NextID()

	in, err := NewInput(calcID, scenario.InputRecord(surface.Entry))
	if err != nil {
		return 0, err
	}
	rows, err := scenario.OutputRows(calcID, surface)
	if err != nil {
		return 0, err
	}

	err = s.store.Transaction(ctx, func(tx Store) error {
		if err := tx.Inputs().Create(ctx, in); err != nil {
			return fmt.Errorf("create input: %w", err)
		}
		sink := s.sink
		if sink == nil {
			sink = NewDirectSink(tx.Outputs())
		}
		if err := sink.WriteRows(ctx, calcID, rows); err != nil {
			return fmt.Errorf("write outputs: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"calculation_id": calcID,
		"rows":           len(rows),
	}).Info("calculation saved")

	if s.events != nil {
		event := SavedEvent{
			EventID:       uuid.NewString(),
			CalculationID: calcID,
			Entry:         surface.Entry,
			Rows:          len(rows),
			Timestamp:     time.Now().UnixMilli(),
		}
		// 通知失败不影响已落库的数据
		if err := s.events.Publish(s.savedSubject, event); err != nil {
			s.log.WithField("calculation_id", calcID).WithError(err).Warn("publish saved event")
		}
	}

	return calcID, nil
}

// Delete 在一个事务内删除计算及其输出
func (s *Service) Delete(ctx context.Context, calcID int64) error {
	return s.store.Transaction(ctx, func(tx Store) error {
		if _, err := tx.Outputs().DeleteByCalculation(ctx, calcID); err != nil {
			return fmt.Errorf("delete outputs: %w", err)
		}
		found, err := tx.Inputs().Delete(ctx, calcID)
		if err != nil {
			return fmt.Errorf("delete input: %w", err)
		}
		if !found {
			return ErrCalculationNotFound
		}
		return nil
	})
}

// =============================================================================
// 查询
// =============================================================================

func (s *Service) Recent(ctx context.Context, limit int) ([]*Input, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.store.Inputs().ListRecent(ctx, limit)
}

func (s *Service) Get(ctx context.Context, calcID int64) (*Calculation, error) {
	in, err := s.store.Inputs().FindByID(ctx, calcID)
	if err != nil {
		return nil, err
	}
	outputs, err := s.store.Outputs().FindByCalculation(ctx, calcID)
	if err != nil {
		return nil, err
	}
	return &Calculation{Input: in, Outputs: outputs}, nil
}

func (s *Service) Outputs(ctx context.Context, calcID int64, side string) ([]*Output, error) {
	switch side {
	case "call":
		return s.store.Outputs().FindBySide(ctx, calcID, true)
	case "put":
		return s.store.Outputs().FindBySide(ctx, calcID, false)
	default:
		return s.store.Outputs().FindByCalculation(ctx, calcID)
	}
}

// Scenario 某个 (vol, spot) 格点的 call / put 输出
func (s *Service) Scenario(ctx context.Context, calcID int64, vol, spot float64) ([]*Output, error) {
	if _, err := s.store.Inputs().FindByID(ctx, calcID); err != nil {
		return nil, err
	}
	return s.store.Outputs().FindByScenario(ctx, calcID, vol, spot)
}

// ColumnStats column 必须是 VolatilityShock / StockPriceShock / OptionPrice 之一
func (s *Service) ColumnStats(ctx context.Context, calcID int64, column string) (*ColumnStats, error) {
	if _, err := s.store.Inputs().FindByID(ctx, calcID); err != nil {
		return nil, err
	}
	return s.store.Outputs().ColumnStats(ctx, calcID, column)
}

func (s *Service) ByTimeToExpiry(ctx context.Context, t float64) ([]*Input, error) {
	return s.store.Inputs().FindByTimeToExpiry(ctx, t)
}

func (s *Service) ByVolRange(ctx context.Context, lower, upper float64) ([]*Input, error) {
	return s.store.Inputs().FindByVolRange(ctx, lower, upper)
}
