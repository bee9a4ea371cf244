// 文件: pkg/calc/memory_repo.go
// 内存仓库：未配置数据库时 serve 使用，也用于测试

package calc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
)

// MemoryInputRepository 内存版 InputRepository
type MemoryInputRepository struct {
	mu     sync.RWMutex
	inputs map[int64]*Input
}

func NewMemoryInputRepository() *MemoryInputRepository {
	return &MemoryInputRepository{inputs: make(map[int64]*Input)}
}

// MemoryOutputRepository 内存版 OutputRepository
type MemoryOutputRepository struct {
	mu      sync.RWMutex
	outputs []*Output
	nextID  uint
}

func NewMemoryOutputRepository() *MemoryOutputRepository {
	return &MemoryOutputRepository{}
}

// MemoryStore 内存版 Store。
// 事务之间串行执行，失败时把两个仓库恢复到事务开始前的快照。
type MemoryStore struct {
	txMu    sync.Mutex
	inputs  *MemoryInputRepository
	outputs *MemoryOutputRepository
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inputs:  NewMemoryInputRepository(),
		outputs: NewMemoryOutputRepository(),
	}
}

func (s *MemoryStore) Inputs() InputRepository   { return s.inputs }
func (s *MemoryStore) Outputs() OutputRepository { return s.outputs }

func (s *MemoryStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	inputs := s.inputs.snapshot()
	outputs, nextID := s.outputs.snapshot()
	if err := fn(s); err != nil {
		s.inputs.restore(inputs)
		s.outputs.restore(outputs, nextID)
		return err
	}
	return nil
}

// =============================================================================
// 输入
// =============================================================================

func (m *MemoryInputRepository) snapshot() map[int64]*Input {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[int64]*Input, len(m.inputs))
	for id, in := range m.inputs {
		cp[id] = in
	}
	return cp
}

func (m *MemoryInputRepository) restore(inputs map[int64]*Input) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = inputs
}

func (m *MemoryInputRepository) Create(_ context.Context, in *Input) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.inputs[in.CalculationID] = &cp
	return nil
}

func (m *MemoryInputRepository) FindByID(_ context.Context, calcID int64) (*Input, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.inputs[calcID]
	if !ok {
		return nil, ErrCalculationNotFound
	}
	cp := *in
	return &cp, nil
}

func (m *MemoryInputRepository) ListRecent(_ context.Context, limit int) ([]*Input, error) {
	return m.filterInputs(func(*Input) bool { return true }, limit), nil
}

func (m *MemoryInputRepository) FindByTimeToExpiry(_ context.Context, t float64) ([]*Input, error) {
	return m.filterInputs(func(in *Input) bool { return in.TimeToExpiry == t }, 0), nil
}

func (m *MemoryInputRepository) FindByVolRange(_ context.Context, lower, upper float64) ([]*Input, error) {
	if lower > upper {
		lower, upper = upper, lower
	}
	return m.filterInputs(func(in *Input) bool {
		return in.Volatility >= lower && in.Volatility <= upper
	}, 0), nil
}

func (m *MemoryInputRepository) Delete(_ context.Context, calcID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inputs[calcID]; !ok {
		return false, nil
	}
	delete(m.inputs, calcID)
	return true, nil
}

// filterInputs 按创建时间倒序，limit<=0 表示不限
func (m *MemoryInputRepository) filterInputs(keep func(*Input) bool, limit int) []*Input {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Input, 0, len(m.inputs))
	for _, in := range m.inputs {
		if keep(in) {
			cp := *in
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CalculationID > out[j].CalculationID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// =============================================================================
// 输出
// =============================================================================

func (m *MemoryOutputRepository) snapshot() ([]*Output, uint) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Output(nil), m.outputs...), m.nextID
}

func (m *MemoryOutputRepository) restore(outputs []*Output, nextID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = outputs
	m.nextID = nextID
}

func (m *MemoryOutputRepository) CreateBatch(_ context.Context, rows []*Output) (int64, error) {
	if len(rows) == 0 {
		return 0, ErrEmptyBatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.nextID++
		row.CalculationOutputID = m.nextID
		cp := *row
		m.outputs = append(m.outputs, &cp)
	}
	return int64(len(rows)), nil
}

func (m *MemoryOutputRepository) FindByCalculation(_ context.Context, calcID int64) ([]*Output, error) {
	return m.filterOutputs(func(o *Output) bool { return o.CalculationID == calcID }), nil
}

func (m *MemoryOutputRepository) FindByScenario(_ context.Context, calcID int64, volShock, spotShock float64) ([]*Output, error) {
	return m.filterOutputs(func(o *Output) bool {
		return o.CalculationID == calcID && o.VolatilityShock == volShock && o.StockPriceShock == spotShock
	}), nil
}

func (m *MemoryOutputRepository) FindBySide(_ context.Context, calcID int64, isCall bool) ([]*Output, error) {
	return m.filterOutputs(func(o *Output) bool { return o.CalculationID == calcID && o.IsCall == isCall }), nil
}

func (m *MemoryOutputRepository) ColumnStats(ctx context.Context, calcID int64, column string) (*ColumnStats, error) {
	if _, ok := statsColumns[column]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, column)
	}
	rows, _ := m.FindByCalculation(ctx, calcID)
	if len(rows) == 0 {
		return &ColumnStats{}, nil
	}

	data := make(stats.Float64Data, len(rows))
	for i, o := range rows {
		switch column {
		case ColumnVolatilityShock:
			data[i] = o.VolatilityShock
		case ColumnStockPriceShock:
			data[i] = o.StockPriceShock
		case ColumnOptionPrice:
			data[i] = o.OptionPrice.InexactFloat64()
		}
	}
	lo, _ := data.Min()
	hi, _ := data.Max()
	avg, _ := data.Mean()
	return &ColumnStats{MinVal: lo, MaxVal: hi, AvgVal: avg, TotalRows: int64(len(rows))}, nil
}

func (m *MemoryOutputRepository) DeleteByCalculation(_ context.Context, calcID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.outputs[:0]
	var n int64
	for _, o := range m.outputs {
		if o.CalculationID == calcID {
			n++
			continue
		}
		kept = append(kept, o)
	}
	m.outputs = kept
	return n, nil
}

// filterOutputs 按写入顺序返回
func (m *MemoryOutputRepository) filterOutputs(keep func(*Output) bool) []*Output {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Output, 0)
	for _, o := range m.outputs {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}
