// 文件: pkg/scenario/engine.go
// 情景引擎：入场价、单点 PnL、(波动率 x 标的价) PnL 曲面

package scenario

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"bspnl.com/pkg/options"
)

// =============================================================================
// 单点计算
// =============================================================================

// EntryPrices 入场时的期权价格
type EntryPrices struct {
	CallEntry float64 `json:"call_entry"`
	PutEntry  float64 `json:"put_entry"`
}

// PnL 当前价格相对入场价格的盈亏
type PnL struct {
	CallPnL float64 `json:"call_pnl"`
	PutPnL  float64 `json:"put_pnl"`
}

// ComputeEntryPrices 对入场参数估值并重命名字段
func ComputeEntryPrices(entry options.Params) (EntryPrices, error) {
	v, err := options.Price(entry)
	if err != nil {
		return EntryPrices{}, err
	}
	return EntryPrices{CallEntry: v.CallPrice, PutEntry: v.PutPrice}, nil
}

// ComputePnL 分别完整估值 entry 和 current，返回价差。
// 任一估值失败则原样返回错误，不返回部分结果。
func ComputePnL(current, entry options.Params) (PnL, error) {
	ep, err := ComputeEntryPrices(entry)
	if err != nil {
		return PnL{}, err
	}
	cur, err := options.Price(current)
	if err != nil {
		return PnL{}, err
	}
	return PnL{
		CallPnL: cur.CallPrice - ep.CallEntry,
		PutPnL:  cur.PutPrice - ep.PutEntry,
	}, nil
}

// =============================================================================
// 曲面
// =============================================================================

// Surface PnL 曲面。
// Call[i][j] / Put[i][j] 对应 VolAxis[i]、SpotAxis[j]。
type Surface struct {
	Entry    options.Params    `json:"entry"`
	Value    options.Valuation `json:"valuation"`
	SpotAxis []float64         `json:"spot_axis"`
	VolAxis  []float64         `json:"vol_axis"`
	Call     [][]float64       `json:"call"`
	Put      [][]float64       `json:"put"`
}

// Rows 行数 (波动率采样数)
func (s *Surface) Rows() int { return len(s.VolAxis) }

// Cols 列数 (标的价采样数)
func (s *Surface) Cols() int { return len(s.SpotAxis) }

// CellError 某个格点估值失败，带上坐标
type CellError struct {
	Vol  float64
	Spot float64
	Err  error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("scenario cell (vol=%v, spot=%v): %v", e.Vol, e.Spot, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// Engine 曲面构建器。无状态，可被多个 goroutine 共享。
type Engine struct {
	workers int
}

// NewEngine 创建引擎
// workers: 并行计算的行数上限，<=0 时取 GOMAXPROCS
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{workers: workers}
}

// Workers 并行度
func (e *Engine) Workers() int { return e.workers }

// BuildSurface 对每个 (vol, spot) 格点冲击入场参数并计算 PnL。
//
// 只冲击 Volatility 和 SpotPrice，其余参数保持入场值。
// 入场估值在整个曲面内不变，只计算一次。
// 每一行 (同一波动率) 是一个独立任务，写入互不重叠的切片，无需加锁。
// 任一格点失败则整体失败，返回 *CellError，不返回半成品矩阵。
func (e *Engine) BuildSurface(ctx context.Context, entry options.Params, spotAxis, volAxis []float64) (*Surface, error) {
	if err := ValidateAxis(AxisSpot, spotAxis); err != nil {
		return nil, err
	}
	if err := ValidateAxis(AxisVol, volAxis); err != nil {
		return nil, err
	}

	ev, err := options.Price(entry)
	if err != nil {
		return nil, err
	}

	call := newMatrix(len(volAxis), len(spotAxis))
	put := newMatrix(len(volAxis), len(spotAxis))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, vol := range volAxis {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rowCall, rowPut := call[i], put[i]
			for j, spot := range spotAxis {
				shocked := entry.WithSpot(spot).WithVolatility(vol)
				v, err := options.Price(shocked)
				if err != nil {
					return &CellError{Vol: vol, Spot: spot, Err: err}
				}
				rowCall[j] = v.CallPrice - ev.CallPrice
				rowPut[j] = v.PutPrice - ev.PutPrice
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Surface{
		Entry:    entry,
		Value:    ev,
		SpotAxis: append([]float64(nil), spotAxis...),
		VolAxis:  append([]float64(nil), volAxis...),
		Call:     call,
		Put:      put,
	}, nil
}

// newMatrix 一次分配底层数组，再切成 rows 行
func newMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}
