// 文件: pkg/scenario/records.go
// 持久化层需要的两种扁平结构：一条输入记录 + 一批逐格输出记录

package scenario

import (
	"bspnl.com/pkg/options"
)

// OutputRow 每个格点每个方向 (call/put) 一行
type OutputRow struct {
	CalculationID   int64   `json:"CalculationId" csv:"CalculationId"`
	VolatilityShock float64 `json:"VolatilityShock" csv:"VolatilityShock"`
	StockPriceShock float64 `json:"StockPriceShock" csv:"StockPriceShock"`
	OptionPrice     float64 `json:"OptionPrice" csv:"OptionPrice"`
	IsCall          int     `json:"IsCall" csv:"IsCall"` // 1=call, 0=put
}

// InputRecord 入场参数的输入记录
func InputRecord(entry options.Params) map[string]float64 {
	return entry.Record()
}

// OutputRows 展开曲面为输出记录。
// OptionPrice 是冲击后参数下的期权价格 (不是 PnL)。
// 顺序：波动率优先，其次标的价，每格先 call 后 put。
func OutputRows(calcID int64, s *Surface) ([]OutputRow, error) {
	rows := make([]OutputRow, 0, 2*s.Rows()*s.Cols())
	for _, vol := range s.VolAxis {
		for _, spot := range s.SpotAxis {
			v, err := options.Price(s.Entry.WithSpot(spot).WithVolatility(vol))
			if err != nil {
				return nil, &CellError{Vol: vol, Spot: spot, Err: err}
			}
			rows = append(rows,
				OutputRow{CalculationID: calcID, VolatilityShock: vol, StockPriceShock: spot, OptionPrice: v.CallPrice, IsCall: 1},
				OutputRow{CalculationID: calcID, VolatilityShock: vol, StockPriceShock: spot, OptionPrice: v.PutPrice, IsCall: 0},
			)
		}
	}
	return rows, nil
}

// Map 转成列名到值的映射
func (r OutputRow) Map() map[string]any {
	return map[string]any{
		"CalculationId":   r.CalculationID,
		"VolatilityShock": r.VolatilityShock,
		"StockPriceShock": r.StockPriceShock,
		"OptionPrice":     r.OptionPrice,
		"IsCall":          r.IsCall,
	}
}
