// 文件: pkg/calc/model.go
// 计算记录模型：一次计算 = 一条输入 + 若干条逐格输出

package calc

import (
	"time"

	"github.com/shopspring/decimal"

	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

// =============================================================================
// 输入
// =============================================================================

// Input BlackScholesInputs 表的一行
type Input struct {
	CalculationID int64           `gorm:"column:CalculationId;primaryKey;autoIncrement:false" json:"calculation_id,string"` // 雪花ID
	StockPrice    decimal.Decimal `gorm:"column:StockPrice;type:decimal(20,8)" json:"stock_price"`
	StrikePrice   decimal.Decimal `gorm:"column:StrikePrice;type:decimal(20,8)" json:"strike_price"`
	TimeToExpiry  float64         `gorm:"column:TimeToExpiry;index" json:"time_to_expiry"`
	RiskFreeRate  float64         `gorm:"column:RiskFreeRate" json:"risk_free_rate"`
	Volatility    float64         `gorm:"column:Volatility;index" json:"volatility"`
	CreatedAt     time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (Input) TableName() string {
	return "BlackScholesInputs"
}

// NewInput 由扁平输入记录构造
func NewInput(id int64, rec map[string]float64) (*Input, error) {
	p, err := options.ParamsFromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &Input{
		CalculationID: id,
		StockPrice:    decimal.NewFromFloat(p.SpotPrice),
		StrikePrice:   decimal.NewFromFloat(p.StrikePrice),
		TimeToExpiry:  p.TimeToExpiry,
		RiskFreeRate:  p.RiskFreeRate,
		Volatility:    p.Volatility,
		CreatedAt:     time.Now(),
	}, nil
}

// Params 还原为估值参数
func (in *Input) Params() options.Params {
	return options.Params{
		SpotPrice:    in.StockPrice.InexactFloat64(),
		StrikePrice:  in.StrikePrice.InexactFloat64(),
		TimeToExpiry: in.TimeToExpiry,
		RiskFreeRate: in.RiskFreeRate,
		Volatility:   in.Volatility,
	}
}

// =============================================================================
// 输出
// =============================================================================

// Output BlackScholesOutputs 表的一行
type Output struct {
	CalculationOutputID uint            `gorm:"column:CalculationOutputId;primaryKey;autoIncrement" json:"calculation_output_id"`
	CalculationID       int64           `gorm:"column:CalculationId;index:idx_calc_scenario,priority:1" json:"calculation_id,string"`
	VolatilityShock     float64         `gorm:"column:VolatilityShock;index:idx_calc_scenario,priority:2" json:"volatility_shock"`
	StockPriceShock     float64         `gorm:"column:StockPriceShock;index:idx_calc_scenario,priority:3" json:"stock_price_shock"`
	OptionPrice         decimal.Decimal `gorm:"column:OptionPrice;type:decimal(20,8)" json:"option_price"`
	IsCall              bool            `gorm:"column:IsCall" json:"is_call"`
}

func (Output) TableName() string {
	return "BlackScholesOutputs"
}

// NewOutput 从引擎输出行构造
func NewOutput(row scenario.OutputRow) *Output {
	return &Output{
		CalculationID:   row.CalculationID,
		VolatilityShock: row.VolatilityShock,
		StockPriceShock: row.StockPriceShock,
		OptionPrice:     decimal.NewFromFloat(row.OptionPrice),
		IsCall:          row.IsCall == 1,
	}
}

// Row 转回引擎的扁平行
func (o *Output) Row() scenario.OutputRow {
	isCall := 0
	if o.IsCall {
		isCall = 1
	}
	return scenario.OutputRow{
		CalculationID:   o.CalculationID,
		VolatilityShock: o.VolatilityShock,
		StockPriceShock: o.StockPriceShock,
		OptionPrice:     o.OptionPrice.InexactFloat64(),
		IsCall:          isCall,
	}
}

// ColumnStats 某一列的 min / max / avg / count
type ColumnStats struct {
	MinVal    float64 `gorm:"column:min_val" json:"min_val"`
	MaxVal    float64 `gorm:"column:max_val" json:"max_val"`
	AvgVal    float64 `gorm:"column:avg_val" json:"avg_val"`
	TotalRows int64   `gorm:"column:total_rows" json:"total_rows"`
}

// 允许做统计的列
const (
	ColumnVolatilityShock = "VolatilityShock"
	ColumnStockPriceShock = "StockPriceShock"
	ColumnOptionPrice     = "OptionPrice"
)

var statsColumns = map[string]struct{}{
	ColumnVolatilityShock: {},
	ColumnStockPriceShock: {},
	ColumnOptionPrice:     {},
}
