// 文件: pkg/options/model.go
package options

import (
	"encoding/json"
	"math"
)

// 持久化记录中的字段名 (与 BlackScholesInputs 表列名一致)
const (
	FieldStockPrice   = "StockPrice"
	FieldStrikePrice  = "StrikePrice"
	FieldTimeToExpiry = "TimeToExpiry"
	FieldRiskFreeRate = "RiskFreeRate"
	FieldVolatility   = "Volatility"
)

// Params 是一次估值的全部输入。
// 值类型，调用方每次估值构造一份；情景冲击通过 WithSpot / WithVolatility 派生副本。
type Params struct {
	SpotPrice    float64 `json:"spot_price"`     // S: 标的现价
	StrikePrice  float64 `json:"strike_price"`   // K: 执行价
	TimeToExpiry float64 `json:"time_to_expiry"` // T: 剩余期限 (年)
	RiskFreeRate float64 `json:"risk_free_rate"` // r: 无风险利率 (连续复利, 可为负)
	Volatility   float64 `json:"volatility"`     // sigma: 年化波动率
}

// UnmarshalJSON 五个字段都必须出现，缺失时返回 *MissingFieldError (字段名为 JSON 键名)
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst *float64
	}{
		{"spot_price", &p.SpotPrice},
		{"strike_price", &p.StrikePrice},
		{"time_to_expiry", &p.TimeToExpiry},
		{"risk_free_rate", &p.RiskFreeRate},
		{"volatility", &p.Volatility},
	}
	for _, f := range fields {
		v := raw[f.key]
		if v == nil {
			return &MissingFieldError{Field: f.key}
		}
		*f.dst = *v
	}
	return nil
}

// WithSpot 返回替换了标的价格的副本
func (p Params) WithSpot(spot float64) Params {
	p.SpotPrice = spot
	return p
}

// WithVolatility 返回替换了波动率的副本
func (p Params) WithVolatility(vol float64) Params {
	p.Volatility = vol
	return p
}

// Validate 检查定价前置条件。
// 返回的错误指出第一个违规字段。
func (p Params) Validate() error {
	checks := []struct {
		field    string
		value    float64
		positive bool
	}{
		{FieldStockPrice, p.SpotPrice, true},
		{FieldStrikePrice, p.StrikePrice, true},
		{FieldTimeToExpiry, p.TimeToExpiry, true},
		{FieldRiskFreeRate, p.RiskFreeRate, false},
		{FieldVolatility, p.Volatility, true},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &InvalidParameterError{Field: c.field, Value: c.value, Reason: "must be finite"}
		}
		if c.positive && c.value <= 0 {
			return &InvalidParameterError{Field: c.field, Value: c.value, Reason: "must be > 0"}
		}
	}
	return nil
}

// Record 把参数摊平成一条 "input" 记录
func (p Params) Record() map[string]float64 {
	return map[string]float64{
		FieldStockPrice:   p.SpotPrice,
		FieldStrikePrice:  p.StrikePrice,
		FieldTimeToExpiry: p.TimeToExpiry,
		FieldRiskFreeRate: p.RiskFreeRate,
		FieldVolatility:   p.Volatility,
	}
}

// ParamsFromRecord 从扁平记录读取参数。
// 只检查字段是否存在，取值约束留给 Price。
func ParamsFromRecord(rec map[string]float64) (Params, error) {
	var p Params
	fields := []struct {
		name string
		dst  *float64
	}{
		{FieldStockPrice, &p.SpotPrice},
		{FieldStrikePrice, &p.StrikePrice},
		{FieldTimeToExpiry, &p.TimeToExpiry},
		{FieldRiskFreeRate, &p.RiskFreeRate},
		{FieldVolatility, &p.Volatility},
	}
	for _, f := range fields {
		v, ok := rec[f.name]
		if !ok {
			return Params{}, &MissingFieldError{Field: f.name}
		}
		*f.dst = v
	}
	return p, nil
}

// Valuation 一次估值的输出。Gamma / Vega 对 call 和 put 相同。
type Valuation struct {
	CallPrice float64 `json:"call_price"`
	PutPrice  float64 `json:"put_price"`
	CallDelta float64 `json:"call_delta"`
	PutDelta  float64 `json:"put_delta"`
	Gamma     float64 `json:"gamma"`

	Vega      float64 `json:"vega"`
	CallTheta float64 `json:"call_theta"`
	PutTheta  float64 `json:"put_theta"`
}
