// 文件: pkg/options/bs.go
package options

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

/*
欧式期权 (无分红) 的 Black-Scholes 闭式解:

	d1   = [ln(S/K) + (r + sigma^2/2)T] / (sigma*sqrt(T))
	d2   = d1 - sigma*sqrt(T)
	Call = S*N(d1) - K*e^{-rT}*N(d2)
	Put  = K*e^{-rT}*N(-d2) - S*N(-d1)

Greeks:

Delta: Call 为 N(d1)，Put 为 N(d1)-1，两者之差恒为 1。

Gamma: n(d1) / (S*sigma*sqrt(T))，Call 与 Put 相同。

Vega: S*n(d1)*sqrt(T)，Call 与 Put 相同。

Theta: 按年计的时间衰减。
*/

// Price 计算一组参数下的 Call/Put 价格和 Greeks。
// 纯函数：无 I/O，相同输入得到相同输出。
// 参数不合法时返回 *InvalidParameterError，不会出现除零或 NaN。
func Price(p Params) (Valuation, error) {
	if err := p.Validate(); err != nil {
		return Valuation{}, err
	}

	S, K, r, sigma, T := p.SpotPrice, p.StrikePrice, p.RiskFreeRate, p.Volatility, p.TimeToExpiry

	sqrtT := math.Sqrt(T)
	d1 := calcD1(S, K, r, sigma, T)
	d2 := d1 - sigma*sqrtT

	// 贴现后的执行价
	discK := K * math.Exp(-r*T)

	nd1 := normCDF(d1)
	pdf := normPDF(d1)

	// 公共的时间衰减项
	decay := -S * pdf * sigma / (2 * sqrtT)

	return Valuation{
		CallPrice: S*nd1 - discK*normCDF(d2),
		PutPrice:  discK*normCDF(-d2) - S*normCDF(-d1),
		CallDelta: nd1,
		PutDelta:  nd1 - 1,
		Gamma:     pdf / (S * sigma * sqrtT),
		Vega:      S * pdf * sqrtT,
		CallTheta: decay - r*discK*normCDF(d2),
		PutTheta:  decay + r*discK*normCDF(-d2),
	}, nil
}

// calcD1 计算 Black-Scholes 公式中的 d1
func calcD1(S, K, r, sigma, T float64) float64 {
	return (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
}

// normCDF 标准正态分布 CDF。
// distuv 通过 math.Erfc 计算，左尾不会因 1+erf 相消而丢精度。
func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// normPDF 标准正态分布 PDF
func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
