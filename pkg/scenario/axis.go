// 文件: pkg/scenario/axis.go
package scenario

import (
	"math"

	"bspnl.com/pkg/options"
)

// 轴名称，用于错误信息
const (
	AxisSpot = "spot_axis"
	AxisVol  = "vol_axis"
)

// 默认冲击幅度：标的 ±30%，波动率 ±50%
const (
	DefaultSpotSpread = 0.3
	DefaultVolSpread  = 0.5
	DefaultResolution = 10
)

// ValidateAxis 轴必须非空、有限且严格递增
func ValidateAxis(name string, axis []float64) error {
	if len(axis) == 0 {
		return &options.InvalidRangeError{Axis: name, Reason: "axis is empty"}
	}
	for i, v := range axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &options.InvalidRangeError{Axis: name, Reason: "axis contains a non-finite value"}
		}
		if i > 0 && v <= axis[i-1] {
			return &options.InvalidRangeError{Axis: name, Reason: "axis must be strictly ascending"}
		}
	}
	return nil
}

// Linspace 在 [min, max] 上生成 n 个等距点 (含两端)。
// n == 1 时返回区间中点，AxesAround 的单点轴因此落在入场值上。
func Linspace(name string, min, max float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, &options.InvalidRangeError{Axis: name, Reason: "resolution must be >= 1"}
	}
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return nil, &options.InvalidRangeError{Axis: name, Reason: "bounds must be finite"}
	}
	if n == 1 {
		if max < min {
			return nil, &options.InvalidRangeError{Axis: name, Reason: "max must not be less than min"}
		}
		return []float64{min + (max-min)/2}, nil
	}
	if max <= min {
		return nil, &options.InvalidRangeError{Axis: name, Reason: "max must be greater than min"}
	}

	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	// 避免累计误差，末端精确等于 max
	out[n-1] = max
	return out, nil
}

// AxesAround 以入场参数为中心生成默认情景轴：
// 标的 [S*(1-spotSpread), S*(1+spotSpread)]，波动率 [sigma*(1-volSpread), sigma*(1+volSpread)]
func AxesAround(entry options.Params, spotSpread, volSpread float64, n int) (spotAxis, volAxis []float64, err error) {
	spotAxis, err = Linspace(AxisSpot, entry.SpotPrice*(1-spotSpread), entry.SpotPrice*(1+spotSpread), n)
	if err != nil {
		return nil, nil, err
	}
	volAxis, err = Linspace(AxisVol, entry.Volatility*(1-volSpread), entry.Volatility*(1+volSpread), n)
	if err != nil {
		return nil, nil, err
	}
	return spotAxis, volAxis, nil
}
