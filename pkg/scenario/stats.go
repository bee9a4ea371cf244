// 文件: pkg/scenario/stats.go
package scenario

import (
	"github.com/montanaflynn/stats"
)

// Stats 曲面的汇总统计 (看板上的 Max / Min / Avg PnL)
type Stats struct {
	Max  float64 `json:"max"`
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
}

// SurfaceStats call / put 两个曲面各自的统计
type SurfaceStats struct {
	Call Stats `json:"call"`
	Put  Stats `json:"put"`
}

// Summarize 计算单个矩阵的统计值
func Summarize(m [][]float64) (Stats, error) {
	data := make(stats.Float64Data, 0, len(m)*rowLen(m))
	for _, row := range m {
		data = append(data, row...)
	}

	hi, err := data.Max()
	if err != nil {
		return Stats{}, err
	}
	lo, err := data.Min()
	if err != nil {
		return Stats{}, err
	}
	mean, err := data.Mean()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Max: hi, Min: lo, Mean: mean}, nil
}

// Stats 曲面统计
func (s *Surface) Stats() (SurfaceStats, error) {
	c, err := Summarize(s.Call)
	if err != nil {
		return SurfaceStats{}, err
	}
	p, err := Summarize(s.Put)
	if err != nil {
		return SurfaceStats{}, err
	}
	return SurfaceStats{Call: c, Put: p}, nil
}

func rowLen(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}
