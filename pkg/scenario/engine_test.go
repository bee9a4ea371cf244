package scenario

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"bspnl.com/pkg/options"
)

var entry = options.Params{SpotPrice: 50, StrikePrice: 40, TimeToExpiry: 2.5, RiskFreeRate: 0.04, Volatility: 0.4}

func TestComputeEntryPrices(t *testing.T) {
	ep, err := ComputeEntryPrices(entry)
	require.NoError(t, err)
	require.InDelta(t, 18.905894192309773, ep.CallEntry, 1e-9)
	require.InDelta(t, 5.099390913748152, ep.PutEntry, 1e-9)

	_, err = ComputeEntryPrices(entry.WithVolatility(0))
	require.ErrorIs(t, err, options.ErrInvalidParameter)
}

func TestComputePnL(t *testing.T) {
	current := options.Params{SpotPrice: 45, StrikePrice: 40, TimeToExpiry: 2.0, RiskFreeRate: 0.04, Volatility: 0.35}

	pnl, err := ComputePnL(current, entry)
	require.NoError(t, err)

	// 标的下跌、时间流逝、波动率下降 → call 亏损
	require.Less(t, pnl.CallPnL, 0.0)
	require.False(t, math.IsInf(pnl.CallPnL, 0) || math.IsNaN(pnl.CallPnL))
	require.InDelta(t, -6.245797848220171, pnl.CallPnL, 1e-9)
	require.InDelta(t, -0.5146407141931242, pnl.PutPnL, 1e-9)

	// 相同参数 PnL 为 0
	zero, err := ComputePnL(entry, entry)
	require.NoError(t, err)
	require.Equal(t, PnL{}, zero)
}

func TestComputePnL_PropagatesError(t *testing.T) {
	_, err := ComputePnL(entry.WithSpot(0), entry)
	var ipe *options.InvalidParameterError
	require.True(t, errors.As(err, &ipe))
	require.Equal(t, options.FieldStockPrice, ipe.Field)

	bad := entry
	bad.TimeToExpiry = 0
	_, err = ComputePnL(entry, bad)
	require.True(t, errors.As(err, &ipe))
	require.Equal(t, options.FieldTimeToExpiry, ipe.Field)
}

func TestBuildSurface_MatchesPointPnL(t *testing.T) {
	spotAxis := []float64{45, 50, 55}
	volAxis := []float64{0.3, 0.4}

	s, err := NewEngine(2).BuildSurface(context.Background(), entry, spotAxis, volAxis)
	require.NoError(t, err)

	require.Len(t, s.Call, len(volAxis))
	require.Len(t, s.Put, len(volAxis))
	for i := range volAxis {
		require.Len(t, s.Call[i], len(spotAxis))
		require.Len(t, s.Put[i], len(spotAxis))
	}
	require.Equal(t, spotAxis, s.SpotAxis)
	require.Equal(t, volAxis, s.VolAxis)

	// 每个格点与直接调用 ComputePnL 的结果一致
	for i, vol := range volAxis {
		for j, spot := range spotAxis {
			want, err := ComputePnL(entry.WithSpot(spot).WithVolatility(vol), entry)
			require.NoError(t, err)
			require.InDelta(t, want.CallPnL, s.Call[i][j], 1e-12)
			require.InDelta(t, want.PutPnL, s.Put[i][j], 1e-12)
		}
	}

	// (vol=0.4, spot=50) 即入场点
	require.InDelta(t, 0.0, s.Call[1][1], 1e-12)
	require.InDelta(t, 0.0, s.Put[1][1], 1e-12)
	require.InDelta(t, -6.121825153667807, s.Call[0][0], 1e-9)
	require.InDelta(t, 4.083492639160205, s.Call[1][2], 1e-9)
}

func TestBuildSurface_Shapes(t *testing.T) {
	e := NewEngine(0)
	for _, dims := range [][2]int{{1, 1}, {1, 7}, {5, 1}, {20, 13}} {
		spotAxis, err := Linspace(AxisSpot, 30, 70, dims[1])
		require.NoError(t, err)
		volAxis, err := Linspace(AxisVol, 0.1, 0.9, dims[0])
		require.NoError(t, err)

		s, err := e.BuildSurface(context.Background(), entry, spotAxis, volAxis)
		require.NoError(t, err)
		require.Equal(t, dims[0], s.Rows())
		require.Equal(t, dims[1], s.Cols())
		require.Len(t, s.Call, dims[0])
		require.Len(t, s.Call[0], dims[1])
	}
}

func TestBuildSurface_EmptyAxis(t *testing.T) {
	e := NewEngine(1)

	_, err := e.BuildSurface(context.Background(), entry, nil, []float64{0.2})
	var ire *options.InvalidRangeError
	require.True(t, errors.As(err, &ire))
	require.Equal(t, AxisSpot, ire.Axis)

	_, err = e.BuildSurface(context.Background(), entry, []float64{50}, []float64{})
	require.True(t, errors.As(err, &ire))
	require.Equal(t, AxisVol, ire.Axis)
	require.ErrorIs(t, err, options.ErrInvalidRange)
}

func TestBuildSurface_CellFailureCarriesCoordinates(t *testing.T) {
	// 波动率轴包含 0，该行所有格点都不合法
	_, err := NewEngine(4).BuildSurface(context.Background(), entry, []float64{45, 50}, []float64{0, 0.2})
	require.Error(t, err)

	var ce *CellError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, 0.0, ce.Vol)
	require.Contains(t, err.Error(), "vol=0")
	require.ErrorIs(t, err, options.ErrInvalidParameter)

	// 标的价为负
	_, err = NewEngine(1).BuildSurface(context.Background(), entry, []float64{-5, 50}, []float64{0.2, 0.3})
	require.True(t, errors.As(err, &ce))
	require.Equal(t, -5.0, ce.Spot)
}

func TestBuildSurface_InvalidEntry(t *testing.T) {
	_, err := NewEngine(1).BuildSurface(context.Background(), entry.WithVolatility(0), []float64{50}, []float64{0.2})
	require.ErrorIs(t, err, options.ErrInvalidParameter)

	var ce *CellError
	require.False(t, errors.As(err, &ce))
}

func TestBuildSurface_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(1).BuildSurface(ctx, entry, []float64{45, 50}, []float64{0.2, 0.3})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildSurface_Deterministic(t *testing.T) {
	spotAxis, volAxis, err := AxesAround(entry, DefaultSpotSpread, DefaultVolSpread, 15)
	require.NoError(t, err)

	a, err := NewEngine(1).BuildSurface(context.Background(), entry, spotAxis, volAxis)
	require.NoError(t, err)
	b, err := NewEngine(8).BuildSurface(context.Background(), entry, spotAxis, volAxis)
	require.NoError(t, err)

	require.Equal(t, a.Call, b.Call)
	require.Equal(t, a.Put, b.Put)
}
