package options

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBS_Prices_ReferenceCase(t *testing.T) {
	// 经典参数：S=100,K=100,r=0.05,sigma=0.2,T=1
	v, err := Price(Params{SpotPrice: 100, StrikePrice: 100, TimeToExpiry: 1, RiskFreeRate: 0.05, Volatility: 0.2})
	require.NoError(t, err)

	require.InDelta(t, 10.450583572185565, v.CallPrice, 1e-9)
	require.InDelta(t, 5.573526022256971, v.PutPrice, 1e-9)
	require.InDelta(t, 0.6368306511756191, v.CallDelta, 1e-10)
	require.InDelta(t, 0.018762017345846895, v.Gamma, 1e-10)
	require.InDelta(t, 37.52403469169379, v.Vega, 1e-8)
	require.InDelta(t, -6.414027546438197, v.CallTheta, 1e-8)
	require.InDelta(t, -1.657880423934626, v.PutTheta, 1e-8)
}

func TestBS_Prices_DashboardCase(t *testing.T) {
	// S=50,K=40,T=2.5,r=0.04,sigma=0.4 (示例输入)
	v, err := Price(Params{SpotPrice: 50, StrikePrice: 40, TimeToExpiry: 2.5, RiskFreeRate: 0.04, Volatility: 0.4})
	require.NoError(t, err)

	require.InDelta(t, 18.905894192309773, v.CallPrice, 1e-9)
	require.InDelta(t, 5.099390913748152, v.PutPrice, 1e-9)
	require.InDelta(t, 0.795927541770189, v.CallDelta, 1e-10)
	require.InDelta(t, -0.20407245822981102, v.PutDelta, 1e-10)
	require.InDelta(t, 0.008960626417265848, v.Gamma, 1e-10)
}

func TestNormCDF_Reference(t *testing.T) {
	cases := []struct {
		x, want float64
	}{
		{0, 0.5},
		{1, 0.8413447460685429},
		{-1.96, 0.024997895148220435},
		{0.5, 0.6914624612740131},
		{-3, 0.0013498980316300957},
		{2.5, 0.9937903346742238},
	}
	for _, c := range cases {
		require.InDelta(t, c.want, normCDF(c.x), 1e-12, "x=%v", c.x)
	}

	// 对称性 N(x) + N(-x) = 1
	for x := -6.0; x <= 6.0; x += 0.25 {
		require.InDelta(t, 1.0, normCDF(x)+normCDF(-x), 1e-14, "x=%v", x)
	}
	require.InDelta(t, 1/math.Sqrt(2*math.Pi), normPDF(0), 1e-15)
}

func TestBS_Properties(t *testing.T) {
	var grid []Params
	for _, S := range []float64{5, 40, 50, 100, 250} {
		for _, K := range []float64{10, 40, 100} {
			for _, T := range []float64{0.01, 0.5, 2.5} {
				for _, r := range []float64{-0.01, 0, 0.04, 0.5} {
					for _, sigma := range []float64{0.05, 0.4, 1.5} {
						grid = append(grid, Params{SpotPrice: S, StrikePrice: K, TimeToExpiry: T, RiskFreeRate: r, Volatility: sigma})
					}
				}
			}
		}
	}

	for _, p := range grid {
		v, err := Price(p)
		require.NoError(t, err)

		discK := p.StrikePrice * math.Exp(-p.RiskFreeRate*p.TimeToExpiry)

		// 无套利下界
		require.GreaterOrEqual(t, v.CallPrice, math.Max(0, p.SpotPrice-discK)-1e-9, "%+v", p)
		require.GreaterOrEqual(t, v.PutPrice, math.Max(0, discK-p.SpotPrice)-1e-9, "%+v", p)

		// Put-Call Parity: C - P = S - K*e^{-rT}
		require.InDelta(t, p.SpotPrice-discK, v.CallPrice-v.PutPrice, 1e-6, "%+v", p)

		require.InDelta(t, 1.0, v.CallDelta-v.PutDelta, 1e-12)
		require.GreaterOrEqual(t, v.CallDelta, 0.0)
		require.LessOrEqual(t, v.CallDelta, 1.0)
		require.GreaterOrEqual(t, v.Gamma, 0.0)
		require.False(t, math.IsNaN(v.Gamma))
	}
}

func TestBS_InvalidInputs(t *testing.T) {
	base := Params{SpotPrice: 100, StrikePrice: 100, TimeToExpiry: 1, RiskFreeRate: 0.05, Volatility: 0.2}

	cases := []struct {
		name  string
		p     Params
		field string
	}{
		{"zero vol", base.WithVolatility(0), FieldVolatility},
		{"negative vol", base.WithVolatility(-0.1), FieldVolatility},
		{"zero T", Params{SpotPrice: 100, StrikePrice: 100, TimeToExpiry: 0, Volatility: 0.2}, FieldTimeToExpiry},
		{"negative T", Params{SpotPrice: 100, StrikePrice: 100, TimeToExpiry: -1, Volatility: 0.2}, FieldTimeToExpiry},
		{"negative S", base.WithSpot(-1), FieldStockPrice},
		{"zero K", Params{SpotPrice: 100, StrikePrice: 0, TimeToExpiry: 1, Volatility: 0.2}, FieldStrikePrice},
		{"NaN rate", Params{SpotPrice: 100, StrikePrice: 100, TimeToExpiry: 1, RiskFreeRate: math.NaN(), Volatility: 0.2}, FieldRiskFreeRate},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Price(c.p)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidParameter))

			var ipe *InvalidParameterError
			require.True(t, errors.As(err, &ipe))
			require.Equal(t, c.field, ipe.Field)
			require.Contains(t, err.Error(), c.field)
		})
	}
}

func TestParamsFromRecord(t *testing.T) {
	rec := map[string]float64{
		"StockPrice":   50,
		"StrikePrice":  40,
		"TimeToExpiry": 2.5,
		"RiskFreeRate": 0.04,
		"Volatility":   0.4,
	}

	p, err := ParamsFromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, Params{SpotPrice: 50, StrikePrice: 40, TimeToExpiry: 2.5, RiskFreeRate: 0.04, Volatility: 0.4}, p)
	require.Equal(t, rec, p.Record())

	delete(rec, "Volatility")
	_, err = ParamsFromRecord(rec)
	var mfe *MissingFieldError
	require.True(t, errors.As(err, &mfe))
	require.Equal(t, "Volatility", mfe.Field)
	require.True(t, errors.Is(err, ErrMissingField))
}
