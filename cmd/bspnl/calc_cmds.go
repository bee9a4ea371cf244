package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bspnl.com/pkg/calc"
	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

// =============================================================================
// 参数
// =============================================================================

// addParamsFlags 注册 spot/strike/t/r/vol，prefix 用于区分当前参数 (cur-)
func addParamsFlags(fs *pflag.FlagSet, p *options.Params, prefix string) {
	fs.Float64Var(&p.SpotPrice, prefix+"spot", 100, "underlying spot price")
	fs.Float64Var(&p.StrikePrice, prefix+"strike", 100, "strike price")
	fs.Float64Var(&p.TimeToExpiry, prefix+"t", 1, "time to expiry in years")
	fs.Float64Var(&p.RiskFreeRate, prefix+"r", 0.05, "annual risk-free rate")
	fs.Float64Var(&p.Volatility, prefix+"vol", 0.2, "annual volatility")
}

func f4(v float64) string { return fmt.Sprintf("%.4f", v) }

// =============================================================================
// price
// =============================================================================

func priceCmd() *cobra.Command {
	var p options.Params
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a European call and put with Greeks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := options.Price(p)
			if err != nil {
				return err
			}
			renderValuation(cmd.OutOrStdout(), v)
			return nil
		},
	}
	addParamsFlags(cmd.Flags(), &p, "")
	return cmd
}

func renderValuation(w io.Writer, v options.Valuation) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Price", "Delta", "Gamma", "Vega", "Theta"})
	table.Append([]string{"Call", f4(v.CallPrice), f4(v.CallDelta), f4(v.Gamma), f4(v.Vega), f4(v.CallTheta)})
	table.Append([]string{"Put", f4(v.PutPrice), f4(v.PutDelta), f4(v.Gamma), f4(v.Vega), f4(v.PutTheta)})
	table.Render()
}

// =============================================================================
// pnl
// =============================================================================

func pnlCmd() *cobra.Command {
	var entry, current options.Params
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "PnL of a position opened at the entry parameters, valued at current parameters",
		Long:  "Current parameters default to the entry parameters; override them with --cur-spot, --cur-t, --cur-vol, ...",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur := entry
			fs := cmd.Flags()
			if fs.Changed("cur-spot") {
				cur.SpotPrice = current.SpotPrice
			}
			if fs.Changed("cur-strike") {
				cur.StrikePrice = current.StrikePrice
			}
			if fs.Changed("cur-t") {
				cur.TimeToExpiry = current.TimeToExpiry
			}
			if fs.Changed("cur-r") {
				cur.RiskFreeRate = current.RiskFreeRate
			}
			if fs.Changed("cur-vol") {
				cur.Volatility = current.Volatility
			}

			ep, err := scenario.ComputeEntryPrices(entry)
			if err != nil {
				return err
			}
			pnl, err := scenario.ComputePnL(cur, entry)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"", "Entry", "Current", "PnL"})
			table.Append([]string{"Call", f4(ep.CallEntry), f4(ep.CallEntry + pnl.CallPnL), f4(pnl.CallPnL)})
			table.Append([]string{"Put", f4(ep.PutEntry), f4(ep.PutEntry + pnl.PutPnL), f4(pnl.PutPnL)})
			table.Render()
			return nil
		},
	}
	addParamsFlags(cmd.Flags(), &entry, "")
	addParamsFlags(cmd.Flags(), &current, "cur-")
	return cmd
}

// =============================================================================
// surface
// =============================================================================

func surfaceCmd() *cobra.Command {
	var (
		req     calc.CalculationRequest
		csvPath string
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "surface",
		Short: "Build call/put PnL surfaces over spot and volatility shocks",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			req.Normalize(a.cfg.Engine)
			spotAxis, volAxis, err := req.Axes()
			if err != nil {
				return err
			}

			ctx := context.Background()
			surface, err := scenario.NewEngine(a.cfg.Engine.Workers).BuildSurface(ctx, req.Entry, spotAxis, volAxis)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderValuation(out, surface.Value)
			st, err := surface.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "\nCall PnL")
			renderMatrix(out, surface.SpotAxis, surface.VolAxis, surface.Call)
			renderStats(out, st.Call)
			fmt.Fprintln(out, "\nPut PnL")
			renderMatrix(out, surface.SpotAxis, surface.VolAxis, surface.Put)
			renderStats(out, st.Put)

			if csvPath != "" {
				if err := writeCSV(csvPath, surface); err != nil {
					return err
				}
				fmt.Fprintf(out, "\noutput rows written to %s\n", csvPath)
			}

			if save {
				db, err := a.openDB()
				if err != nil {
					return err
				}
				svc, err := a.newService(db)
				if err != nil {
					return err
				}
				calcID, err := svc.Save(ctx, surface)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nsaved calculation %d\n", calcID)
			}
			return nil
		}),
	}

	fs := cmd.Flags()
	addParamsFlags(fs, &req.Entry, "")
	fs.Float64Var(&req.SpotMin, "spot-min", 0, "lowest spot shock (default spot*(1-spread))")
	fs.Float64Var(&req.SpotMax, "spot-max", 0, "highest spot shock (default spot*(1+spread))")
	fs.Float64Var(&req.VolMin, "vol-min", 0, "lowest volatility shock (default vol*(1-spread))")
	fs.Float64Var(&req.VolMax, "vol-max", 0, "highest volatility shock (default vol*(1+spread))")
	fs.IntVar(&req.Resolution, "res", 0, "points per axis (clamped to the configured range)")
	fs.StringVar(&csvPath, "csv", "", "write output rows to this CSV file")
	fs.BoolVar(&save, "save", false, "persist the calculation to MySQL")
	return cmd
}

func renderMatrix(w io.Writer, spotAxis, volAxis []float64, m [][]float64) {
	table := tablewriter.NewWriter(w)
	header := make([]string, 0, len(spotAxis)+1)
	header = append(header, "vol \\ spot")
	for _, s := range spotAxis {
		header = append(header, fmt.Sprintf("%.2f", s))
	}
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i, vol := range volAxis {
		row := make([]string, 0, len(spotAxis)+1)
		row = append(row, fmt.Sprintf("%.4f", vol))
		for _, v := range m[i] {
			row = append(row, fmt.Sprintf("%.2f", v))
		}
		table.Append(row)
	}
	table.Render()
}

func renderStats(w io.Writer, st scenario.Stats) {
	fmt.Fprintf(w, "max %.4f  min %.4f  avg %.4f\n", st.Max, st.Min, st.Mean)
}

func writeCSV(path string, s *scenario.Surface) error {
	rows, err := scenario.OutputRows(0, s)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
