// 文件: pkg/web/dashboard.go
// HTML 看板：入场参数表单、call/put 价格、希腊值、两张 PnL 热力图

package web

import (
	"embed"
	"fmt"
	"html/template"
	"math"
	"net/http"

	"bspnl.com/pkg/calc"
	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

type heatCell struct {
	Text  string
	Style template.CSS
}

type heatRow struct {
	Vol   string
	Cells []heatCell
}

type heatmap struct {
	Title string
	Spots []string
	Rows  []heatRow
	Stats scenario.Stats
}

type dashboardView struct {
	Query     calc.CalculationRequest
	Valuation options.Valuation
	Call      heatmap
	Put       heatmap
	Cached    bool
	Error     string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{}

	q, err := parseQuery(r.URL.Query(), s.limits)
	view.Query = q
	if err == nil {
		err = s.fillDashboard(r, &view)
	}
	status := http.StatusOK
	if err != nil {
		view.Error = err.Error()
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := dashboardTmpl.Execute(w, view); err != nil {
		s.log.WithError(err).Error("render dashboard")
	}
}

func (s *Server) fillDashboard(r *http.Request, view *dashboardView) error {
	surface, cached, err := s.surface(r, view.Query)
	if err != nil {
		return err
	}
	st, err := surface.Stats()
	if err != nil {
		return err
	}
	view.Valuation = surface.Value
	view.Cached = cached
	view.Call = newHeatmap("Call PnL", surface.SpotAxis, surface.VolAxis, surface.Call, st.Call)
	view.Put = newHeatmap("Put PnL", surface.SpotAxis, surface.VolAxis, surface.Put, st.Put)
	return nil
}

// newHeatmap 以 0 为中心着色：亏损红、盈利绿，深浅按 |v| / max|v|
func newHeatmap(title string, spotAxis, volAxis []float64, m [][]float64, st scenario.Stats) heatmap {
	hm := heatmap{Title: title, Stats: st}
	for _, spot := range spotAxis {
		hm.Spots = append(hm.Spots, fmt.Sprintf("%.2f", spot))
	}

	scale := math.Max(math.Abs(st.Max), math.Abs(st.Min))
	for i, vol := range volAxis {
		row := heatRow{Vol: fmt.Sprintf("%.2f", vol)}
		for _, v := range m[i] {
			row.Cells = append(row.Cells, heatCell{Text: fmt.Sprintf("%.2f", v), Style: cellStyle(v, scale)})
		}
		hm.Rows = append(hm.Rows, row)
	}
	return hm
}

func cellStyle(v, scale float64) template.CSS {
	if scale == 0 || v == 0 {
		return "background-color: rgb(245, 245, 245)"
	}
	alpha := 0.15 + 0.75*math.Abs(v)/scale
	if v > 0 {
		return template.CSS(fmt.Sprintf("background-color: rgba(46, 160, 67, %.2f)", alpha))
	}
	return template.CSS(fmt.Sprintf("background-color: rgba(218, 54, 51, %.2f)", alpha))
}
