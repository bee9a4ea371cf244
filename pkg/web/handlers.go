// 文件: pkg/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/gorilla/mux"

	"bspnl.com/pkg/cache"
	"bspnl.com/pkg/calc"
	"bspnl.com/pkg/config"
	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

var errBadRequest = errors.New("bad request")

// =============================================================================
// 响应
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 按错误类型映射状态码
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, options.ErrMissingField),
		errors.Is(err, options.ErrInvalidParameter),
		errors.Is(err, options.ErrInvalidRange),
		errors.Is(err, calc.ErrInvalidColumn):
		status = http.StatusBadRequest
	case errors.Is(err, calc.ErrCalculationNotFound):
		status = http.StatusNotFound
	default:
		s.log.WithError(err).Error("http handler")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody 解码请求体，options 的字段错误保留原类型
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	return nil
}

// =============================================================================
// 估值
// =============================================================================

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query(), s.limits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := options.Price(q.Entry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry":     q.Entry,
		"valuation": v,
	})
}

type pnlRequest struct {
	Entry   *options.Params `json:"entry"`
	Current *options.Params `json:"current"`
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	var req pnlRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	switch {
	case req.Entry == nil:
		s.writeError(w, &options.MissingFieldError{Field: "entry"})
		return
	case req.Current == nil:
		s.writeError(w, &options.MissingFieldError{Field: "current"})
		return
	}
	ep, err := scenario.ComputeEntryPrices(*req.Entry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pnl, err := scenario.ComputePnL(*req.Current, *req.Entry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_prices": ep,
		"pnl":          pnl,
	})
}

// =============================================================================
// 曲面
// =============================================================================

type surfaceResponse struct {
	Surface *scenario.Surface     `json:"surface"`
	Stats   scenario.SurfaceStats `json:"stats"`
	Cached  bool                  `json:"cached"`
}

// surface 先查缓存，未命中再构建。缓存故障只记日志。
func (s *Server) surface(r *http.Request, req calc.CalculationRequest) (*scenario.Surface, bool, error) {
	spotAxis, volAxis, err := req.Axes()
	if err != nil {
		return nil, false, err
	}

	var key string
	if s.cache != nil {
		key = cache.SurfaceKey(req.Entry, spotAxis, volAxis)
		hit, err := s.cache.Get(r.Context(), key)
		if err != nil {
			s.log.WithError(err).Warn("surface cache get")
		} else if hit != nil {
			return hit, true, nil
		}
	}

	surface, err := s.engine.BuildSurface(r.Context(), req.Entry, spotAxis, volAxis)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(r.Context(), key, surface); err != nil {
			s.log.WithError(err).Warn("surface cache set")
		}
	}
	return surface, false, nil
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	var req calc.CalculationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	req.Normalize(s.limits)

	surface, cached, err := s.surface(r, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := surface.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, surfaceResponse{Surface: surface, Stats: st, Cached: cached})
}

func (s *Server) handleSurfaceCSV(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query(), s.limits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	surface, _, err := s.surface(r, q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := scenario.OutputRows(0, surface)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="surface.csv"`)
	if err := gocsv.Marshal(rows, w); err != nil {
		s.log.WithError(err).Error("write surface csv")
	}
}

// =============================================================================
// 计算记录
// =============================================================================

func (s *Server) handleSaveCalculation(w http.ResponseWriter, r *http.Request) {
	var req calc.CalculationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	req.Normalize(s.limits)

	surface, _, err := s.surface(r, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	calcID, err := s.service.Save(r.Context(), surface)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// 雪花 ID 超过 JS 安全整数，按字符串返回
	writeJSON(w, http.StatusCreated, map[string]string{
		"calculation_id": strconv.FormatInt(calcID, 10),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}
	inputs, err := s.service.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inputs)
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	calcID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	side := r.URL.Query().Get("side")
	switch side {
	case "", "call", "put":
	default:
		s.writeError(w, fmt.Errorf("%w: side must be call or put", errBadRequest))
		return
	}

	calculation, err := s.service.Get(r.Context(), calcID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outputs := calculation.Outputs
	if side != "" {
		if outputs, err = s.service.Outputs(r.Context(), calcID, side); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"input":   calculation.Input,
		"outputs": outputs,
	})
}

func (s *Server) handleDeleteCalculation(w http.ResponseWriter, r *http.Request) {
	calcID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.Delete(r.Context(), calcID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch 按 t 或 [vol_min, vol_max] 查找历史输入，两者只能给一个
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hasT := q.Get("t") != ""
	hasVol := q.Get("vol_min") != "" || q.Get("vol_max") != ""

	var (
		inputs []*calc.Input
		err    error
	)
	switch {
	case hasT && !hasVol:
		var t float64
		if t, err = queryFloat(q, "t"); err == nil {
			inputs, err = s.service.ByTimeToExpiry(r.Context(), t)
		}
	case hasVol && !hasT:
		var lower, upper float64
		if lower, err = queryFloat(q, "vol_min"); err == nil {
			if upper, err = queryFloat(q, "vol_max"); err == nil {
				inputs, err = s.service.ByVolRange(r.Context(), lower, upper)
			}
		}
	default:
		err = fmt.Errorf("%w: give either t or vol_min and vol_max", errBadRequest)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inputs)
}

// handleScenario 单个格点: ?vol=&spot=
func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	calcID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	q := r.URL.Query()
	vol, err := queryFloat(q, "vol")
	if err != nil {
		s.writeError(w, err)
		return
	}
	spot, err := queryFloat(q, "spot")
	if err != nil {
		s.writeError(w, err)
		return
	}
	outputs, err := s.service.Scenario(r.Context(), calcID, vol, spot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

// handleColumnStats ?column=VolatilityShock|StockPriceShock|OptionPrice
func (s *Server) handleColumnStats(w http.ResponseWriter, r *http.Request) {
	calcID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	column := r.URL.Query().Get("column")
	if column == "" {
		s.writeError(w, fmt.Errorf("%w: column is required", errBadRequest))
		return
	}
	st, err := s.service.ColumnStats(r.Context(), calcID, column)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid calculation id", errBadRequest)
	}
	return id, nil
}

// =============================================================================
// 参数
// =============================================================================

// queryFloat 必填的浮点查询参数
func queryFloat(q url.Values, key string) (float64, error) {
	v := q.Get(key)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, key)
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", errBadRequest, key)
	}
	return x, nil
}

// 看板默认入场参数
var defaultEntry = options.Params{
	SpotPrice:    100,
	StrikePrice:  100,
	TimeToExpiry: 1,
	RiskFreeRate: 0.05,
	Volatility:   0.25,
}

// parseQuery 读取 spot, strike, t, r, vol, spot_min, spot_max, vol_min, vol_max, res
func parseQuery(q url.Values, limits config.EngineConfig) (calc.CalculationRequest, error) {
	req := calc.CalculationRequest{Entry: defaultEntry}

	fields := []struct {
		key string
		dst *float64
	}{
		{"spot", &req.Entry.SpotPrice},
		{"strike", &req.Entry.StrikePrice},
		{"t", &req.Entry.TimeToExpiry},
		{"r", &req.Entry.RiskFreeRate},
		{"vol", &req.Entry.Volatility},
		{"spot_min", &req.SpotMin},
		{"spot_max", &req.SpotMax},
		{"vol_min", &req.VolMin},
		{"vol_max", &req.VolMax},
	}
	for _, f := range fields {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: %s is not a number", errBadRequest, f.key)
		}
		*f.dst = x
	}
	if v := q.Get("res"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: res is not an integer", errBadRequest)
		}
		req.Resolution = n
	}

	req.Normalize(limits)
	return req, nil
}
