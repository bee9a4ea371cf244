// 文件: pkg/web/server.go
// 看板与 JSON API (gorilla/mux)

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bspnl.com/pkg/calc"
	"bspnl.com/pkg/config"
	"bspnl.com/pkg/scenario"
)

// SurfaceCache 曲面缓存 (cache.SurfaceCache)
type SurfaceCache interface {
	Get(ctx context.Context, key string) (*scenario.Surface, error)
	Set(ctx context.Context, key string, s *scenario.Surface) error
}

type Server struct {
	engine  *scenario.Engine
	service *calc.Service
	cache   SurfaceCache  // nil: 不缓存
	limits  config.EngineConfig
	log     logrus.FieldLogger
}

func NewServer(engine *scenario.Engine, service *calc.Service, cache SurfaceCache, limits config.EngineConfig, log logrus.FieldLogger) *Server {
	return &Server{
		engine:  engine,
		service: service,
		cache:   cache,
		limits:  limits,
		log:     log,
	}
}

// Router 注册全部路由
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	api.HandleFunc("/pnl", s.handlePnL).Methods(http.MethodPost)
	api.HandleFunc("/surface", s.handleSurface).Methods(http.MethodPost)
	api.HandleFunc("/surface.csv", s.handleSurfaceCSV).Methods(http.MethodGet)

	api.HandleFunc("/calculations", s.handleSaveCalculation).Methods(http.MethodPost)
	api.HandleFunc("/calculations", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/calculations/recent", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/calculations/{id:[0-9]+}/outputs", s.handleOutputs).Methods(http.MethodGet)
	api.HandleFunc("/calculations/{id:[0-9]+}/scenario", s.handleScenario).Methods(http.MethodGet)
	api.HandleFunc("/calculations/{id:[0-9]+}/stats", s.handleColumnStats).Methods(http.MethodGet)
	api.HandleFunc("/calculations/{id:[0-9]+}", s.handleDeleteCalculation).Methods(http.MethodDelete)

	return r
}

// NewHTTPServer 带超时的 http.Server
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// =============================================================================
// 中间件
// =============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"elapsed":    time.Since(start),
		}).Debug("http request")
	})
}
