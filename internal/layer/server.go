// Package layer serves the latest regional estimates and the run history
// over HTTP.
package layer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fer004/Sensores/internal/export"
	"github.com/fer004/Sensores/internal/model"
	"github.com/fer004/Sensores/internal/store"
)

// History is the read side of the run history log.
type History interface {
	LatestRun(ctx context.Context) (*model.Run, []model.RegionEstimate, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	RegionHistory(ctx context.Context, region string, limit int) ([]model.HistoryPoint, error)
}

// Options configure a Server.
type Options struct {
	// History may be nil when the history log is disabled.
	History History
	// Regions supply boundaries for records read back from History.
	Regions []model.Region
	// Metrics serves /metrics when set.
	Metrics     http.Handler
	CORSOrigins []string
}

// Server holds the published layer and the HTTP routes over it.
type Server struct {
	history    History
	regions    []model.Region
	metrics    http.Handler
	origins    []string
	log        *zap.Logger

	mu      sync.RWMutex
	run     *model.Run
	records []model.RegionEstimate
}

// NewServer builds a server. Nothing is published until Publish is called;
// until then layer requests fall back to the latest run in History.
func NewServer(opts Options) *Server {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		history:    opts.History,
		regions:    opts.Regions,
		metrics:    opts.Metrics,
		origins:    origins,
		log:        zap.L().With(zap.String("component", "layer")),
	}
}

// Publish replaces the served layer with a fresh run.
func (s *Server) Publish(run *model.Run, records []model.RegionEstimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = run
	s.records = records
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/layers/regions.geojson", s.handleRegionsGeoJSON)
	r.Get("/layers/regions.arcgis.json", s.handleRegionsArcGIS)
	r.Get("/runs", s.handleRuns)
	r.Get("/regions/{name}/history", s.handleRegionHistory)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	s.mu.RLock()
	if s.run != nil {
		resp["last_run"] = s.run.ID
		resp["last_run_at"] = s.run.StartedAt.Format(time.RFC3339)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegionsGeoJSON(w http.ResponseWriter, r *http.Request) {
	records, ok := s.layer(w, r)
	if !ok {
		return
	}
	data, err := export.RegionsGeoJSON(records)
	if err != nil {
		s.log.Error("render geojson failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRegionsArcGIS(w http.ResponseWriter, r *http.Request) {
	records, ok := s.layer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, export.ArcGISFeatureSet(records))
}

// layer returns the records to serve with boundaries attached. It writes the
// error response itself when nothing can be served.
func (s *Server) layer(w http.ResponseWriter, r *http.Request) ([]model.RegionEstimate, bool) {
	s.mu.RLock()
	records := s.records
	published := s.run != nil
	s.mu.RUnlock()
	if published {
		return records, true
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "no run published yet")
		return nil, false
	}
	_, stored, err := s.history.LatestRun(r.Context())
	if errors.Is(err, store.ErrNoRuns) {
		writeError(w, http.StatusServiceUnavailable, "no run recorded yet")
		return nil, false
	}
	if err != nil {
		s.log.Error("latest run lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return nil, false
	}
	return s.attachBoundaries(stored), true
}

// attachBoundaries joins stored records to the loaded regions by their
// position in the region list. A record whose position holds no boundary or
// a region of another name is left out.
func (s *Server) attachBoundaries(records []model.RegionEstimate) []model.RegionEstimate {
	out := make([]model.RegionEstimate, 0, len(records))
	for _, rec := range records {
		if rec.Index < 0 || rec.Index >= len(s.regions) ||
			s.regions[rec.Index].Boundary == nil || s.regions[rec.Index].Name != rec.Name {
			s.log.Debug("no boundary loaded for region",
				zap.Int("index", rec.Index),
				zap.String("region", rec.Name),
			)
			continue
		}
		rec.Boundary = s.regions[rec.Index].Boundary
		out = append(out, rec)
	}
	return out
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRegionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	points, err := s.history.RegionHistory(r.Context(), name, limit)
	if err != nil {
		s.log.Error("region history failed", zap.String("region", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if len(points) == 0 {
		writeError(w, http.StatusNotFound, "no history for region")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"region": name, "points": points})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 1000 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return 0, false
	}
	return n, true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
