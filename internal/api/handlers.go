package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/dataq/internal/config"
	"github.com/banshee-data/dataq/internal/db"
	"github.com/banshee-data/dataq/internal/geospace"
	"github.com/banshee-data/dataq/internal/httputil"
	"github.com/banshee-data/dataq/internal/ingest"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/version"
)

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.Config())
}

// updateConfig layers a partial configuration document over the current
// one, applies it to the running pipeline and persists it.
func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	next, status, err := s.mergeAndApply(r.Context(), body)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}
	httputil.WriteJSONOK(w, next)
}

func (s *Server) mergeAndApply(ctx context.Context, patch []byte) (*config.Config, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.cfg.Merge(patch)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	if err := s.apply(ctx, next); err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if s.db != nil {
		data, err := json.Marshal(next)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		if err := s.db.SaveSetting(db.SettingsConfigKey, data); err != nil {
			return nil, http.StatusInternalServerError, err
		}
	}
	s.cfg = next
	return next, http.StatusOK, nil
}

// apply pushes the runtime-adjustable parts of cfg to the running
// components. Pipeline options such as queue size take effect on restart.
// Nothing is changed when the pipeline rejects the settings.
func (s *Server) apply(ctx context.Context, cfg *config.Config) error {
	if s.pipeline != nil {
		if err := s.pipeline.Configure(ctx, cfg.Settings()); err != nil {
			return fmt.Errorf("failed to apply settings: %w", err)
		}
	}
	if s.feed != nil {
		s.feed.Decoder().SetGeometry(cfg.GetRotation(), cfg.GetCOG())
	}
	// Validate has already checked the matrix size.
	return s.geo.SetMatrix(cfg.Geospace)
}

func (s *Server) listPaths(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	paths, err := s.db.ListPaths(r.URL.Query().Get("class"), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list paths: %v", err))
		return
	}
	if paths == nil {
		paths = []db.PathRecord{}
	}
	httputil.WriteJSONOK(w, paths)
}

func (s *Server) getPath(w http.ResponseWriter, r *http.Request) {
	rec, err := s.db.GetPath(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "path not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) listAnomalies(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	signals, err := s.db.ListAnomalies(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list anomalies: %v", err))
		return
	}
	if signals == nil {
		signals = []pipeline.AnomalySignal{}
	}
	httputil.WriteJSONOK(w, signals)
}

// occupancyWindow parses the "window" query parameter, default one hour.
func occupancyWindow(r *http.Request) (time.Duration, error) {
	window := time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid window %q", v)
		}
		window = d
	}
	return window, nil
}

type occupancyResponse struct {
	Current occupancy.Snapshot   `json:"current"`
	History []occupancy.Snapshot `json:"history"`
}

func (s *Server) showOccupancy(w http.ResponseWriter, r *http.Request) {
	window, err := occupancyWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	history, err := s.db.RecentOccupancy(s.clock.Now().Add(-window), 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load occupancy: %v", err))
		return
	}
	if history == nil {
		history = []occupancy.Snapshot{}
	}
	httputil.WriteJSONOK(w, occupancyResponse{Current: s.pipeline.Occupancy(), History: history})
}

func (s *Server) showHeld(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.pipeline.Held())
}

func (s *Server) showAnomalyStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.pipeline.AnomalyStats())
}

type statusResponse struct {
	pipeline.Status
	Ingest  *ingest.Stats `json:"ingest,omitempty"`
	Version version.Info  `json:"version"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.pipeline.Status(), Version: version.Get()}
	if s.feed != nil {
		stats := s.feed.Stats()
		resp.Ingest = &stats
	}
	httputil.WriteJSONOK(w, resp)
}

type scenePoint struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type pointsRequest struct {
	Points []scenePoint `json:"points"`
}

func (s *Server) transform(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	out := make([]scenePoint, len(req.Points))
	for i, p := range req.Points {
		lat, lon, err := s.geo.Transform(p.X, p.Y)
		if errors.Is(err, geospace.ErrNotCalibrated) {
			httputil.Conflict(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		out[i] = scenePoint{X: p.X, Y: p.Y, Lat: lat, Lon: lon}
	}
	httputil.WriteJSONOK(w, pointsRequest{Points: out})
}

// calibrate solves the homography from four reference points and applies
// it as a configuration update.
func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(req.Points) != 4 {
		httputil.BadRequest(w, fmt.Sprintf("calibration needs 4 points, got %d", len(req.Points)))
		return
	}
	var points [4]geospace.Calibration
	for i, p := range req.Points {
		points[i] = geospace.Calibration{X: p.X, Y: p.Y, Lat: p.Lat, Lon: p.Lon}
	}
	m, err := geospace.Solve(points)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	patch, err := json.Marshal(config.Config{Geospace: m[:]})
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	next, status, err := s.mergeAndApply(r.Context(), patch)
	if err != nil {
		httputil.WriteJSONError(w, status, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string][]float64{"geospace": next.Geospace})
}
