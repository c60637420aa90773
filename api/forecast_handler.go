// Package api — forecast endpoints.
package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/seenimoa/retailcast/internal/loader"
	"github.com/seenimoa/retailcast/internal/pipeline"
	"github.com/seenimoa/retailcast/internal/store"
	"github.com/seenimoa/retailcast/pkg/models"
)

// EventForecastComplete is broadcast to WebSocket clients after every run.
const EventForecastComplete = "forecast_complete"

// RunResponse is the data of a forecast response.
type RunResponse struct {
	RunID         uuid.UUID           `json:"run_id"`
	CreatedAt     time.Time           `json:"created_at"`
	Report        models.RankedReport `json:"report"`
	HeldOut       []models.HeldOut    `json:"held_out"`
	Warnings      []string            `json:"warnings"`
	HorizonMonths float64             `json:"horizon_months"`
	TopN          int                 `json:"top_n"`
	RecordCount   int                 `json:"record_count"`
	Cached        bool                `json:"cached"`
}

// forecastParams are the query parameters of POST /api/v1/forecast.
type forecastParams struct {
	horizon float64
	topN    int
	format  loader.Format
}

func (s *Server) parseForecastParams(r *http.Request) (forecastParams, error) {
	p := forecastParams{
		horizon: s.pipeline.Forecast.HorizonMonths,
		topN:    s.pipeline.TopN,
	}
	q := r.URL.Query()
	if v := q.Get("horizon"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil || h <= 0 {
			return p, fmt.Errorf("horizon must be a positive number, got %q", v)
		}
		p.horizon = h
	}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("top must be a positive integer, got %q", v)
		}
		p.topN = n
	}

	format, err := loader.ParseFormat(r.Header.Get("Content-Type"))
	if err != nil {
		return p, err
	}
	p.format = format
	return p, nil
}

// fingerprint identifies a request by its parameters and body.
func (p forecastParams) fingerprint(body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%g|%d|", p.format, p.horizon, p.topN)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// handleForecast runs the pipeline over an uploaded CSV or HTML table.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseForecastParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxBytes := int64(s.cfg.API.MaxBodyMB) << 20
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	key := params.fingerprint(body)
	if id, ok := s.requests.Get(key); ok {
		if cached, ok := s.runs.Get(id); ok {
			resp := *cached
			resp.Cached = true
			w.Header().Set("X-Run-ID", resp.RunID.String())
			writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
			return
		}
	}

	cfg := s.pipeline
	cfg.Forecast.HorizonMonths = params.horizon
	cfg.TopN = params.topN

	records, err := loader.New(cfg.Loader).LoadReader(bytes.NewReader(body), "request body", params.format)
	if err != nil {
		if errors.Is(err, loader.ErrMalformedInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log := s.log.With("request_id", middleware.GetReqID(r.Context()))
	run, err := pipeline.New(cfg, log).Run(r.Context(), records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	meta := store.NewRunMeta("api:" + r.RemoteAddr)
	if s.sink != nil {
		if err := s.sink.Save(r.Context(), run, meta); err != nil {
			log.Error("persist run failed", "run_id", meta.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to persist run")
			return
		}
	}

	resp := newRunResponse(run, meta)
	id := meta.ID.String()
	s.runs.Set(id, resp)
	s.requests.Set(key, id)

	// Broadcast to WebSocket clients
	s.wsHub.Broadcast(WSMessage{
		Type: EventForecastComplete,
		Data: map[string]any{
			"run_id":     id,
			"products":   len(run.Report.TopProducts),
			"categories": len(run.Report.TopCategories),
			"held_out":   len(run.HeldOut),
		},
	})

	w.Header().Set("X-Run-ID", id)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

// handleGetRun returns a cached run by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	resp, ok := s.runs.Get(id.String())
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func newRunResponse(run *models.ForecastRun, meta store.RunMeta) *RunResponse {
	warnings := run.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &RunResponse{
		RunID:         meta.ID,
		CreatedAt:     meta.CreatedAt,
		Report:        run.Report,
		HeldOut:       run.HeldOut,
		Warnings:      warnings,
		HorizonMonths: run.HorizonMonths,
		TopN:          run.TopN,
		RecordCount:   run.RecordCount,
	}
}
