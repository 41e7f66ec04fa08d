package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/lookup"
	"github.com/raaihank/text-anonymizer/internal/websocket"
)

// AnonymizeRequest is the body of POST /v1/anonymize
type AnonymizeRequest struct {
	Text   string            `json:"text"`
	Mode   string            `json:"mode"`
	Config map[string]string `json:"config,omitempty"`
}

// AnonymizeResponse is returned by POST /v1/anonymize
type AnonymizeResponse struct {
	RunID          string                   `json:"run_id"`
	Text           string                   `json:"text"`
	Mode           anonymizer.Mode          `json:"mode"`
	Matches        int                      `json:"matches"`
	Replaced       int                      `json:"replaced"`
	Lookup         anonymizer.IdentityTable `json:"lookup,omitempty"`
	LookupLocation string                   `json:"lookup_location,omitempty"`
	Warnings       []anonymizer.Warning     `json:"warnings,omitempty"`
}

// LookupResponse is returned by GET /v1/lookups/{run_id}
type LookupResponse struct {
	RunID  string                   `json:"run_id"`
	Lookup anonymizer.IdentityTable `json:"lookup"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "text-anonymizer",
		"version":     s.version,
		"modes":       anonymizer.ModeNames(),
		"lookup_sink": s.config.Lookup.Sink,
		"date_format": s.ruleSet.Load().rules.DateFormat(),
		"rate_limit":  s.limiter != nil,
	}
	if s.wsHub != nil {
		info["websocket_clients"] = s.wsHub.ClientCount()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAnonymize runs one anonymization pass over the request text
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req AnonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body: "+err.Error()))
		return
	}

	mode, err := anonymizer.ParseMode(req.Mode)
	if err != nil {
		log.Warn("Rejected anonymize request", zap.Error(err))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rules, err := s.rulesFor(req.Config)
	if err != nil {
		log.Warn("Invalid pattern override", zap.Error(err))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	runID := uuid.NewString()
	runLog := log.WithRunID(runID)
	start := time.Now()

	result, err := anonymizer.New(req.Text, mode, rules,
		anonymizer.WithGenerator(s.gen),
		anonymizer.WithLogger(runLog),
	).Run()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, anonymizer.ErrUnsupportedMode) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	resp := AnonymizeResponse{
		RunID:    runID,
		Text:     result.Text,
		Mode:     result.Mode,
		Matches:  result.Matches,
		Replaced: result.Replaced,
		Lookup:   result.Lookup,
		Warnings: result.Warnings,
	}

	if mode == anonymizer.ModeNameToID && len(result.Lookup) > 0 {
		location, err := s.sink.Save(r.Context(), lookup.Run{ID: runID, Mode: mode, CreatedAt: start}, result.Lookup)
		if err != nil {
			runLog.Error("Failed to save lookup table", zap.Error(err))
		} else {
			resp.LookupLocation = location
		}
	}

	if s.wsHub != nil {
		s.wsHub.PublishAnonymization(requestID, websocket.AnonymizationEvent{
			RunID:        runID,
			Mode:         string(mode),
			Source:       "api",
			Matches:      result.Matches,
			Replaced:     result.Replaced,
			Warnings:     len(result.Warnings),
			Identities:   len(result.Lookup),
			ProcessingMS: float64(time.Since(start).Microseconds()) / 1000,
		})
	}

	runLog.Info("Anonymization completed",
		zap.String("mode", string(mode)),
		zap.Int("matches", result.Matches),
		zap.Int("replaced", result.Replaced),
		zap.Duration("duration", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, resp)
}

// handleLookup returns a stored name_to_id table
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	loader, ok := s.sink.(lookup.Loader)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("lookup sink "+s.config.Lookup.Sink+" cannot read tables back"))
		return
	}

	runID := mux.Vars(r)["run_id"]
	table, err := loader.Load(r.Context(), runID)
	if errors.Is(err, lookup.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to load lookup table",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, LookupResponse{RunID: runID, Lookup: table})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
