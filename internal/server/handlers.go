package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/claim"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/fhir"
)

const maxBodyBytes = 1 << 20

// Default parties for generate-claim.
const (
	DefaultPatientID  = fhir.DefaultPatientID
	DefaultProviderID = "provider-456"
)

// NoAnalysisMessage is the 404 detail from generate-claim.
const NoAnalysisMessage = "No analysis results found. Please run /analyze first."

// IngestResponse reports stored resources.
type IngestResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	ResourceIDs []string `json:"resource_ids"`
}

// AnalyzeRequest selects resources to run through the pipeline.
type AnalyzeRequest struct {
	ResourceIDs []string `json:"resource_ids"`
	MaxRetries  *int     `json:"max_retries,omitempty"`
}

// AnalyzeResponse is a finished run.
type AnalyzeResponse struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	RunID      string                `json:"run_id"`
	Extracted  *claimgraph.Extracted `json:"extracted_data"`
	Coded      *claimgraph.Coded     `json:"coded_data"`
	Audit      *claimgraph.Audit     `json:"audit_result"`
	RetryCount int                   `json:"retry_count"`
}

// GenerateClaimResponse carries the assembled claim.
type GenerateClaimResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Claim   *claim.Claim `json:"claim"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    s.name,
		"version": s.version,
		"status":  "running",
		"endpoints": map[string]string{
			"ingest":         "/api/v1/ingest",
			"analyze":        "/api/v1/analyze",
			"generate_claim": "/api/v1/generate-claim",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var bundle fhir.Bundle
	if !s.decode(w, r, &bundle) {
		return
	}
	bundle.Normalize()
	if err := bundle.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ids, err := store.SaveBundle(r.Context(), s.store, &bundle)
	if err != nil {
		s.internalError(w, r, "ingest", err)
		return
	}

	s.logger.Info("resources ingested",
		slog.String("request_id", RequestID(r.Context())),
		slog.Int("count", len(ids)),
	)
	writeJSON(w, http.StatusOK, IngestResponse{
		Success:     true,
		Message:     fmt.Sprintf("Successfully ingested %d resources", len(ids)),
		ResourceIDs: ids,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	maxRetries := s.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	if maxRetries < 0 {
		writeError(w, http.StatusBadRequest, "max_retries must not be negative")
		return
	}

	runID := uuid.NewString()
	runOpts := []claimgraph.RunOption{claimgraph.WithRunID(runID)}
	if s.checkpoints != nil {
		runOpts = append(runOpts, claimgraph.WithCheckpointing(s.checkpoints))
	}

	final := s.orch.Run(r.Context(), req.ResourceIDs, maxRetries, runOpts...)
	if final.Error != "" {
		writeError(w, http.StatusInternalServerError, final.Error)
		return
	}

	if a, ok := store.AnalysisFromState(runID, final); ok {
		if err := s.store.SaveAnalysis(r.Context(), a); err != nil {
			s.internalError(w, r, "save analysis", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Success:    true,
		Message:    "Analysis completed successfully",
		RunID:      runID,
		Extracted:  final.Extracted,
		Coded:      final.Coded,
		Audit:      final.Audit,
		RetryCount: final.RetryCount,
	})
}

func (s *Server) handleGenerateClaim(w http.ResponseWriter, r *http.Request) {
	req := claim.Request{PatientID: DefaultPatientID, ProviderID: DefaultProviderID}
	if !s.decodeOptional(w, r, &req) {
		return
	}

	analysis, err := s.store.LatestAnalysis(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, NoAnalysisMessage)
		return
	}
	if err != nil {
		s.internalError(w, r, "load analysis", err)
		return
	}

	c, err := claim.Assemble(&analysis.Coded, req, s.claimOpts...)
	if err != nil {
		s.internalError(w, r, "assemble claim", err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateClaimResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully generated claim with %d items", len(c.Item)),
		Claim:   c,
	})
}

// decode reads a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be omitted. An
// empty body, chunked or not, leaves v untouched.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error("request failed",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("op", op),
		slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
