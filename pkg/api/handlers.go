package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/influence-seeding/pkg/influence"
	"github.com/gilchrisn/influence-seeding/pkg/output"
	"github.com/gilchrisn/influence-seeding/pkg/pipeline"
	"github.com/gilchrisn/influence-seeding/pkg/store"
)

const defaultTopN = 10

// ErrOutsideDataDir rejects run inputs that resolve outside the data root.
var ErrOutsideDataDir = errors.New("path outside data directory")

// Archive is the run storage used by the handlers.
type Archive interface {
	Save(rec *store.Record) error
	Get(id string) (*store.Record, error)
	List(limit int) ([]store.Record, error)
	Delete(id string) error
}

// RunFunc executes a pipeline run on input files.
type RunFunc func(ctx context.Context, graphPath, interestPath string, opts pipeline.Options, logger zerolog.Logger) (*pipeline.Result, error)

// Handlers contains HTTP request handlers
type Handlers struct {
	archive  Archive
	defaults pipeline.Options
	dataDir  string
	run      RunFunc
}

// NewHandlers creates handlers that run the pipeline with defaults as the
// base options and archive every successful run. Input paths in requests are
// resolved against dataDir and may not leave it.
func NewHandlers(archive Archive, defaults pipeline.Options, dataDir string) *Handlers {
	return &Handlers{
		archive:  archive,
		defaults: defaults,
		dataDir:  dataDir,
		run:      pipeline.RunFiles,
	}
}

// RunRequest is the body of POST /runs. Omitted parameters fall back to the
// server defaults.
type RunRequest struct {
	GraphPath     string   `json:"graph_path"`
	InterestPath  string   `json:"interest_path"`
	K             *int     `json:"k,omitempty"`
	Workers       *int     `json:"workers,omitempty"`
	Threads       *int     `json:"threads,omitempty"`
	Mode          *string  `json:"mode,omitempty"`
	Damping       *float64 `json:"damping,omitempty"`
	Tolerance     *float64 `json:"tolerance,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty"`
	Strict        *bool    `json:"strict,omitempty"`
	TopN          int      `json:"top_n,omitempty"`
}

// RunResponse is returned by POST /runs.
type RunResponse struct {
	RunID  string         `json:"run_id"`
	Report *output.Report `json:"report"`
	Record *store.Record  `json:"record"`
}

// options applies the request overrides to base.
func (req *RunRequest) options(base pipeline.Options) (pipeline.Options, error) {
	opts := base
	if req.K != nil {
		opts.K = *req.K
	}
	if req.Workers != nil {
		opts.Workers = *req.Workers
	}
	if req.Strict != nil {
		opts.Strict = *req.Strict
	}
	if req.Threads != nil {
		opts.Propagation = opts.Propagation.WithThreads(*req.Threads)
	}
	if req.Mode != nil {
		mode, err := influence.ParseMode(*req.Mode)
		if err != nil {
			return opts, err
		}
		opts.Propagation = opts.Propagation.WithMode(mode)
	}
	if req.Damping != nil {
		opts.Propagation = opts.Propagation.WithDamping(*req.Damping)
	}
	if req.Tolerance != nil {
		opts.Propagation = opts.Propagation.WithTolerance(*req.Tolerance)
	}
	if req.MaxIterations != nil {
		opts.Propagation = opts.Propagation.WithMaxIterations(*req.MaxIterations)
	}
	return opts, opts.Validate()
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Service is healthy", map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// StartRun runs the pipeline synchronously and archives the result.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.GraphPath == "" || req.InterestPath == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "graph_path and interest_path are required", nil)
		return
	}

	graphPath, err := h.resolvePath(req.GraphPath)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid graph_path", err)
		return
	}
	interestPath, err := h.resolvePath(req.InterestPath)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid interest_path", err)
		return
	}

	opts, err := req.options(h.defaults)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid run parameters", err)
		return
	}

	log.Info().
		Str("graph", req.GraphPath).
		Str("interests", req.InterestPath).
		Int("k", opts.K).
		Str("mode", string(opts.Propagation.Mode)).
		Msg("Starting run")

	res, err := h.run(r.Context(), graphPath, interestPath, opts, log.Logger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInput) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("graph", req.GraphPath).Msg("Run failed")
		WriteErrorResponse(w, status, "Run failed", err)
		return
	}

	rec := res.Record(req.GraphPath, req.InterestPath)
	if err := h.archive.Save(rec); err != nil {
		log.Error().Err(err).Str("run_id", res.RunID).Msg("Failed to archive run")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to archive run", err)
		return
	}

	topN := req.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	log.Info().
		Str("run_id", res.RunID).
		Int("seeds", len(res.Seeds)).
		Msg("Run completed successfully")

	WriteSuccessResponse(w, "Run completed", RunResponse{
		RunID:  res.RunID,
		Report: output.NewReport(res, topN),
		Record: rec,
	})
}

// ListRuns lists archived runs, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.archive.List(limitParam(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []store.Record{}
	}
	WriteSuccessResponse(w, "Runs retrieved successfully", runs)
}

// GetRun retrieves one archived run.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	rec, err := h.archive.Get(runID)
	if err != nil {
		h.writeLookupError(w, runID, err)
		return
	}
	WriteSuccessResponse(w, "Run retrieved successfully", rec)
}

// DeleteRun removes one archived run.
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	if err := h.archive.Delete(runID); err != nil {
		h.writeLookupError(w, runID, err)
		return
	}
	WriteSuccessResponse(w, "Run deleted successfully", nil)
}

// resolvePath maps a requested input path onto the data root. Relative paths
// are taken from the root; symlinks are followed before the containment check.
func (h *Handlers) resolvePath(requested string) (string, error) {
	root, err := filepath.Abs(h.dataDir)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	path := requested
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDataDir, requested)
	}
	return path, nil
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		WriteErrorResponse(w, http.StatusNotFound, "Run not found", err)
		return
	}
	log.Error().Str("run_id", runID).Err(err).Msg("Run lookup failed")
	WriteErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load run %s", runID), err)
}
