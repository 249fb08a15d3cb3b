package handlers

import (
	"context"
	"net/http"
	"time"

	"docqa/internal/contextutil"
	"docqa/internal/corpus"
)

// CorpusManager is the part of *corpus.Manager the corpus endpoints use.
type CorpusManager interface {
	Current() *corpus.Snapshot
	Status() corpus.Status
	Rebuild(ctx context.Context, progress corpus.ProgressFunc) (*corpus.Snapshot, error)
}

// CorpusHandler reports on and reloads the corpus.
type CorpusHandler struct {
	manager        CorpusManager
	embeddingModel string
}

// NewCorpusHandler creates a new CorpusHandler.
func NewCorpusHandler(manager CorpusManager, embeddingModel string) *CorpusHandler {
	return &CorpusHandler{
		manager:        manager,
		embeddingModel: embeddingModel,
	}
}

// ReloadResponse is returned when a rebuild is accepted.
type ReloadResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// CorpusResponse summarises the active snapshot.
//
// swagger:model CorpusResponse
type CorpusResponse struct {
	Ready         bool                  `json:"ready"`
	Building      bool                  `json:"building"`
	LastRebuildAt string                `json:"last_rebuild_at,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
	Documents     []corpus.DocumentInfo `json:"documents,omitempty"`
	Stats         *corpus.Stats         `json:"stats,omitempty"`
}

// Reload triggers a rebuild in the background and returns immediately.
//
// swagger:route POST /api/corpus/reload reloadCorpus
//
// responses:
//
//	'202':
//	  description: Rebuild started
func (h *CorpusHandler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "corpus reload triggered via API")

	// Detach from the request so the rebuild outlives it but keeps the logger.
	buildCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := h.manager.Rebuild(buildCtx, nil); err != nil {
			logger.ErrorContext(buildCtx, "corpus reload failed", "error", err)
			return
		}
		logger.InfoContext(buildCtx, "corpus reload completed")
	}()

	writeJSON(w, ctx, http.StatusAccepted, ReloadResponse{
		Message: "Corpus rebuild started. Check server logs for progress.",
		Status:  "accepted",
	})
}

// Summary reports the active snapshot and the rebuild status.
//
// swagger:route GET /api/corpus corpusSummary
//
// responses:
//
//	'200':
//	  description: Corpus summary
//	  schema:
//	    "$ref": "#/definitions/CorpusResponse"
func (h *CorpusHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := h.manager.Status()
	resp := CorpusResponse{
		Building:  status.Building,
		LastError: status.LastError,
	}
	if !status.LastRebuildAt.IsZero() {
		resp.LastRebuildAt = status.LastRebuildAt.UTC().Format(time.RFC3339)
	}

	if snap := h.manager.Current(); snap != nil {
		stats := corpus.ComputeStats(snap, h.embeddingModel)
		resp.Ready = true
		resp.Documents = snap.Documents
		resp.Stats = &stats
	}

	writeJSON(w, ctx, http.StatusOK, resp)
}
