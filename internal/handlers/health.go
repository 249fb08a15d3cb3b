package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"docqa/internal/contextutil"
	"docqa/internal/corpus"
	"docqa/internal/vectorstore"
)

// SnapshotSource returns the active corpus snapshot, or nil before the first build.
type SnapshotSource interface {
	Current() *corpus.Snapshot
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	corpus             SnapshotSource
	vectorStore        vectorstore.VectorStore
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(source SnapshotSource, vectorStore vectorstore.VectorStore) *HealthHandler {
	return &HealthHandler{
		corpus:             source,
		vectorStore:        vectorStore,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK when a corpus snapshot is active and its collection is
// reachable, 503 Service Unavailable otherwise.
//
// swagger:route GET /api/health healthCheck
//
// responses:
//
//	'200':
//	  description: System is healthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string

	snap := h.corpus.Current()
	if snap == nil {
		checks["corpus"] = "not_ready"
		checks["vector_store"] = "skipped"
		issues = append(issues, "corpus_not_ready")
	} else {
		checks["corpus"] = "ok"
		if h.checkVectorStore(checkCtx, logger, snap.Collection) {
			checks["vector_store"] = "ok"
		} else {
			checks["vector_store"] = "error"
			issues = append(issues, "vector_store_unavailable")
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, ctx, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}

// checkVectorStore checks if the active collection is accessible.
func (h *HealthHandler) checkVectorStore(ctx context.Context, logger *slog.Logger, collection string) bool {
	exists, err := h.vectorStore.CollectionExists(ctx, collection)
	if err != nil {
		logger.WarnContext(ctx, "vector store health check failed", "error", err)
		return false
	}
	if !exists {
		logger.WarnContext(ctx, "vector store collection does not exist", "collection", collection)
		return false
	}
	return true
}
