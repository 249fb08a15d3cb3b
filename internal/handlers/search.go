package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"docqa/internal/contextutil"
	"docqa/internal/rag"
	"docqa/internal/ranker"
)

// SearchHandler handles HTTP requests for ranked chunk retrieval.
type SearchHandler struct {
	engine       rag.Engine
	defaultLimit int
	maxLimit     int
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine rag.Engine, defaultLimit, maxLimit int) *SearchHandler {
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &SearchHandler{
		engine:       engine,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// SearchRequest represents the HTTP request payload for searches.
//
// swagger:model SearchRequest
type SearchRequest struct {
	Question string `json:"question"`
	// Limit caps the number of answers. Omitted or zero uses the server default.
	Limit *int `json:"limit,omitempty"`
}

// SearchResponse represents the HTTP response payload for searches.
//
// swagger:model SearchResponse
type SearchResponse struct {
	// Chunk texts ordered by relevance
	Answers []string `json:"answers"`

	// Scored results, present when debug mode is enabled (via ?debug=true query parameter).
	Results []ranker.Result `json:"results,omitempty"`
}

// ServeHTTP handles HTTP requests for searches.
//
// swagger:route POST /api/search search
//
// # Search the documentation
//
// Returns the chunk texts that best answer the question, most relevant first.
//
// responses:
//
//	'200':
//	  description: Ranked answers
//	  schema:
//	    "$ref": "#/definitions/SearchResponse"
//	'400':
//	  description: Bad request (missing question or negative limit)
//	'502':
//	  description: Embedding service or vector store unavailable
//	'503':
//	  description: Corpus not built yet
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	limit := h.defaultLimit
	if req.Limit != nil && *req.Limit != 0 {
		limit = min(*req.Limit, h.maxLimit)
	}

	debug := false
	if debugParam := r.URL.Query().Get("debug"); debugParam != "" {
		debug = strings.ToLower(debugParam) == "true" || debugParam == "1"
	}

	results, err := h.engine.SearchDetailed(ctx, req.Question, limit)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process search")
		return
	}

	resp := SearchResponse{Answers: make([]string, 0, len(results))}
	for _, res := range results {
		resp.Answers = append(resp.Answers, res.Chunk.Text)
	}
	if debug {
		resp.Results = results
	}

	writeJSON(w, ctx, http.StatusOK, resp)
}
