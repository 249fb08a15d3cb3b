package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/mock/gomock"

	"docqa/internal/corpus"
	rag_mocks "docqa/internal/rag/mocks"
	"docqa/internal/service"
	"docqa/internal/service/mocks"
	vectorstore_mocks "docqa/internal/vectorstore/mocks"
)

type idleCorpus struct{}

func (idleCorpus) Current() *corpus.Snapshot { return nil }
func (idleCorpus) Status() corpus.Status     { return corpus.Status{} }
func (idleCorpus) Rebuild(context.Context, corpus.ProgressFunc) (*corpus.Snapshot, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockChatService, *rag_mocks.MockEngine) {
	ctrl := gomock.NewController(t)
	chatService := mocks.NewMockChatService(ctrl)
	engine := rag_mocks.NewMockEngine(ctrl)

	router := NewRouter(&Deps{
		ChatService:        chatService,
		Engine:             engine,
		Corpus:             idleCorpus{},
		VectorStore:        vectorstore_mocks.NewMockVectorStore(ctrl),
		SearchDefaultLimit: 3,
		SearchMaxLimit:     10,
	})
	return router, chatService, engine
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		setup      func(chat *mocks.MockChatService, engine *rag_mocks.MockEngine)
		wantStatus int
	}{
		{
			name:   "POST /api/search",
			method: http.MethodPost,
			path:   "/api/search",
			body:   `{"question":"setup"}`,
			setup: func(_ *mocks.MockChatService, engine *rag_mocks.MockEngine) {
				engine.EXPECT().SearchDetailed(gomock.Any(), "setup", 3).Return(nil, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "POST /api/chat",
			method: http.MethodPost,
			path:   "/api/chat",
			body:   `{"session_id":"s1","message":"hi"}`,
			setup: func(chat *mocks.MockChatService, _ *rag_mocks.MockEngine) {
				chat.EXPECT().ProcessChat(gomock.Any(), gomock.Any()).Return(service.ChatResponse{Reply: "hello"}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST /api/chat invalid body",
			method:     http.MethodPost,
			path:       "/api/chat",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /api/chat/stream without parameters",
			method:     http.MethodGet,
			path:       "/api/chat/stream",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /api/corpus",
			method:     http.MethodGet,
			path:       "/api/corpus",
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST /api/corpus/reload",
			method:     http.MethodPost,
			path:       "/api/corpus/reload",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "GET /api/health before the first build",
			method:     http.MethodGet,
			path:       "/api/health",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "GET /api/chat method not allowed",
			method:     http.MethodGet,
			path:       "/api/chat",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/unknown",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, chat, engine := newTestRouter(t)
			if tt.setup != nil {
				tt.setup(chat, engine)
			}

			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("Router should apply CORS middleware")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %v, want %v", w.Code, http.StatusNoContent)
	}
}
