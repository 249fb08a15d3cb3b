package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"docqa/internal/service"
	"docqa/internal/service/mocks"
)

func TestChatHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		mockSetup   func(svc *mocks.MockChatService)
		wantStatus  int
		wantReply   string
		wantSession string
	}{
		{
			name: "existing session",
			body: `{"session_id":"s1","message":"Hello"}`,
			mockSetup: func(svc *mocks.MockChatService) {
				svc.EXPECT().
					ProcessChat(gomock.Any(), service.ChatRequest{SessionID: "s1", Message: "Hello"}).
					Return(service.ChatResponse{Reply: "Hi there!"}, nil)
			},
			wantStatus:  http.StatusOK,
			wantReply:   "Hi there!",
			wantSession: "s1",
		},
		{
			name: "new session",
			body: `{"message":"Hello"}`,
			mockSetup: func(svc *mocks.MockChatService) {
				svc.EXPECT().
					ProcessChat(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, req service.ChatRequest) (service.ChatResponse, error) {
						if req.SessionID == "" {
							t.Error("expected a generated session id")
						}
						return service.ChatResponse{Reply: "Hi"}, nil
					})
			},
			wantStatus: http.StatusOK,
			wantReply:  "Hi",
		},
		{
			name: "validation error",
			body: `{"session_id":"s1","message":""}`,
			mockSetup: func(svc *mocks.MockChatService) {
				svc.EXPECT().ProcessChat(gomock.Any(), gomock.Any()).
					Return(service.ChatResponse{}, &service.ValidationError{Field: "message", Message: "cannot be empty"})
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "LLM unavailable",
			body: `{"session_id":"s1","message":"Hello"}`,
			mockSetup: func(svc *mocks.MockChatService) {
				svc.EXPECT().ProcessChat(gomock.Any(), gomock.Any()).
					Return(service.ChatResponse{}, service.ExternalError(errors.New("refused"), "failed to get LLM response"))
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "unexpected error",
			body: `{"session_id":"s1","message":"Hello"}`,
			mockSetup: func(svc *mocks.MockChatService) {
				svc.EXPECT().ProcessChat(gomock.Any(), gomock.Any()).
					Return(service.ChatResponse{}, errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "invalid JSON",
			body:       `{invalid`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockChatService(ctrl)
			if tt.mockSetup != nil {
				tt.mockSetup(svc)
			}
			handler := NewChatHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp ChatResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Reply != tt.wantReply {
				t.Errorf("reply = %q, want %q", resp.Reply, tt.wantReply)
			}
			if tt.wantSession != "" && resp.SessionID != tt.wantSession {
				t.Errorf("session_id = %q, want %q", resp.SessionID, tt.wantSession)
			}
			if resp.SessionID == "" {
				t.Error("session_id missing from response")
			}
		})
	}
}

func TestChatHandler_ServeStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockChatService(ctrl)
	handler := NewChatHandler(svc)

	svc.EXPECT().
		StreamChat(gomock.Any(), service.ChatRequest{SessionID: "s1", Message: "Hi there"}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ service.ChatRequest, callback func(string) error) error {
			for _, token := range []string{"Hello", " \"world\"\n"} {
				if err := callback(token); err != nil {
					return err
				}
			}
			return nil
		})

	query := url.Values{"session_id": {"s1"}, "message": {"Hi there"}}
	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	handler.ServeStream(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	want := "data: {\"token\":\"Hello\"}\n\n" +
		"data: {\"token\":\" \\\"world\\\"\\n\"}\n\n" +
		"data: [DONE]\n\n"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestChatHandler_ServeStream_Errors(t *testing.T) {
	t.Run("missing parameters", func(t *testing.T) {
		for _, rawQuery := range []string{
			"",
			"session_id=s1",
			"message=hi",
			"session_id=%20%20&message=hi",
			"session_id=s1&message=%20%09%0A",
		} {
			ctrl := gomock.NewController(t)
			handler := NewChatHandler(mocks.NewMockChatService(ctrl))

			w := httptest.NewRecorder()
			handler.ServeStream(w, httptest.NewRequest(http.MethodGet, "/api/chat/stream?"+rawQuery, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("query %q: status = %d, want 400", rawQuery, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct == "text/event-stream" {
				t.Errorf("query %q: stream must not start", rawQuery)
			}
		}
	})

	t.Run("stream failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockChatService(ctrl)
		handler := NewChatHandler(svc)

		svc.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("model crashed"))

		w := httptest.NewRecorder()
		handler.ServeStream(w, httptest.NewRequest(http.MethodGet, "/api/chat/stream?session_id=s1&message=hi", nil))

		body := w.Body.String()
		if !strings.Contains(body, `"error":"model crashed"`) {
			t.Errorf("expected error frame, got %q", body)
		}
		if strings.Contains(body, "[DONE]") {
			t.Errorf("failed stream must not send [DONE]: %q", body)
		}
	})
}
