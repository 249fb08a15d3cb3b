package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"docqa/internal/contextutil"
	"docqa/internal/service"
)

// ChatHandler handles HTTP requests for chat.
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// ChatRequest represents the HTTP request payload for chat.
//
// swagger:model ChatRequest
type ChatRequest struct {
	// Session to continue. A new session is started when empty.
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse represents the HTTP response payload for chat.
//
// swagger:model ChatResponse
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// streamToken is a single SSE frame of a streamed reply.
type streamToken struct {
	Token string `json:"token"`
}

// ServeHTTP handles HTTP requests for chat.
//
// swagger:route POST /api/chat chat
//
// # Chat with the documentation
//
// Answers the message using retrieved documentation and the session history.
//
// responses:
//
//	'200':
//	  description: Assistant reply
//	  schema:
//	    "$ref": "#/definitions/ChatResponse"
//	'400':
//	  description: Missing message
//	'502':
//	  description: LLM unavailable
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
		logger.DebugContext(ctx, "started chat session", "session_id", req.SessionID)
	}

	svcResp, err := h.chatService.ProcessChat(ctx, service.ChatRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process chat request")
		return
	}

	writeJSON(w, ctx, http.StatusOK, ChatResponse{
		SessionID: req.SessionID,
		Reply:     svcResp.Reply,
	})
}

// ServeStream streams a chat reply as Server-Sent Events. Each token is sent
// as a JSON frame `{"token": "..."}`, followed by a final `[DONE]` frame.
//
// swagger:route GET /api/chat/stream chatStream
//
// # Stream a chat reply
//
// Query parameters session_id and message are required.
//
// responses:
//
//	'200':
//	  description: text/event-stream of tokens
//	'400':
//	  description: Missing session_id or message
func (h *ChatHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	sessionID := r.URL.Query().Get("session_id")
	message := r.URL.Query().Get("message")
	// Reject blank values here: once the stream starts the status is already 200.
	hasSession := strings.TrimSpace(sessionID) != ""
	hasMessage := strings.TrimSpace(message) != ""
	if !hasSession || !hasMessage {
		logger.WarnContext(ctx, "missing stream parameters", "has_session", hasSession, "has_message", hasMessage)
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Set up Server-Sent Events headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	err := h.chatService.StreamChat(ctx, service.ChatRequest{
		SessionID: sessionID,
		Message:   message,
	}, func(token string) error {
		frame, err := json.Marshal(streamToken{Token: token})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if err != nil {
		logger.ErrorContext(ctx, "error streaming chat", "error", err)
		frame, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", frame)
		flusher.Flush()
		return
	}

	// Send done signal
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}
