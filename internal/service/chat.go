package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm_client.go -package=mocks docqa/internal/service LLMClient
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_retriever.go -package=mocks docqa/internal/service Retriever
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService docqa/internal/service ChatService

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/contextutil"
	"docqa/internal/llm"
	"docqa/internal/storage"
)

const (
	// DefaultResultLimit is the number of chunks retrieved as chat context.
	DefaultResultLimit = 3
	// DefaultMaxHistory is the number of turns kept per session.
	DefaultMaxHistory = 5

	// NoContextText replaces the context when retrieval finds nothing.
	NoContextText = "No relevant information found."
)

const systemPromptTemplate = "You are a documentation assistant. Answer questions using only the documentation below.\n\n" +
	"Rules:\n" +
	"- Do not guess, give opinions, or add information that is not in the documentation.\n" +
	"- If the documentation does not contain the answer, reply: 'Sorry, that information is not in my documentation yet.'\n" +
	"- Keep answers short, clear and polite.\n\n" +
	"==== DOCUMENTATION START ====\n" +
	"%s\n" +
	"==== DOCUMENTATION END ====\n"

// LLMClient is an interface for interacting with an LLM API.
// This interface is defined from the service layer's perspective (consumer-first).
type LLMClient interface {
	// ChatWithMessages sends a conversation to the LLM and returns the reply.
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
	// StreamChatWithMessages sends a conversation to the LLM and streams the reply via callback.
	StreamChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams, callback func(token string) error) error
}

// Retriever returns the chunk texts that best answer a question.
type Retriever interface {
	Search(ctx context.Context, question string, limit int) ([]string, error)
}

// ChatRequest represents a chat request in the domain layer.
type ChatRequest struct {
	SessionID string
	Message   string
}

// ChatResponse represents a chat response in the domain layer.
type ChatResponse struct {
	Reply string
}

// ChatConfig configures a ChatService.
type ChatConfig struct {
	ResultLimit int
	MaxHistory  int
	Params      llm.ChatParams
}

// ChatService provides retrieval-augmented chat over a session history.
type ChatService interface {
	// ProcessChat processes a chat request and returns a response.
	ProcessChat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// StreamChat processes a chat request and streams the response via callback.
	StreamChat(ctx context.Context, req ChatRequest, callback func(token string) error) error
}

// chatService implements ChatService.
type chatService struct {
	llmClient LLMClient
	retriever Retriever
	history   storage.HistoryStore
	cfg       ChatConfig
}

// NewChatService creates a new ChatService.
func NewChatService(llmClient LLMClient, retriever Retriever, history storage.HistoryStore, cfg ChatConfig) ChatService {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = DefaultResultLimit
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	return &chatService{
		llmClient: llmClient,
		retriever: retriever,
		history:   history,
		cfg:       cfg,
	}
}

// ProcessChat processes a chat request.
func (s *chatService) ProcessChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	messages, err := s.prepare(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}

	reply, err := s.llmClient.ChatWithMessages(ctx, messages, s.cfg.Params)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return ChatResponse{}, ExternalError(err, "failed to get LLM response")
	}

	if err := s.record(ctx, req.SessionID, reply); err != nil {
		return ChatResponse{}, err
	}

	logger.InfoContext(ctx, "chat request processed successfully", "message_length", len(req.Message), "reply_length", len(reply))
	return ChatResponse{Reply: reply}, nil
}

// StreamChat processes a chat request and streams the response. The assistant
// turn is only recorded when the stream completes.
func (s *chatService) StreamChat(ctx context.Context, req ChatRequest, callback func(token string) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	messages, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}

	var reply strings.Builder
	err = s.llmClient.StreamChatWithMessages(ctx, messages, s.cfg.Params, func(token string) error {
		reply.WriteString(token)
		return callback(token)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to stream LLM response", "error", err)
		return ExternalError(err, "failed to stream LLM response")
	}

	if err := s.record(ctx, req.SessionID, reply.String()); err != nil {
		return err
	}

	logger.InfoContext(ctx, "streaming chat request processed successfully", "message_length", len(req.Message), "reply_length", reply.Len())
	return nil
}

// prepare validates req, records the user turn and assembles the conversation
// sent to the LLM: the system prompt followed by the session history.
func (s *chatService) prepare(ctx context.Context, req ChatRequest) ([]llm.Message, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.SessionID) == "" {
		logger.WarnContext(ctx, "empty session id in chat request")
		return nil, &ValidationError{Field: "session_id", Message: "cannot be empty"}
	}
	if strings.TrimSpace(req.Message) == "" {
		logger.WarnContext(ctx, "empty message in chat request")
		return nil, &ValidationError{Field: "message", Message: "cannot be empty"}
	}

	if err := s.history.Append(ctx, req.SessionID, llm.RoleUser, req.Message); err != nil {
		return nil, WrapError(err, "failed to record user message")
	}
	if err := s.history.Trim(ctx, req.SessionID, s.cfg.MaxHistory); err != nil {
		return nil, WrapError(err, "failed to trim history")
	}

	chunks, err := s.retriever.Search(ctx, req.Message, s.cfg.ResultLimit)
	if err != nil {
		logger.WarnContext(ctx, "retrieval failed, answering without context", "error", err)
		chunks = nil
	}

	history, err := s.history.Recent(ctx, req.SessionID, s.cfg.MaxHistory)
	if err != nil {
		return nil, WrapError(err, "failed to load history")
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(chunks)})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	logger.DebugContext(ctx, "prepared chat conversation", "session_id", req.SessionID, "chunks", len(chunks), "history", len(history))
	return messages, nil
}

func (s *chatService) record(ctx context.Context, sessionID, reply string) error {
	if err := s.history.Append(ctx, sessionID, llm.RoleAssistant, reply); err != nil {
		return WrapError(err, "failed to record assistant message")
	}
	if err := s.history.Trim(ctx, sessionID, s.cfg.MaxHistory); err != nil {
		return WrapError(err, "failed to trim history")
	}
	return nil
}

// SystemPrompt embeds the retrieved chunks, separated by blank lines, in the
// assistant instructions.
func SystemPrompt(chunks []string) string {
	docs := NoContextText
	if len(chunks) > 0 {
		docs = strings.Join(chunks, "\n\n")
	}
	return fmt.Sprintf(systemPromptTemplate, docs)
}
