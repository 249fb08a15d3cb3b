package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docqa/internal/handlers"
	"docqa/internal/rag"
	"docqa/internal/service"
	"docqa/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	ChatService service.ChatService
	Engine      rag.Engine
	Corpus      handlers.CorpusManager
	VectorStore vectorstore.VectorStore

	EmbeddingModel     string
	SearchDefaultLimit int
	SearchMaxLimit     int
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	chatHandler := handlers.NewChatHandler(deps.ChatService)
	searchHandler := handlers.NewSearchHandler(deps.Engine, deps.SearchDefaultLimit, deps.SearchMaxLimit)
	corpusHandler := handlers.NewCorpusHandler(deps.Corpus, deps.EmbeddingModel)
	healthHandler := handlers.NewHealthHandler(deps.Corpus, deps.VectorStore)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/search", searchHandler)
		r.Method(http.MethodPost, "/chat", chatHandler)
		r.Get("/chat/stream", chatHandler.ServeStream)
		r.Get("/corpus", corpusHandler.Summary)
		r.Post("/corpus/reload", corpusHandler.Reload)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
