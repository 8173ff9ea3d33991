package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stemforge/stem-forge/backend/internal/handler/chat"
	"github.com/stemforge/stem-forge/backend/internal/handler/stream"
	"github.com/stemforge/stem-forge/backend/internal/handler/tutor"
	middlewarePkg "github.com/stemforge/stem-forge/backend/internal/middleware"
	subjectModel "github.com/stemforge/stem-forge/backend/internal/model/subject"
	aiService "github.com/stemforge/stem-forge/backend/internal/service/ai"
	chatService "github.com/stemforge/stem-forge/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(subjects subjectModel.Store, chatSvc *chatService.Service, aiSvc *aiService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	tutorHandler := tutor.New(aiSvc, subjects)
	chatHandler := chat.New(chatSvc)
	streamHandler := stream.New(aiSvc, chatSvc)

	r.Route("/api", func(api chi.Router) {
		// Health, backend status, subjects and study tools
		tutorHandler.RegisterRoutes(api)

		// Chat session store
		chatHandler.RegisterRoutes(api)

		// Streaming and single-shot tutor conversations
		streamHandler.RegisterRoutes(api)
	})

	return r
}
