// Package api is the JSON backend for the companion web mini-app. It
// exposes the same catalog and ticket data the bot serves, as plain
// CRUD endpoints with permissive CORS for the in-Telegram web view.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/semegn89/ozon/internal/storage"
)

type Server struct {
	store    *storage.Store
	logger   zerolog.Logger
	validate *validator.Validate
	pageSize int
}

func New(store *storage.Store, logger zerolog.Logger, defaultPageSize int) *Server {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &Server{
		store:    store,
		logger:   logger,
		validate: validator.New(),
		pageSize: defaultPageSize,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(corsMiddleware)

	r.Get("/health", s.health)
	r.Get("/search", s.searchModels)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.listModels)
		r.Post("/", s.createModel)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getModel)
			r.Patch("/", s.updateModel)
			r.Delete("/", s.deleteModel)
			r.Get("/instructions", s.listModelDocuments(storage.KindInstruction))
			r.Get("/recipes", s.listModelDocuments(storage.KindRecipe))
		})
	})

	r.Route("/instructions", func(r chi.Router) {
		s.documentRoutes(r, storage.KindInstruction)
	})
	r.Route("/recipes", func(r chi.Router) {
		s.documentRoutes(r, storage.KindRecipe)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", s.listTickets)
		r.Get("/{id}", s.getTicket)
		r.Post("/{id}/status", s.setTicketStatus)
	})

	return r
}

func (s *Server) documentRoutes(r chi.Router, kind string) {
	r.Get("/", s.listDocuments(kind))
	r.Post("/", s.createDocument(kind))
	r.Get("/{id}", s.getDocument(kind))
	r.Patch("/{id}", s.updateDocument(kind))
	r.Delete("/{id}", s.deleteDocument(kind))
}

// corsMiddleware keeps the API reachable from the web mini-app, which
// is served from a different origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, models, err := s.store.ListModels(ctx, 0, 1)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, "storage unavailable")
		return
	}
	_, instructions, _ := s.store.ListDocuments(ctx, storage.KindInstruction, 0, 1)
	_, recipes, _ := s.store.ListDocuments(ctx, storage.KindRecipe, 0, 1)
	stats, _ := s.store.TicketStats(ctx)

	render.JSON(w, r, map[string]any{
		"status":       "ok",
		"models":       models,
		"instructions": instructions,
		"recipes":      recipes,
		"tickets":      stats,
	})
}

func (s *Server) pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = s.pageSize
	}
	return page, pageSize
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func (s *Server) validationError(w http.ResponseWriter, r *http.Request, err error) {
	s.renderError(w, r, http.StatusUnprocessableEntity, err.Error())
}
