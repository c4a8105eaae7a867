package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/semegn89/ozon/internal/storage"
)

type modelResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type listResponse struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type createModelRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Tags        string `json:"tags" validate:"max=500"`
}

type updateModelRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Tags        *string `json:"tags" validate:"omitempty,max=500"`
}

func toModelResponse(m storage.Model) modelResponse {
	return modelResponse{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Tags:        m.Tags,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toModelResponses(models []storage.Model) []modelResponse {
	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, toModelResponse(m))
	}
	return out
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	page, pageSize := s.pageParams(r)
	q := r.URL.Query().Get("q")

	var (
		models []storage.Model
		total  int
		err    error
	)
	if q != "" {
		models, total, err = s.store.SearchModels(r.Context(), q, page, pageSize)
	} else {
		models, total, err = s.store.ListModels(r.Context(), page, pageSize)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("list models failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to list models")
		return
	}
	render.JSON(w, r, listResponse{Items: toModelResponses(models), Total: total, Page: page, PageSize: pageSize})
}

// searchModels mirrors the bot's /search command for the mini-app.
func (s *Server) searchModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.renderError(w, r, http.StatusBadRequest, "q is required")
		return
	}
	page, pageSize := s.pageParams(r)
	models, total, err := s.store.SearchModels(r.Context(), q, page, pageSize)
	if err != nil {
		s.logger.Error().Err(err).Str("query", q).Msg("search failed")
		s.renderError(w, r, http.StatusInternalServerError, "search failed")
		return
	}
	render.JSON(w, r, listResponse{Items: toModelResponses(models), Total: total, Page: page, PageSize: pageSize})
}

func (s *Server) createModel(w http.ResponseWriter, r *http.Request) {
	var req createModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.validationError(w, r, err)
		return
	}

	m, err := s.store.CreateModel(r.Context(), req.Name, req.Description, req.Tags)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			s.renderError(w, r, http.StatusConflict, "model name already exists")
			return
		}
		s.logger.Error().Err(err).Msg("create model failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to create model")
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toModelResponse(m))
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := s.store.GetModel(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, "model not found")
			return
		}
		s.logger.Error().Err(err).Int64("model_id", id).Msg("get model failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to load model")
		return
	}
	render.JSON(w, r, toModelResponse(m))
}

func (s *Server) updateModel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.validationError(w, r, err)
		return
	}

	m, err := s.store.UpdateModel(r.Context(), id, storage.ModelUpdate{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.renderError(w, r, http.StatusNotFound, "model not found")
		case errors.Is(err, storage.ErrDuplicate):
			s.renderError(w, r, http.StatusConflict, "model name already exists")
		default:
			s.logger.Error().Err(err).Int64("model_id", id).Msg("update model failed")
			s.renderError(w, r, http.StatusInternalServerError, "failed to update model")
		}
		return
	}
	render.JSON(w, r, toModelResponse(m))
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.store.DeleteModel(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, "model not found")
			return
		}
		s.logger.Error().Err(err).Int64("model_id", id).Msg("delete model failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to delete model")
		return
	}
	render.NoContent(w, r)
}

func (s *Server) listModelDocuments(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r)
		if !ok {
			s.renderError(w, r, http.StatusBadRequest, "invalid id")
			return
		}
		if _, err := s.store.GetModel(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.renderError(w, r, http.StatusNotFound, "model not found")
				return
			}
			s.renderError(w, r, http.StatusInternalServerError, "failed to load model")
			return
		}
		docs, err := s.store.ListDocumentsForModel(r.Context(), id, kind)
		if err != nil {
			s.logger.Error().Err(err).Int64("model_id", id).Str("kind", kind).Msg("list model documents failed")
			s.renderError(w, r, http.StatusInternalServerError, "failed to list documents")
			return
		}
		render.JSON(w, r, listResponse{Items: toDocumentResponses(docs), Total: len(docs), Page: 0, PageSize: len(docs)})
	}
}
