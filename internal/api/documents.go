package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/semegn89/ozon/internal/storage"
)

type documentResponse struct {
	ID          int64   `json:"id"`
	Kind        string  `json:"kind"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	TgFileID    *string `json:"tg_file_id,omitempty"`
	URL         *string `json:"url,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type createDocumentRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=300"`
	Type        string  `json:"type" validate:"required,oneof=pdf video link"`
	Description string  `json:"description" validate:"max=2000"`
	TgFileID    string  `json:"tg_file_id" validate:"max=300"`
	URL         string  `json:"url" validate:"omitempty,url,required_if=Type link"`
	ModelIDs    []int64 `json:"model_ids" validate:"dive,gt=0"`
}

type updateDocumentRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=300"`
	Type        *string `json:"type" validate:"omitempty,oneof=pdf video link"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	TgFileID    *string `json:"tg_file_id" validate:"omitempty,max=300"`
	URL         *string `json:"url" validate:"omitempty,url"`
}

func toDocumentResponse(d storage.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Kind:        d.Kind,
		Title:       d.Title,
		Type:        d.Type,
		Description: d.Description,
		TgFileID:    d.TgFileID,
		URL:         d.URL,
		CreatedAt:   d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toDocumentResponses(docs []storage.Document) []documentResponse {
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	return out
}

func (s *Server) listDocuments(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := s.pageParams(r)
		docs, total, err := s.store.ListDocuments(r.Context(), kind, page, pageSize)
		if err != nil {
			s.logger.Error().Err(err).Str("kind", kind).Msg("list documents failed")
			s.renderError(w, r, http.StatusInternalServerError, "failed to list documents")
			return
		}
		render.JSON(w, r, listResponse{Items: toDocumentResponses(docs), Total: total, Page: page, PageSize: pageSize})
	}
}

func (s *Server) createDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.renderError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.validate.Struct(req); err != nil {
			s.validationError(w, r, err)
			return
		}
		if req.TgFileID == "" && req.URL == "" {
			s.renderError(w, r, http.StatusUnprocessableEntity, "either tg_file_id or url is required")
			return
		}

		doc := storage.Document{
			Kind:        kind,
			Title:       req.Title,
			Type:        req.Type,
			Description: req.Description,
		}
		if req.TgFileID != "" {
			doc.TgFileID = &req.TgFileID
		}
		if req.URL != "" {
			doc.URL = &req.URL
		}

		created, err := s.store.CreateDocument(r.Context(), doc)
		if err != nil {
			s.logger.Error().Err(err).Msg("create document failed")
			s.renderError(w, r, http.StatusInternalServerError, "failed to create document")
			return
		}
		if len(req.ModelIDs) > 0 {
			if _, err := s.store.BindDocumentToModels(r.Context(), created.ID, req.ModelIDs); err != nil {
				s.logger.Error().Err(err).Int64("document_id", created.ID).Msg("bind document failed")
			}
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, toDocumentResponse(created))
	}
}

func (s *Server) getDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := s.loadDocument(w, r, kind)
		if !ok {
			return
		}
		render.JSON(w, r, toDocumentResponse(d))
	}
}

func (s *Server) updateDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := s.loadDocument(w, r, kind)
		if !ok {
			return
		}
		var req updateDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.renderError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.validate.Struct(req); err != nil {
			s.validationError(w, r, err)
			return
		}

		updated, err := s.store.UpdateDocument(r.Context(), d.ID, storage.DocumentUpdate{
			Title:       req.Title,
			Type:        req.Type,
			Description: req.Description,
			TgFileID:    req.TgFileID,
			URL:         req.URL,
		})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.renderError(w, r, http.StatusNotFound, "document not found")
				return
			}
			s.logger.Error().Err(err).Int64("document_id", d.ID).Msg("update document failed")
			s.renderError(w, r, http.StatusInternalServerError, "failed to update document")
			return
		}
		render.JSON(w, r, toDocumentResponse(updated))
	}
}

func (s *Server) deleteDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := s.loadDocument(w, r, kind)
		if !ok {
			return
		}
		if err := s.store.DeleteDocument(r.Context(), d.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.renderError(w, r, http.StatusNotFound, "document not found")
				return
			}
			s.logger.Error().Err(err).Int64("document_id", d.ID).Msg("delete document failed")
			s.renderError(w, r, http.StatusInternalServerError, "failed to delete document")
			return
		}
		render.NoContent(w, r)
	}
}

// loadDocument fetches the document behind {id} and hides documents of
// the other kind, so an instruction id is a 404 under /recipes.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request, kind string) (storage.Document, bool) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "invalid id")
		return storage.Document{}, false
	}
	d, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, "document not found")
			return storage.Document{}, false
		}
		s.logger.Error().Err(err).Int64("document_id", id).Msg("get document failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to load document")
		return storage.Document{}, false
	}
	if d.Kind != kind {
		s.renderError(w, r, http.StatusNotFound, "document not found")
		return storage.Document{}, false
	}
	return d, true
}
