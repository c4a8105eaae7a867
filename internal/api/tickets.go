package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/semegn89/ozon/internal/storage"
)

type ticketResponse struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	Username  string  `json:"username,omitempty"`
	Status    string  `json:"status"`
	Subject   string  `json:"subject,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	ClosedAt  *string `json:"closed_at,omitempty"`
}

type ticketMessageResponse struct {
	ID        int64   `json:"id"`
	FromRole  string  `json:"from_role"`
	Text      string  `json:"text,omitempty"`
	TgFileID  *string `json:"tg_file_id,omitempty"`
	FileType  *string `json:"file_type,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type ticketDetailResponse struct {
	ticketResponse
	Messages []ticketMessageResponse `json:"messages"`
}

type setTicketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress closed"`
}

func toTicketResponse(t storage.Ticket) ticketResponse {
	resp := ticketResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Username:  t.Username,
		Status:    t.Status,
		Subject:   t.Subject,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.ClosedAt != nil {
		closed := t.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &closed
	}
	return resp
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	var (
		tickets []storage.Ticket
		err     error
	)
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		uid, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			s.renderError(w, r, http.StatusBadRequest, "invalid user_id")
			return
		}
		tickets, err = s.store.ListUserTickets(r.Context(), uid, 100)
	} else {
		tickets, err = s.store.ListOpenTickets(r.Context(), 100)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("list tickets failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	items := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, toTicketResponse(t))
	}
	render.JSON(w, r, listResponse{Items: items, Total: len(items), Page: 0, PageSize: len(items)})
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	t, err := s.store.GetTicket(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, "ticket not found")
			return
		}
		s.logger.Error().Err(err).Int64("ticket_id", id).Msg("get ticket failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	msgs, err := s.store.ListTicketMessages(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("ticket_id", id).Msg("list ticket messages failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to load ticket messages")
		return
	}

	detail := ticketDetailResponse{ticketResponse: toTicketResponse(t)}
	detail.Messages = make([]ticketMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, ticketMessageResponse{
			ID:        m.ID,
			FromRole:  m.FromRole,
			Text:      m.Text,
			TgFileID:  m.TgFileID,
			FileType:  m.FileType,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	render.JSON(w, r, detail)
}

func (s *Server) setTicketStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req setTicketStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.validationError(w, r, err)
		return
	}

	t, err := s.store.SetTicketStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, "ticket not found")
			return
		}
		s.logger.Error().Err(err).Int64("ticket_id", id).Msg("set ticket status failed")
		s.renderError(w, r, http.StatusInternalServerError, "failed to change ticket status")
		return
	}
	render.JSON(w, r, toTicketResponse(t))
}
