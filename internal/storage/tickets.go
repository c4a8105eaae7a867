package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const ticketColumns = "id, user_id, username, status, subject, created_at, updated_at, closed_at"

func (s *Store) CreateTicket(ctx context.Context, userID int64, username, subject string) (Ticket, error) {
	q := s.sql.Insert("tickets").
		Columns("user_id", "username", "status", "subject").
		Values(userID, username, StatusOpen, subject).
		Suffix("RETURNING id")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Ticket{}, fmt.Errorf("build ticket insert query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return s.GetTicket(ctx, id)
}

func (s *Store) GetTicket(ctx context.Context, id int64) (Ticket, error) {
	q := s.sql.Select(ticketColumns).From("tickets").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Ticket{}, fmt.Errorf("build ticket query: %w", err)
	}
	var t Ticket
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&t.ID, &t.UserID, &t.Username, &t.Status, &t.Subject, &t.CreatedAt, &t.UpdatedAt, &t.ClosedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (s *Store) ListUserTickets(ctx context.Context, userID int64, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.sql.Select(ticketColumns).From("tickets").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	return s.queryTickets(ctx, q)
}

// ListOpenTickets returns tickets an admin still has to deal with, i.e.
// anything not closed.
func (s *Store) ListOpenTickets(ctx context.Context, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.sql.Select(ticketColumns).From("tickets").
		Where(sq.Eq{"status": []string{StatusOpen, StatusInProgress}}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	return s.queryTickets(ctx, q)
}

// SetTicketStatus updates the status and keeps closed_at in sync:
// it is set when the ticket transitions to closed and cleared otherwise.
func (s *Store) SetTicketStatus(ctx context.Context, id int64, status string) (Ticket, error) {
	if !ValidTicketStatus(status) {
		return Ticket{}, fmt.Errorf("invalid ticket status %q", status)
	}
	q := s.sql.Update("tickets").
		Set("status", status).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"id": id})
	if status == StatusClosed {
		q = q.Set("closed_at", nowExpr(s.driver))
	} else {
		q = q.Set("closed_at", nil)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Ticket{}, fmt.Errorf("build ticket status query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Ticket{}, fmt.Errorf("set ticket status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return Ticket{}, ErrNotFound
	}
	return s.GetTicket(ctx, id)
}

func (s *Store) AppendTicketMessage(ctx context.Context, ticketID int64, fromRole, text string, tgFileID, fileType *string) (TicketMessage, error) {
	if fromRole != RoleUser && fromRole != RoleAdmin {
		return TicketMessage{}, fmt.Errorf("invalid message role %q", fromRole)
	}
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return TicketMessage{}, err
	}

	q := s.sql.Insert("ticket_messages").
		Columns("ticket_id", "from_role", "text", "tg_file_id", "file_type").
		Values(ticketID, fromRole, text, tgFileID, fileType).
		Suffix("RETURNING id, created_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return TicketMessage{}, fmt.Errorf("build ticket message insert query: %w", err)
	}
	msg := TicketMessage{TicketID: ticketID, FromRole: fromRole, Text: text, TgFileID: tgFileID, FileType: fileType}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return TicketMessage{}, fmt.Errorf("insert ticket message: %w", err)
	}

	uq := s.sql.Update("tickets").
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"id": ticketID})
	sqlStr, args, err = uq.ToSql()
	if err != nil {
		return TicketMessage{}, fmt.Errorf("build ticket touch query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return TicketMessage{}, fmt.Errorf("touch ticket: %w", err)
	}
	return msg, nil
}

func (s *Store) ListTicketMessages(ctx context.Context, ticketID int64) ([]TicketMessage, error) {
	q := s.sql.Select("id", "ticket_id", "from_role", "text", "tg_file_id", "file_type", "created_at").
		From("ticket_messages").
		Where(sq.Eq{"ticket_id": ticketID}).
		OrderBy("created_at ASC", "id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket messages query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list ticket messages: %w", err)
	}
	defer rows.Close()

	out := make([]TicketMessage, 0)
	for rows.Next() {
		var m TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.FromRole, &m.Text, &m.TgFileID, &m.FileType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket message rows: %w", err)
	}
	return out, nil
}

// TicketStats returns the ticket count per status.
func (s *Store) TicketStats(ctx context.Context) (map[string]int, error) {
	q := s.sql.Select("status", "COUNT(*)").From("tickets").GroupBy("status")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket stats query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{StatusOpen: 0, StatusInProgress: 0, StatusClosed: 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan ticket stats row: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket stats rows: %w", err)
	}
	return stats, nil
}

func (s *Store) queryTickets(ctx context.Context, q sq.SelectBuilder) ([]Ticket, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tickets query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	out := make([]Ticket, 0)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.UserID, &t.Username, &t.Status, &t.Subject, &t.CreatedAt, &t.UpdatedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan ticket row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket rows: %w", err)
	}
	return out, nil
}
