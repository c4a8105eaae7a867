package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

const modelColumns = "id, name, description, tags, created_at, updated_at"

func (s *Store) CreateModel(ctx context.Context, name, description, tags string) (Model, error) {
	if _, err := s.GetModelByName(ctx, name); err == nil {
		return Model{}, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return Model{}, err
	}

	q := s.sql.Insert("models").
		Columns("name", "description", "tags").
		Values(name, description, tags)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Model{}, fmt.Errorf("build model insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return Model{}, ErrDuplicate
		}
		return Model{}, fmt.Errorf("insert model: %w", err)
	}
	return s.GetModelByName(ctx, name)
}

// isUniqueViolation matches the duplicate-key errors of both supported
// drivers. A concurrent insert can slip past the name pre-check, so the
// constraint error has to map to ErrDuplicate as well.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func (s *Store) GetModel(ctx context.Context, id int64) (Model, error) {
	return s.getModel(ctx, sq.Eq{"id": id})
}

func (s *Store) GetModelByName(ctx context.Context, name string) (Model, error) {
	return s.getModel(ctx, sq.Eq{"name": name})
}

func (s *Store) getModel(ctx context.Context, where sq.Sqlizer) (Model, error) {
	q := s.sql.Select(modelColumns).From("models").Where(where)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Model{}, fmt.Errorf("build model query: %w", err)
	}
	var m Model
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&m.ID, &m.Name, &m.Description, &m.Tags, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Model{}, ErrNotFound
		}
		return Model{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ListModels returns one page of models, most recently created first,
// along with the total count.
func (s *Store) ListModels(ctx context.Context, page, pageSize int) ([]Model, int, error) {
	return s.listModels(ctx, nil, page, pageSize)
}

// SearchModels matches the query case-insensitively against name,
// description and tags.
func (s *Store) SearchModels(ctx context.Context, query string, page, pageSize int) ([]Model, int, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	where := sq.Or{
		sq.Expr("LOWER(name) LIKE ?", pattern),
		sq.Expr("LOWER(description) LIKE ?", pattern),
		sq.Expr("LOWER(tags) LIKE ?", pattern),
	}
	return s.listModels(ctx, where, page, pageSize)
}

func (s *Store) listModels(ctx context.Context, where sq.Sqlizer, page, pageSize int) ([]Model, int, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	cq := s.sql.Select("COUNT(*)").From("models")
	if where != nil {
		cq = cq.Where(where)
	}
	sqlStr, args, err := cq.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build model count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count models: %w", err)
	}

	q := s.sql.Select(modelColumns).From("models").
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(page * pageSize)).
		Limit(uint64(pageSize))
	if where != nil {
		q = q.Where(where)
	}
	sqlStr, args, err = q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list models query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	out := make([]Model, 0)
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Tags, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan model row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate model rows: %w", err)
	}
	return out, total, nil
}

type ModelUpdate struct {
	Name        *string
	Description *string
	Tags        *string
}

func (s *Store) UpdateModel(ctx context.Context, id int64, upd ModelUpdate) (Model, error) {
	q := s.sql.Update("models").
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"id": id})
	if upd.Name != nil {
		q = q.Set("name", *upd.Name)
	}
	if upd.Description != nil {
		q = q.Set("description", *upd.Description)
	}
	if upd.Tags != nil {
		q = q.Set("tags", *upd.Tags)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Model{}, fmt.Errorf("build model update query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return Model{}, ErrDuplicate
		}
		return Model{}, fmt.Errorf("update model: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return Model{}, ErrNotFound
	}
	return s.GetModel(ctx, id)
}

func (s *Store) DeleteModel(ctx context.Context, id int64) error {
	q := s.sql.Delete("models").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete model query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const documentColumns = "id, kind, title, type, description, tg_file_id, url, created_at, updated_at"

func (s *Store) CreateDocument(ctx context.Context, d Document) (Document, error) {
	if !ValidDocumentType(d.Type) {
		return Document{}, fmt.Errorf("invalid document type %q", d.Type)
	}
	if d.Kind != KindInstruction && d.Kind != KindRecipe {
		return Document{}, fmt.Errorf("invalid document kind %q", d.Kind)
	}

	q := s.sql.Insert("documents").
		Columns("kind", "title", "type", "description", "tg_file_id", "url").
		Values(d.Kind, d.Title, d.Type, d.Description, d.TgFileID, d.URL).
		Suffix("RETURNING id")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Document{}, fmt.Errorf("build document insert query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return s.GetDocument(ctx, id)
}

func (s *Store) GetDocument(ctx context.Context, id int64) (Document, error) {
	q := s.sql.Select(documentColumns).From("documents").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Document{}, fmt.Errorf("build document query: %w", err)
	}
	var d Document
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&d.ID, &d.Kind, &d.Title, &d.Type, &d.Description, &d.TgFileID, &d.URL, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, kind string, page, pageSize int) ([]Document, int, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	where := sq.Eq{"kind": kind}

	sqlStr, args, err := s.sql.Select("COUNT(*)").From("documents").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build document count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	q := s.sql.Select(documentColumns).From("documents").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(page * pageSize)).
		Limit(uint64(pageSize))
	sqlStr, args, err = q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list documents query: %w", err)
	}
	docs, err := s.queryDocuments(ctx, sqlStr, args)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

type DocumentUpdate struct {
	Title       *string
	Type        *string
	Description *string
	TgFileID    *string
	URL         *string
}

func (s *Store) UpdateDocument(ctx context.Context, id int64, upd DocumentUpdate) (Document, error) {
	if upd.Type != nil && !ValidDocumentType(*upd.Type) {
		return Document{}, fmt.Errorf("invalid document type %q", *upd.Type)
	}
	q := s.sql.Update("documents").
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"id": id})
	if upd.Title != nil {
		q = q.Set("title", *upd.Title)
	}
	if upd.Type != nil {
		q = q.Set("type", *upd.Type)
	}
	if upd.Description != nil {
		q = q.Set("description", *upd.Description)
	}
	if upd.TgFileID != nil {
		q = q.Set("tg_file_id", *upd.TgFileID)
	}
	if upd.URL != nil {
		q = q.Set("url", *upd.URL)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Document{}, fmt.Errorf("build document update query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Document{}, fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return Document{}, ErrNotFound
	}
	return s.GetDocument(ctx, id)
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	q := s.sql.Delete("documents").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete document query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// BindDocumentToModels links a document to every model id that still
// exists. Binding is set-like: already-bound pairs and unknown model ids
// are skipped, never errors. Returns the number of new bindings.
func (s *Store) BindDocumentToModels(ctx context.Context, documentID int64, modelIDs []int64) (int, error) {
	if len(modelIDs) == 0 {
		return 0, nil
	}
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return 0, err
	}

	sqlStr, args, err := s.sql.Select("id").From("models").Where(sq.Eq{"id": modelIDs}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build existing models query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("query existing models: %w", err)
	}
	defer rows.Close()

	existing := make([]int64, 0, len(modelIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan model id: %w", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate model ids: %w", err)
	}

	bound := 0
	for _, modelID := range existing {
		q := s.sql.Insert("model_documents").
			Columns("model_id", "document_id").
			Values(modelID, documentID).
			Suffix("ON CONFLICT DO NOTHING")
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return bound, fmt.Errorf("build bind query: %w", err)
		}
		res, err := s.db.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return bound, fmt.Errorf("bind document %d to model %d: %w", documentID, modelID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			bound += int(n)
		}
	}
	return bound, nil
}

// UnbindDocumentFromModel removes one binding. Removing an absent
// binding is a no-op.
func (s *Store) UnbindDocumentFromModel(ctx context.Context, documentID, modelID int64) error {
	q := s.sql.Delete("model_documents").
		Where(sq.Eq{"model_id": modelID, "document_id": documentID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build unbind query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("unbind document: %w", err)
	}
	return nil
}

func (s *Store) ListDocumentsForModel(ctx context.Context, modelID int64, kind string) ([]Document, error) {
	q := s.sql.Select(
		"d.id", "d.kind", "d.title", "d.type", "d.description", "d.tg_file_id", "d.url", "d.created_at", "d.updated_at",
	).From("documents d").
		Join("model_documents md ON md.document_id = d.id").
		Where(sq.Eq{"md.model_id": modelID, "d.kind": kind}).
		OrderBy("d.created_at DESC", "d.id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build documents for model query: %w", err)
	}
	return s.queryDocuments(ctx, sqlStr, args)
}

func (s *Store) ListModelsForDocument(ctx context.Context, documentID int64) ([]Model, error) {
	q := s.sql.Select(
		"m.id", "m.name", "m.description", "m.tags", "m.created_at", "m.updated_at",
	).From("models m").
		Join("model_documents md ON md.model_id = m.id").
		Where(sq.Eq{"md.document_id": documentID}).
		OrderBy("m.name ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build models for document query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list models for document: %w", err)
	}
	defer rows.Close()

	out := make([]Model, 0)
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Tags, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model rows: %w", err)
	}
	return out, nil
}

func (s *Store) queryDocuments(ctx context.Context, sqlStr string, args []any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var d Document
		if err := rows.Scan(
			&d.ID, &d.Kind, &d.Title, &d.Type, &d.Description, &d.TgFileID, &d.URL, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}
