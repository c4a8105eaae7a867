package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestModelCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m, err := st.CreateModel(ctx, "GK-900", "Steam oven", "oven,steam")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	if m.ID == 0 || m.Name != "GK-900" {
		t.Fatalf("unexpected model: %+v", m)
	}

	if _, err := st.CreateModel(ctx, "GK-900", "", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := st.GetModel(ctx, m.ID)
	if err != nil {
		t.Fatalf("get model: %v", err)
	}
	if got.Description != "Steam oven" || got.Tags != "oven,steam" {
		t.Fatalf("unexpected model: %+v", got)
	}

	newName := "GK-900 Pro"
	upd, err := st.UpdateModel(ctx, m.ID, ModelUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("update model: %v", err)
	}
	if upd.Name != "GK-900 Pro" || upd.Description != "Steam oven" {
		t.Fatalf("partial update went wrong: %+v", upd)
	}

	if err := st.DeleteModel(ctx, m.ID); err != nil {
		t.Fatalf("delete model: %v", err)
	}
	if _, err := st.GetModel(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := st.DeleteModel(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestListModelsPagination(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	names := []string{"A-1", "A-2", "A-3", "A-4", "A-5"}
	for _, n := range names {
		if _, err := st.CreateModel(ctx, n, "", ""); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}

	page0, total, err := st.ListModels(ctx, 0, 2)
	if err != nil {
		t.Fatalf("list page 0: %v", err)
	}
	if total != 5 || len(page0) != 2 {
		t.Fatalf("expected total=5 page of 2, got total=%d len=%d", total, len(page0))
	}
	// Newest first, id as the tie break.
	if page0[0].Name != "A-5" || page0[1].Name != "A-4" {
		t.Fatalf("unexpected ordering: %s, %s", page0[0].Name, page0[1].Name)
	}

	page2, _, err := st.ListModels(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].Name != "A-1" {
		t.Fatalf("unexpected last page: %+v", page2)
	}
}

func TestSearchModelsCaseInsensitive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateModel(ctx, "X", "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateModel(ctx, "Toaster", "compact THING", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateModel(ctx, "Kettle", "", "kitchen,Fast"); err != nil {
		t.Fatalf("create: %v", err)
	}

	models, total, err := st.SearchModels(ctx, "x", 0, 10)
	if err != nil {
		t.Fatalf("search name: %v", err)
	}
	if total != 1 || models[0].Name != "X" {
		t.Fatalf("expected X by lowercase query, got total=%d %+v", total, models)
	}

	if _, total, _ = st.SearchModels(ctx, "thing", 0, 10); total != 1 {
		t.Fatalf("expected description match, got %d", total)
	}
	if _, total, _ = st.SearchModels(ctx, "FAST", 0, 10); total != 1 {
		t.Fatalf("expected tag match, got %d", total)
	}
	if _, total, _ = st.SearchModels(ctx, "missing", 0, 10); total != 0 {
		t.Fatalf("expected no match, got %d", total)
	}
}

func TestDocumentCRUDAndBindings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m1, _ := st.CreateModel(ctx, "M1", "", "")
	m2, _ := st.CreateModel(ctx, "M2", "", "")

	url := "https://example.com/doc"
	doc, err := st.CreateDocument(ctx, Document{
		Kind:  KindInstruction,
		Title: "Setup Guide",
		Type:  TypeLink,
		URL:   &url,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.ID == 0 || doc.URL == nil || *doc.URL != url {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.TgFileID != nil {
		t.Fatalf("expected nil file id, got %v", *doc.TgFileID)
	}

	// Dead ids are skipped, not fatal.
	bound, err := st.BindDocumentToModels(ctx, doc.ID, []int64{m1.ID, m2.ID, 9999})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if bound != 2 {
		t.Fatalf("expected 2 bindings, got %d", bound)
	}

	// Binding again is a no-op thanks to the set semantics.
	bound, err = st.BindDocumentToModels(ctx, doc.ID, []int64{m1.ID})
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if bound != 0 {
		t.Fatalf("expected idempotent rebind, got %d new rows", bound)
	}

	docs, err := st.ListDocumentsForModel(ctx, m1.ID, KindInstruction)
	if err != nil {
		t.Fatalf("list for model: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("unexpected documents for model: %+v", docs)
	}
	if docs, _ := st.ListDocumentsForModel(ctx, m1.ID, KindRecipe); len(docs) != 0 {
		t.Fatalf("expected no recipes, got %+v", docs)
	}

	models, err := st.ListModelsForDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list models for document: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %+v", models)
	}

	if err := st.UnbindDocumentFromModel(ctx, doc.ID, m2.ID); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	// Unbinding an absent pair stays a no-op.
	if err := st.UnbindDocumentFromModel(ctx, doc.ID, m2.ID); err != nil {
		t.Fatalf("unbind absent: %v", err)
	}
	models, _ = st.ListModelsForDocument(ctx, doc.ID)
	if len(models) != 1 || models[0].ID != m1.ID {
		t.Fatalf("expected only m1 bound, got %+v", models)
	}

	newTitle := "Setup Guide v2"
	upd, err := st.UpdateDocument(ctx, doc.ID, DocumentUpdate{Title: &newTitle})
	if err != nil {
		t.Fatalf("update document: %v", err)
	}
	if upd.Title != newTitle || upd.Type != TypeLink {
		t.Fatalf("partial update went wrong: %+v", upd)
	}

	if err := st.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, err := st.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDocumentsByKind(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fileID := "BQACAgIAAxkBAAIB"
	for i, kind := range []string{KindInstruction, KindInstruction, KindRecipe} {
		if _, err := st.CreateDocument(ctx, Document{
			Kind:     kind,
			Title:    string(rune('a' + i)),
			Type:     TypePDF,
			TgFileID: &fileID,
		}); err != nil {
			t.Fatalf("create document %d: %v", i, err)
		}
	}

	_, total, err := st.ListDocuments(ctx, KindInstruction, 0, 10)
	if err != nil {
		t.Fatalf("list instructions: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 instructions, got %d", total)
	}
	_, total, _ = st.ListDocuments(ctx, KindRecipe, 0, 10)
	if total != 1 {
		t.Fatalf("expected 1 recipe, got %d", total)
	}
}

func TestUpdateModelDuplicateName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateModel(ctx, "GK-100", "", ""); err != nil {
		t.Fatalf("create first model: %v", err)
	}
	second, err := st.CreateModel(ctx, "GK-200", "", "")
	if err != nil {
		t.Fatalf("create second model: %v", err)
	}

	name := "GK-100"
	if _, err := st.UpdateModel(ctx, second.ID, ModelUpdate{Name: &name}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate when renaming onto a taken name, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"constraint failed: UNIQUE constraint failed: models.name (2067)", true},
		{`ERROR: duplicate key value violates unique constraint "models_name_key" (SQLSTATE 23505)`, true},
		{"connection refused", false},
		{"not found", false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(errors.New(tc.msg)); got != tc.want {
			t.Fatalf("isUniqueViolation(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
	if isUniqueViolation(nil) {
		t.Fatal("nil error must not match")
	}
}
