package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/rs/zerolog"

	"github.com/semegn89/ozon/internal/session"
	"github.com/semegn89/ozon/internal/storage"
	"github.com/semegn89/ozon/internal/wizard"
)

func newTestService(t *testing.T) (*Service, *storage.Store, session.Store) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	st, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sessions := session.NewMemoryStore()
	svc := NewService(Config{
		Store:    st,
		Sessions: sessions,
		Logger:   zerolog.Nop(),
		AdminIDs: []int64{1},
	})
	return svc, st, sessions
}

func confirmSession(uid int64, modelIDs []int64) *wizard.Session {
	sess := wizard.NewSession(uid, wizard.FlowDocumentCreate, wizard.StateConfirm)
	sess.Fields = wizard.Fields{
		Kind:     storage.KindInstruction,
		Title:    "Setup Guide",
		Type:     storage.TypeLink,
		URL:      "https://example.com/doc",
		ModelIDs: modelIDs,
	}
	return sess
}

func TestFinalizeDocument(t *testing.T) {
	svc, st, sessions := newTestService(t)
	ctx := context.Background()

	m, err := st.CreateModel(ctx, "GK-1", "", "")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	if err := sessions.Set(ctx, 1, confirmSession(1, []int64{m.ID})); err != nil {
		t.Fatalf("set session: %v", err)
	}

	doc, bound, err := svc.finalizeDocument(ctx, 1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if doc.Title != "Setup Guide" || doc.Type != storage.TypeLink {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.URL == nil || *doc.URL != "https://example.com/doc" {
		t.Fatalf("url not stored: %+v", doc)
	}
	if bound != 1 {
		t.Fatalf("expected 1 binding, got %d", bound)
	}

	got, _ := sessions.Get(ctx, 1)
	if got != nil {
		t.Fatalf("expected session cleared after finalize, got %+v", got)
	}

	docs, err := st.ListDocumentsForModel(ctx, m.ID, storage.KindInstruction)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("binding missing: %+v", docs)
	}
}

func TestFinalizeDocumentIdempotentAfterClear(t *testing.T) {
	svc, st, sessions := newTestService(t)
	ctx := context.Background()

	if err := sessions.Set(ctx, 1, confirmSession(1, nil)); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if _, _, err := svc.finalizeDocument(ctx, 1); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	// A stale second save must not create another document.
	if _, _, err := svc.finalizeDocument(ctx, 1); !errors.Is(err, errSessionExpired) {
		t.Fatalf("expected errSessionExpired, got %v", err)
	}
	_, total, err := st.ListDocuments(ctx, storage.KindInstruction, 0, 10)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one document, got %d", total)
	}
}

func TestFinalizeDocumentRequiresConfirmState(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	sess := confirmSession(1, nil)
	sess.State = wizard.StateBindModels
	if err := sessions.Set(ctx, 1, sess); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if _, _, err := svc.finalizeDocument(ctx, 1); !errors.Is(err, errSessionExpired) {
		t.Fatalf("expected errSessionExpired for pre-confirm state, got %v", err)
	}
}

func TestFinalizeDocumentSkipsDeadModelIDs(t *testing.T) {
	svc, st, sessions := newTestService(t)
	ctx := context.Background()

	m, _ := st.CreateModel(ctx, "GK-2", "", "")
	if err := sessions.Set(ctx, 1, confirmSession(1, []int64{m.ID, 9999})); err != nil {
		t.Fatalf("set session: %v", err)
	}

	_, bound, err := svc.finalizeDocument(ctx, 1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if bound != 1 {
		t.Fatalf("expected dead id skipped with 1 binding, got %d", bound)
	}
}

func TestFinalizeDocumentKeepsSessionOnFailure(t *testing.T) {
	svc, st, sessions := newTestService(t)
	ctx := context.Background()

	if err := sessions.Set(ctx, 1, confirmSession(1, nil)); err != nil {
		t.Fatalf("set session: %v", err)
	}
	// Force the insert to fail.
	_ = st.Close()

	_, _, err := svc.finalizeDocument(ctx, 1)
	if err == nil || errors.Is(err, errSessionExpired) {
		t.Fatalf("expected a persistence error, got %v", err)
	}

	got, gerr := sessions.Get(ctx, 1)
	if gerr != nil {
		t.Fatalf("get session: %v", gerr)
	}
	if got == nil {
		t.Fatal("session must survive a failed finalize so save can be retried")
	}
	if got.Fields.Title != "Setup Guide" {
		t.Fatalf("accumulated fields lost: %+v", got.Fields)
	}
}

func TestWizardTypeIgnoresStalePress(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	sess := confirmSession(1, nil)
	sess.State = wizard.StateBindModels
	sess.Fields.Type = storage.TypePDF
	sess.Fields.TgFileID = "file-1"
	sess.Fields.URL = ""
	if err := sessions.Set(ctx, 1, sess); err != nil {
		t.Fatalf("set session: %v", err)
	}

	// A type keyboard left over in chat history must not advance the
	// flow or overwrite the already accepted type.
	if err := svc.wizardType(&ext.Context{}, nil, sess, "link"); err != nil {
		t.Fatalf("wizardType: %v", err)
	}
	if sess.State != wizard.StateBindModels {
		t.Fatalf("state advanced on stale press: %s", sess.State)
	}
	if sess.Fields.Type != storage.TypePDF {
		t.Fatalf("accepted type overwritten: %s", sess.Fields.Type)
	}

	stored, err := sessions.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored == nil || stored.State != wizard.StateBindModels || stored.Fields.Type != storage.TypePDF {
		t.Fatalf("stored session changed: %+v", stored)
	}
}

func TestWizardSkipModelFlow(t *testing.T) {
	svc, st, sessions := newTestService(t)
	ctx := context.Background()

	sess := wizard.NewSession(1, wizard.FlowModelCreate, wizard.StateModelDescription)
	sess.Fields.Name = "GK-77"
	if err := sessions.Set(ctx, 1, sess); err != nil {
		t.Fatalf("set session: %v", err)
	}

	if err := svc.wizardSkip(&ext.Context{}, nil, sess); err != nil {
		t.Fatalf("skip description: %v", err)
	}
	stored, err := sessions.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored == nil || stored.State != wizard.StateModelTags {
		t.Fatalf("skip did not advance to the tags step: %+v", stored)
	}

	if err := svc.wizardSkip(&ext.Context{}, nil, stored); err != nil {
		t.Fatalf("skip tags: %v", err)
	}
	if got, _ := sessions.Get(ctx, 1); got != nil {
		t.Fatalf("expected session cleared after the model is written, got %+v", got)
	}
	m, err := st.GetModelByName(ctx, "GK-77")
	if err != nil {
		t.Fatalf("model not created by skipping both steps: %v", err)
	}
	if m.Description != "" || m.Tags != "" {
		t.Fatalf("skipped fields should stay empty: %+v", m)
	}
}

func TestWizardSkipDeniedOutsideSkippableSteps(t *testing.T) {
	svc, _, sessions := newTestService(t)
	ctx := context.Background()

	sess := wizard.NewSession(1, wizard.FlowDocumentCreate, wizard.StateTitle)
	if err := sessions.Set(ctx, 1, sess); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if err := svc.wizardSkip(&ext.Context{}, nil, sess); err != nil {
		t.Fatalf("wizardSkip: %v", err)
	}
	stored, _ := sessions.Get(ctx, 1)
	if stored == nil || stored.State != wizard.StateTitle {
		t.Fatalf("skip must not move a non-skippable step: %+v", stored)
	}
}
