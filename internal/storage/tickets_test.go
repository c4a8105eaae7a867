package storage

import (
	"context"
	"errors"
	"testing"
)

func TestTicketLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tk, err := st.CreateTicket(ctx, 100, "alice", "Oven will not heat")
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if tk.Status != StatusOpen || tk.ClosedAt != nil {
		t.Fatalf("new ticket should be open with no closed_at: %+v", tk)
	}

	tk, err = st.SetTicketStatus(ctx, tk.ID, StatusInProgress)
	if err != nil {
		t.Fatalf("set in_progress: %v", err)
	}
	if tk.Status != StatusInProgress || tk.ClosedAt != nil {
		t.Fatalf("in_progress must not set closed_at: %+v", tk)
	}

	tk, err = st.SetTicketStatus(ctx, tk.ID, StatusClosed)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if tk.Status != StatusClosed || tk.ClosedAt == nil {
		t.Fatalf("closed ticket must carry closed_at: %+v", tk)
	}

	// Reopening clears closed_at so the invariant holds both ways.
	tk, err = st.SetTicketStatus(ctx, tk.ID, StatusOpen)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if tk.Status != StatusOpen || tk.ClosedAt != nil {
		t.Fatalf("reopened ticket must not carry closed_at: %+v", tk)
	}

	if _, err := st.SetTicketStatus(ctx, tk.ID, "bogus"); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
	if _, err := st.SetTicketStatus(ctx, 9999, StatusClosed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTicketMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tk, err := st.CreateTicket(ctx, 200, "bob", "No steam")
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	m1, err := st.AppendTicketMessage(ctx, tk.ID, RoleUser, "It stopped steaming", nil, nil)
	if err != nil {
		t.Fatalf("append user message: %v", err)
	}
	if m1.ID == 0 || m1.CreatedAt.IsZero() {
		t.Fatalf("unexpected message: %+v", m1)
	}

	fileID := "BQACAgIAAxkBAAIC"
	fileType := "photo"
	if _, err := st.AppendTicketMessage(ctx, tk.ID, RoleAdmin, "Send a photo of the tank", &fileID, &fileType); err != nil {
		t.Fatalf("append admin message: %v", err)
	}

	if _, err := st.AppendTicketMessage(ctx, tk.ID, "ghost", "x", nil, nil); err == nil {
		t.Fatal("expected invalid role to be rejected")
	}
	if _, err := st.AppendTicketMessage(ctx, 9999, RoleUser, "x", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing ticket, got %v", err)
	}

	msgs, err := st.ListTicketMessages(ctx, tk.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Oldest first.
	if msgs[0].FromRole != RoleUser || msgs[1].FromRole != RoleAdmin {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if msgs[1].TgFileID == nil || *msgs[1].TgFileID != fileID {
		t.Fatalf("attachment lost: %+v", msgs[1])
	}
}

func TestTicketListsAndStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t1, _ := st.CreateTicket(ctx, 1, "a", "first")
	t2, _ := st.CreateTicket(ctx, 1, "a", "second")
	t3, _ := st.CreateTicket(ctx, 2, "b", "third")

	if _, err := st.SetTicketStatus(ctx, t2.ID, StatusInProgress); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := st.SetTicketStatus(ctx, t3.ID, StatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	mine, err := st.ListUserTickets(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list user tickets: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 tickets for user 1, got %d", len(mine))
	}

	open, err := st.ListOpenTickets(ctx, 10)
	if err != nil {
		t.Fatalf("list open tickets: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open/in_progress tickets, got %d", len(open))
	}
	for _, tk := range open {
		if tk.ID == t3.ID {
			t.Fatal("closed ticket leaked into the open queue")
		}
	}
	if open[0].ID != t1.ID && open[0].ID != t2.ID {
		t.Fatalf("unexpected queue contents: %+v", open)
	}

	stats, err := st.TicketStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StatusOpen] != 1 || stats[StatusInProgress] != 1 || stats[StatusClosed] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
