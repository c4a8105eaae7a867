package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*StreamQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewStreamQueue(rdb, "gakshop:notify", "gakshop-notifiers", "test-consumer", 10*time.Millisecond)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return q, mr
}

func TestQueueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Job{
		Kind:       KindTicketOpened,
		TicketID:   7,
		FromUserID: 100,
		Username:   "alice",
		Subject:    "Oven broken",
		Text:       "It sparks",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected a stream id")
	}

	msgs, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	job := msgs[0].Job
	if job.Kind != KindTicketOpened || job.TicketID != 7 || job.Username != "alice" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.JobID == "" || job.EnqueuedAt.IsZero() {
		t.Fatalf("expected job id and timestamp assigned, got %+v", job)
	}

	if err := q.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	msgs, err = q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read after ack: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected stream drained, got %d", len(msgs))
	}
}

func TestEnsureGroupIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("second ensure group: %v", err)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRateLimiter(rdb, 2)
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	allowed, used, _, err := rl.Allow(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, resetAt, err := rl.Allow(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}
	if !resetAt.Equal(now.Truncate(time.Hour).Add(time.Hour)) {
		t.Fatalf("unexpected reset time: %v", resetAt)
	}

	// A different user gets a fresh counter.
	allowed, _, _, err = rl.Allow(context.Background(), 2, now)
	if err != nil {
		t.Fatalf("allow other user: %v", err)
	}
	if !allowed {
		t.Fatal("expected other user allowed")
	}
}

func TestUpdateDeduplicator(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewUpdateDeduplicator(rdb, time.Hour)
	first, err := d.MarkFirst(context.Background(), 555)
	if err != nil {
		t.Fatalf("mark#1: %v", err)
	}
	if !first {
		t.Fatal("expected first delivery to pass")
	}
	first, err = d.MarkFirst(context.Background(), 555)
	if err != nil {
		t.Fatalf("mark#2: %v", err)
	}
	if first {
		t.Fatal("expected duplicate delivery to be dropped")
	}
}

func TestFormatJob(t *testing.T) {
	opened := FormatJob(Job{Kind: KindTicketOpened, TicketID: 3, FromUserID: 9, Username: "bob", Subject: "s", Text: "t"})
	if !strings.Contains(opened, "New ticket T-3") || !strings.Contains(opened, "@bob") {
		t.Fatalf("unexpected opened text: %q", opened)
	}

	msg := FormatJob(Job{Kind: KindTicketMessage, TicketID: 3, FromUserID: 9, Text: "hello"})
	if !strings.Contains(msg, "New message in ticket T-3") || !strings.Contains(msg, "@unknown") {
		t.Fatalf("unexpected message text: %q", msg)
	}

	if got := FormatJob(Job{Kind: "bogus"}); got != "" {
		t.Fatalf("expected empty text for unknown kind, got %q", got)
	}
}
