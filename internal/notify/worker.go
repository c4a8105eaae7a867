package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"

	"github.com/semegn89/ozon/internal/metrics"
)

// Worker drains the notify stream and delivers each job to every
// configured admin chat.
type Worker struct {
	bot           *gotgbot.Bot
	queue         *StreamQueue
	adminChatIDs  []int64
	maxJobRetries int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Bot           *gotgbot.Bot
	Queue         *StreamQueue
	AdminChatIDs  []int64
	MaxJobRetries int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	return &Worker{
		bot:           cfg.Bot,
		queue:         cfg.Queue,
		adminChatIDs:  cfg.AdminChatIDs,
		maxJobRetries: cfg.MaxJobRetries,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read notify queue")
			time.Sleep(1 * time.Second)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			err := w.deliver(ctx, msg.Job)
			if err == nil {
				w.metrics.NotifyProcessed.Inc()
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
				}
				continue
			}

			w.metrics.NotifyFailed.Inc()
			log.Error().Err(err).Str("job_id", msg.Job.JobID).Int("attempt", msg.Job.Attempts).Msg("notify job failed")

			if msg.Job.Attempts < w.maxJobRetries {
				msg.Job.Attempts++
				if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
					log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue notify job")
					continue
				}
			}
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack failed message")
			}
		}
	}
}

// deliver succeeds when at least one admin received the message; a
// single unreachable admin must not keep the job in the stream forever.
func (w *Worker) deliver(ctx context.Context, job Job) error {
	text := FormatJob(job)
	if text == "" {
		return nil
	}

	delivered := 0
	var lastErr error
	for _, adminID := range w.adminChatIDs {
		if _, err := w.bot.SendMessageWithContext(ctx, adminID, text, nil); err != nil {
			lastErr = err
			w.logger.Error().Err(err).Int64("admin_id", adminID).Str("job_id", job.JobID).Msg("failed to notify admin")
			continue
		}
		delivered++
	}
	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("deliver to admins: %w", lastErr)
	}
	return nil
}

// FormatJob renders a notification job as the text sent to admins.
func FormatJob(job Job) string {
	switch job.Kind {
	case KindTicketOpened:
		lines := []string{
			fmt.Sprintf("New ticket T-%d", job.TicketID),
			fmt.Sprintf("From: @%s (ID: %d)", usernameOr(job.Username), job.FromUserID),
		}
		if job.Subject != "" {
			lines = append(lines, "Subject: "+job.Subject)
		}
		if job.Text != "" {
			lines = append(lines, "Text: "+job.Text)
		}
		return strings.Join(lines, "\n")
	case KindTicketMessage:
		return strings.Join([]string{
			fmt.Sprintf("New message in ticket T-%d", job.TicketID),
			fmt.Sprintf("From: @%s (ID: %d)", usernameOr(job.Username), job.FromUserID),
			"Text: " + job.Text,
		}, "\n")
	case KindErrorReport:
		return "Bot error:\n\n" + job.Text
	}
	return ""
}

func usernameOr(u string) string {
	if strings.TrimSpace(u) == "" {
		return "unknown"
	}
	return u
}
