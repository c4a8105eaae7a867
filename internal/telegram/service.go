package telegram

import (
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/rs/zerolog"

	"github.com/semegn89/ozon/internal/metrics"
	"github.com/semegn89/ozon/internal/notify"
	"github.com/semegn89/ozon/internal/session"
	"github.com/semegn89/ozon/internal/storage"
)

type Service struct {
	store       *storage.Store
	sessions    session.Store
	queue       *notify.StreamQueue
	rateLimiter *notify.RateLimiter
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	adminIDs    []int64
	pageSize    int
	maxFileSize int64
}

type Config struct {
	Store       *storage.Store
	Sessions    session.Store
	Queue       *notify.StreamQueue
	RateLimiter *notify.RateLimiter
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	AdminIDs    []int64
	PageSize    int
	MaxFileSize int64
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	return &Service{
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		queue:       cfg.Queue,
		rateLimiter: cfg.RateLimiter,
		logger:      cfg.Logger,
		metrics:     m,
		adminIDs:    cfg.AdminIDs,
		pageSize:    cfg.PageSize,
		maxFileSize: cfg.MaxFileSize,
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("start", s.start))
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("models", s.modelsCommand))
	d.AddHandler(handlers.NewCommand("search", s.searchCommand))
	d.AddHandler(handlers.NewCommand("support", s.supportCommand))
	d.AddHandler(handlers.NewCommand("my_tickets", s.myTickets))
	d.AddHandler(handlers.NewCommand("admin", s.adminMenu))
	d.AddHandler(handlers.NewCommand("cancel", s.cancel))
	d.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbPrefix), s.onCallback))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Private(msg) && message.Text(msg)
	}, s.privateText))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Private(msg) &&
			(message.Document(msg) || message.Photo(msg) || message.Video(msg) || message.Audio(msg))
	}, s.privateMedia))
}

func (s *Service) isAdmin(userID int64) bool {
	for _, id := range s.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func (s *Service) replyWithMarkup(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx == nil || ctx.EffectiveChat == nil {
		return nil
	}
	opts := &gotgbot.SendMessageOpts{}
	if markup != nil {
		opts.ReplyMarkup = *markup
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, opts)
	return err
}

func userID(ctx *ext.Context) int64 {
	if ctx.EffectiveUser == nil {
		return 0
	}
	return ctx.EffectiveUser.Id
}

func username(ctx *ext.Context) string {
	if ctx.EffectiveUser == nil {
		return ""
	}
	if ctx.EffectiveUser.Username != "" {
		return ctx.EffectiveUser.Username
	}
	return ctx.EffectiveUser.FirstName
}
