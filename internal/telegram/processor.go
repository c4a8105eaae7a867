package telegram

import (
	"context"
	"fmt"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/rs/zerolog"

	"github.com/semegn89/ozon/internal/metrics"
	"github.com/semegn89/ozon/internal/notify"
	"github.com/semegn89/ozon/internal/session"
)

// Processor wraps the dispatcher pipeline: counts updates, drops
// duplicate deliveries, and converts a handler panic into a logged
// error plus a fresh menu for the user. The panicking user's session
// is cleared because its state can no longer be trusted.
type Processor struct {
	Base     ext.BaseProcessor
	Dedupe   *notify.UpdateDeduplicator
	Sessions session.Store
	Queue    *notify.StreamQueue
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

func (p Processor) ProcessUpdate(d *ext.Dispatcher, b *gotgbot.Bot, ctx *ext.Context) (err error) {
	if p.Metrics != nil {
		p.Metrics.UpdatesTotal.Inc()
	}
	if p.Dedupe != nil {
		first, derr := p.Dedupe.MarkFirst(context.Background(), ctx.UpdateId)
		if derr != nil {
			p.Logger.Error().Err(derr).Int64("update_id", ctx.UpdateId).Msg("failed to dedupe update")
		} else if !first {
			return nil
		}
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("update handler panic: %v", r)
		p.Logger.Error().Int64("update_id", ctx.UpdateId).Msgf("recovered: %v", r)
		p.recoverUser(b, ctx, fmt.Sprintf("%v", r))
	}()
	return p.Base.ProcessUpdate(d, b, ctx)
}

func (p Processor) recoverUser(b *gotgbot.Bot, ctx *ext.Context, detail string) {
	if ctx.EffectiveUser != nil && p.Sessions != nil {
		if err := p.Sessions.Clear(context.Background(), ctx.EffectiveUser.Id); err != nil {
			p.Logger.Error().Err(err).Int64("user_id", ctx.EffectiveUser.Id).Msg("clear session after panic failed")
		}
	}
	if p.Queue != nil {
		uid := int64(0)
		if ctx.EffectiveUser != nil {
			uid = ctx.EffectiveUser.Id
		}
		if _, err := p.Queue.Enqueue(context.Background(), notify.Job{
			Kind:       notify.KindErrorReport,
			FromUserID: uid,
			Text:       detail,
		}); err != nil {
			p.Logger.Error().Err(err).Msg("enqueue error report failed")
		}
	}
	if ctx.EffectiveChat != nil {
		markup := gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
			{{Text: "Main menu", CallbackData: cbMenu}},
		}}
		_, _ = b.SendMessage(ctx.EffectiveChat.Id,
			"Something went wrong. Your current flow was reset.",
			&gotgbot.SendMessageOpts{ReplyMarkup: markup})
	}
}
