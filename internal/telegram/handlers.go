package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"github.com/semegn89/ozon/internal/notify"
	"github.com/semegn89/ozon/internal/storage"
	"github.com/semegn89/ozon/internal/wizard"
)

const maxSubjectLen = 80

func (s *Service) start(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.sendMainMenu(ctx, b)
}

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.sendMainMenu(ctx, b)
}

func (s *Service) sendMainMenu(ctx *ext.Context, b *gotgbot.Bot) error {
	return s.replyWithMarkup(ctx, b, s.mainMenuText(), s.mainMenuKeyboard(s.isAdmin(userID(ctx))))
}

func (s *Service) cancel(b *gotgbot.Bot, ctx *ext.Context) error {
	uid := userID(ctx)
	if uid == 0 {
		return nil
	}
	if err := s.sessions.Clear(context.Background(), uid); err != nil {
		s.logger.Error().Err(err).Int64("user_id", uid).Msg("clear session failed")
		return s.reply(ctx, b, "Could not cancel right now, try again.")
	}
	return s.replyWithMarkup(ctx, b, "Cancelled.", s.mainMenuKeyboard(s.isAdmin(uid)))
}

func (s *Service) modelsCommand(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.sendModelsPage(ctx, b, 0, false)
}

func (s *Service) sendModelsPage(ctx *ext.Context, b *gotgbot.Bot, page int, edit bool) error {
	models, total, err := s.store.ListModels(context.Background(), page, s.pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("list models failed")
		return s.reply(ctx, b, "Failed to load the catalog.")
	}
	if total == 0 {
		return s.replyWithMarkup(ctx, b, "The catalog is empty for now.", s.backToMenuKeyboard())
	}
	pages := (total + s.pageSize - 1) / s.pageSize
	text := fmt.Sprintf("Models (%d total):", total)
	markup := s.modelsKeyboard(models, page, pages)
	if edit {
		return s.editOrReplyCallback(ctx, b, text, markup)
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}

func (s *Service) searchCommand(b *gotgbot.Bot, ctx *ext.Context) error {
	uid := userID(ctx)
	if uid == 0 {
		return nil
	}
	sess := wizard.NewSession(uid, wizard.FlowSearch, wizard.StateAwaitText)
	if err := s.sessions.Set(context.Background(), uid, sess); err != nil {
		return s.reply(ctx, b, "Failed to start search, try again.")
	}
	return s.replyWithMarkup(ctx, b, "Send a search query (model name, description or tag).", s.wizardNavKeyboard())
}

func (s *Service) supportCommand(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.beginSupport(ctx, b, 0)
}

func (s *Service) beginSupport(ctx *ext.Context, b *gotgbot.Bot, modelID int64) error {
	uid := userID(ctx)
	if uid == 0 {
		return nil
	}
	flow := wizard.FlowSupport
	if modelID != 0 {
		flow = wizard.FlowSupportModel
	}
	sess := wizard.NewSession(uid, flow, wizard.StateAwaitText)
	sess.Fields.ModelID = modelID
	if err := s.sessions.Set(context.Background(), uid, sess); err != nil {
		return s.reply(ctx, b, "Failed to start the support flow, try again.")
	}
	return s.replyWithMarkup(ctx, b, "Describe your problem in one message. An operator will get back to you.", s.wizardNavKeyboard())
}

func (s *Service) myTickets(b *gotgbot.Bot, ctx *ext.Context) error {
	uid := userID(ctx)
	if uid == 0 {
		return nil
	}
	tickets, err := s.store.ListUserTickets(context.Background(), uid, 20)
	if err != nil {
		s.logger.Error().Err(err).Msg("list user tickets failed")
		return s.reply(ctx, b, "Failed to load your tickets.")
	}
	if len(tickets) == 0 {
		return s.replyWithMarkup(ctx, b, "You have no tickets yet. Use /support to open one.", s.backToMenuKeyboard())
	}
	return s.replyWithMarkup(ctx, b, "Your tickets:", s.ticketListKeyboard(tickets))
}

// privateText routes free text into whichever flow the user has active.
// Without a session the bot just re-offers the menu.
func (s *Service) privateText(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil || ctx.EffectiveUser == nil || ctx.EffectiveMessage == nil {
		return nil
	}
	text := strings.TrimSpace(ctx.EffectiveMessage.GetText())
	if text == "" || (strings.HasPrefix(text, "/") && text != wizard.SkipToken) {
		return nil
	}

	uid := ctx.EffectiveUser.Id
	sess, err := s.sessions.Get(context.Background(), uid)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", uid).Msg("session load failed")
		return s.reply(ctx, b, "Session storage error. Please try again.")
	}
	if sess == nil {
		return s.replyWithMarkup(ctx, b, "Use the menu below.", s.mainMenuKeyboard(s.isAdmin(uid)))
	}

	switch sess.Flow {
	case wizard.FlowDocumentCreate:
		return s.wizardText(b, ctx, sess, text)
	case wizard.FlowModelCreate:
		return s.modelCreateText(b, ctx, sess, text)
	case wizard.FlowSearch:
		return s.runSearch(b, ctx, sess, text)
	case wizard.FlowSupport, wizard.FlowSupportModel:
		return s.createTicketFromText(b, ctx, sess, text)
	case wizard.FlowTicketReply:
		return s.ticketReplyText(b, ctx, sess, text, nil, nil)
	}
	return s.replyWithMarkup(ctx, b, "Use the menu below.", s.mainMenuKeyboard(s.isAdmin(uid)))
}

// privateMedia handles uploads: the wizard's file step and ticket reply
// attachments. Anything else is ignored.
func (s *Service) privateMedia(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil || ctx.EffectiveUser == nil || ctx.EffectiveMessage == nil {
		return nil
	}
	uid := ctx.EffectiveUser.Id
	sess, err := s.sessions.Get(context.Background(), uid)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", uid).Msg("session load failed")
		return s.reply(ctx, b, "Session storage error. Please try again.")
	}
	if sess == nil {
		return nil
	}

	fileID, name, size, fileType, ok := fileInfo(ctx.EffectiveMessage)
	if !ok {
		return nil
	}

	switch {
	case sess.Flow == wizard.FlowDocumentCreate && sess.State == wizard.StateFileWait:
		return s.wizardFile(b, ctx, sess, fileID, name, size)
	case sess.Flow == wizard.FlowTicketReply:
		caption := strings.TrimSpace(ctx.EffectiveMessage.Caption)
		return s.ticketReplyText(b, ctx, sess, caption, &fileID, &fileType)
	case sess.Flow == wizard.FlowDocumentCreate:
		return s.reprompt(b, ctx, sess)
	}
	return nil
}

func (s *Service) runSearch(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session, query string) error {
	models, total, err := s.store.SearchModels(context.Background(), query, 0, s.pageSize)
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("search failed")
		return s.reply(ctx, b, "Search failed, try again.")
	}
	_ = s.sessions.Clear(context.Background(), sess.UserID)
	if total == 0 {
		return s.replyWithMarkup(ctx, b, fmt.Sprintf("Nothing found for %q.", query), s.backToMenuKeyboard())
	}
	text := fmt.Sprintf("Found %d for %q:", total, query)
	if total > len(models) {
		text = fmt.Sprintf("Found %d for %q, showing first %d:", total, query, len(models))
	}
	return s.replyWithMarkup(ctx, b, text, s.modelsKeyboard(models, 0, 1))
}

func (s *Service) createTicketFromText(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session, text string) error {
	uid := sess.UserID
	if s.rateLimiter != nil {
		allowed, _, resetAt, err := s.rateLimiter.Allow(context.Background(), uid, s.now())
		if err != nil {
			s.logger.Error().Err(err).Msg("rate limiter failed")
		} else if !allowed {
			return s.reply(ctx, b, "Too many tickets. Try again after "+resetAt.Format("15:04 UTC"))
		}
	}

	subject := text
	if sess.Fields.ModelID != 0 {
		if m, err := s.store.GetModel(context.Background(), sess.Fields.ModelID); err == nil {
			subject = "[" + m.Name + "] " + subject
		}
	}
	if len([]rune(subject)) > maxSubjectLen {
		subject = string([]rune(subject)[:maxSubjectLen])
	}

	t, err := s.store.CreateTicket(context.Background(), uid, username(ctx), subject)
	if err != nil {
		s.logger.Error().Err(err).Msg("create ticket failed")
		return s.reply(ctx, b, "Failed to open a ticket. Please try again.")
	}
	if _, err := s.store.AppendTicketMessage(context.Background(), t.ID, storage.RoleUser, text, nil, nil); err != nil {
		s.logger.Error().Err(err).Int64("ticket_id", t.ID).Msg("append first ticket message failed")
	}
	s.metrics.TicketsOpened.Inc()
	s.notifyAdmins(notify.Job{
		Kind:       notify.KindTicketOpened,
		TicketID:   t.ID,
		FromUserID: uid,
		Username:   username(ctx),
		Subject:    subject,
		Text:       text,
	})
	_ = s.sessions.Clear(context.Background(), uid)
	return s.replyWithMarkup(ctx, b,
		fmt.Sprintf("Ticket #%d created. You will be notified here when support replies.", t.ID),
		s.backToMenuKeyboard())
}

func (s *Service) ticketReplyText(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session, text string, fileID, fileType *string) error {
	uid := sess.UserID
	t, err := s.store.GetTicket(context.Background(), sess.Fields.TicketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = s.sessions.Clear(context.Background(), uid)
			return s.replyWithMarkup(ctx, b, "This ticket no longer exists.", s.backToMenuKeyboard())
		}
		return s.reply(ctx, b, "Failed to load the ticket.")
	}

	admin := s.isAdmin(uid)
	if !admin && t.UserID != uid {
		_ = s.sessions.Clear(context.Background(), uid)
		return s.reply(ctx, b, "Access denied.")
	}
	if t.Status == storage.StatusClosed {
		_ = s.sessions.Clear(context.Background(), uid)
		return s.replyWithMarkup(ctx, b, "The ticket is closed, replies are no longer accepted.", s.backToMenuKeyboard())
	}

	role := storage.RoleUser
	if admin {
		role = storage.RoleAdmin
	}
	if _, err := s.store.AppendTicketMessage(context.Background(), t.ID, role, text, fileID, fileType); err != nil {
		s.logger.Error().Err(err).Int64("ticket_id", t.ID).Msg("append ticket message failed")
		return s.reply(ctx, b, "Failed to save your reply. Please try again.")
	}

	if admin {
		// Relay the reply straight to the requester.
		relay := fmt.Sprintf("Support reply on ticket #%d:\n%s", t.ID, text)
		if _, err := b.SendMessage(t.UserID, relay, nil); err != nil {
			s.logger.Error().Err(err).Int64("ticket_id", t.ID).Msg("relay to requester failed")
		}
		if fileID != nil {
			if _, err := b.SendDocument(t.UserID, gotgbot.InputFileByID(*fileID), nil); err != nil {
				s.logger.Error().Err(err).Int64("ticket_id", t.ID).Msg("relay attachment failed")
			}
		}
	} else {
		s.notifyAdmins(notify.Job{
			Kind:       notify.KindTicketMessage,
			TicketID:   t.ID,
			FromUserID: uid,
			Username:   username(ctx),
			Subject:    t.Subject,
			Text:       text,
		})
	}
	_ = s.sessions.Clear(context.Background(), uid)
	return s.replyWithMarkup(ctx, b, fmt.Sprintf("Reply added to ticket #%d.", t.ID), s.backToMenuKeyboard())
}

func (s *Service) notifyAdmins(job notify.Job) {
	if s.queue == nil {
		return
	}
	if _, err := s.queue.Enqueue(context.Background(), job); err != nil {
		s.logger.Error().Err(err).Str("kind", job.Kind).Msg("enqueue notification failed")
		return
	}
	s.metrics.NotifyEnqueued.Inc()
}

func fileInfo(msg *gotgbot.Message) (fileID, name string, size int64, fileType string, ok bool) {
	switch {
	case msg.Document != nil:
		return msg.Document.FileId, msg.Document.FileName, msg.Document.FileSize, "document", true
	case msg.Video != nil:
		return msg.Video.FileId, msg.Video.FileName, msg.Video.FileSize, "video", true
	case msg.Audio != nil:
		return msg.Audio.FileId, msg.Audio.FileName, msg.Audio.FileSize, "audio", true
	case len(msg.Photo) > 0:
		// Telegram sends several sizes; the last is the largest.
		p := msg.Photo[len(msg.Photo)-1]
		return p.FileId, "", p.FileSize, "photo", true
	}
	return "", "", 0, "", false
}
