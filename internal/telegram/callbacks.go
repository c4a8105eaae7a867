package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"github.com/semegn89/ozon/internal/storage"
)

func (s *Service) onCallback(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx == nil || ctx.CallbackQuery == nil {
		return nil
	}
	data := strings.TrimSpace(ctx.CallbackQuery.Data)
	s.answerCallback(b, ctx, "", false)

	parts := strings.Split(strings.TrimPrefix(data, cbPrefix), ":")
	switch parts[0] {
	case "menu":
		return s.editOrReplyCallback(ctx, b, s.mainMenuText(), s.mainMenuKeyboard(s.isAdmin(userID(ctx))))

	case "models":
		return s.sendModelsPage(ctx, b, intArg(parts, 1), true)

	case "model":
		return s.showModelCard(ctx, b, int64Arg(parts, 1))

	case "docs":
		if len(parts) < 3 {
			break
		}
		modelID, _ := strconv.ParseInt(parts[2], 10, 64)
		return s.showModelDocs(ctx, b, modelID, parts[1])

	case "doc":
		return s.sendDocumentContent(ctx, b, int64Arg(parts, 1))

	case "search":
		return s.searchCommand(b, ctx)

	case "support":
		return s.beginSupport(ctx, b, int64Arg(parts, 1))

	case "mytickets":
		return s.myTickets(b, ctx)

	case "adm":
		if !s.requireAdmin(b, ctx) {
			return nil
		}
		if len(parts) == 1 {
			return s.editOrReplyCallback(ctx, b, s.adminMenuText(), s.adminMenuKeyboard())
		}
		switch parts[1] {
		case "doc":
			if len(parts) < 3 {
				break
			}
			return s.beginDocumentWizard(ctx, b, parts[2])
		case "model":
			return s.beginModelWizard(ctx, b)
		case "tickets":
			return s.adminTickets(ctx, b)
		case "stats":
			return s.adminStats(ctx, b)
		}

	case "wiz":
		if len(parts) < 2 {
			break
		}
		return s.onWizardCallback(ctx, b, parts[1:])

	case "t":
		if len(parts) < 3 {
			break
		}
		ticketID, _ := strconv.ParseInt(parts[2], 10, 64)
		switch parts[1] {
		case "view":
			return s.viewTicket(ctx, b, ticketID)
		case "reply":
			return s.beginTicketReply(ctx, b, ticketID)
		case "status":
			if len(parts) < 4 {
				break
			}
			return s.changeTicketStatus(ctx, b, ticketID, parts[3])
		}
	}

	s.answerCallback(b, ctx, "Unknown action.", true)
	return nil
}

func (s *Service) onWizardCallback(ctx *ext.Context, b *gotgbot.Bot, parts []string) error {
	uid := userID(ctx)
	sess, err := s.sessions.Get(context.Background(), uid)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", uid).Msg("session load failed")
		return s.reply(ctx, b, "Session storage error. Please try again.")
	}
	if sess == nil {
		return s.editOrReplyCallback(ctx, b, "Session expired, start over.", s.mainMenuKeyboard(s.isAdmin(uid)))
	}

	switch parts[0] {
	case "type":
		if len(parts) < 2 {
			break
		}
		return s.wizardType(ctx, b, sess, parts[1])
	case "skip":
		return s.wizardSkip(ctx, b, sess)
	case "back":
		return s.wizardBack(ctx, b, sess)
	case "cancel":
		return s.wizardCancel(ctx, b, sess)
	case "toggle":
		if len(parts) < 2 {
			break
		}
		modelID, _ := strconv.ParseInt(parts[1], 10, 64)
		page := 0
		if len(parts) > 2 {
			page, _ = strconv.Atoi(parts[2])
		}
		return s.wizardToggle(ctx, b, sess, modelID, page)
	case "page":
		page := 0
		if len(parts) > 1 {
			page, _ = strconv.Atoi(parts[1])
		}
		return s.sendBindModels(ctx, b, sess, page, true)
	case "continue":
		return s.wizardContinue(ctx, b, sess)
	case "save":
		return s.wizardSave(ctx, b, sess)
	}

	s.answerCallback(b, ctx, "Unknown action.", true)
	return nil
}

func (s *Service) showModelCard(ctx *ext.Context, b *gotgbot.Bot, modelID int64) error {
	m, err := s.store.GetModel(context.Background(), modelID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.editOrReplyCallback(ctx, b, "This model no longer exists.", s.backToMenuKeyboard())
		}
		s.logger.Error().Err(err).Int64("model_id", modelID).Msg("get model failed")
		return s.reply(ctx, b, "Failed to load the model.")
	}
	return s.editOrReplyCallback(ctx, b, modelCardText(m), s.modelCardKeyboard(m.ID))
}

func (s *Service) showModelDocs(ctx *ext.Context, b *gotgbot.Bot, modelID int64, kind string) error {
	docs, err := s.store.ListDocumentsForModel(context.Background(), modelID, kind)
	if err != nil {
		s.logger.Error().Err(err).Int64("model_id", modelID).Str("kind", kind).Msg("list documents failed")
		return s.reply(ctx, b, "Failed to load the documents.")
	}
	if len(docs) == 0 {
		return s.editOrReplyCallback(ctx, b, "Nothing here yet for this model.", s.modelCardKeyboard(modelID))
	}
	label := "Instructions"
	if kind == storage.KindRecipe {
		label = "Recipes"
	}
	return s.editOrReplyCallback(ctx, b, label+":", s.docListKeyboard(docs, modelID))
}

// sendDocumentContent delivers a catalog document: file-backed types go
// through Telegram's file hosting by stored file id, links as plain text.
func (s *Service) sendDocumentContent(ctx *ext.Context, b *gotgbot.Bot, docID int64) error {
	d, err := s.store.GetDocument(context.Background(), docID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.editOrReplyCallback(ctx, b, "This document no longer exists.", s.backToMenuKeyboard())
		}
		s.logger.Error().Err(err).Int64("document_id", docID).Msg("get document failed")
		return s.reply(ctx, b, "Failed to load the document.")
	}
	chatID := ctx.EffectiveChat.Id

	if d.Type == storage.TypeLink && d.URL != nil {
		text := d.Title + "\n" + *d.URL
		if d.Description != "" {
			text += "\n\n" + d.Description
		}
		return s.reply(ctx, b, text)
	}
	if d.TgFileID == nil {
		return s.reply(ctx, b, "This document has no content attached.")
	}

	caption := d.Title
	if d.Description != "" {
		caption += "\n" + d.Description
	}
	if d.Type == storage.TypeVideo {
		_, err = b.SendVideo(chatID, gotgbot.InputFileByID(*d.TgFileID), &gotgbot.SendVideoOpts{Caption: caption})
	} else {
		_, err = b.SendDocument(chatID, gotgbot.InputFileByID(*d.TgFileID), &gotgbot.SendDocumentOpts{Caption: caption})
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("document_id", docID).Msg("send document failed")
		return s.reply(ctx, b, "Failed to deliver the file. Please try again later.")
	}
	return nil
}

func (s *Service) answerCallback(b *gotgbot.Bot, ctx *ext.Context, text string, alert bool) {
	if ctx == nil || ctx.CallbackQuery == nil {
		return
	}
	opts := &gotgbot.AnswerCallbackQueryOpts{ShowAlert: alert}
	if text != "" {
		opts.Text = text
	}
	_, _ = b.AnswerCallbackQuery(ctx.CallbackQuery.Id, opts)
}

func (s *Service) editOrReplyCallback(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx != nil && ctx.CallbackQuery != nil && ctx.CallbackQuery.Message != nil {
		opts := &gotgbot.EditMessageTextOpts{}
		if markup != nil {
			opts.ReplyMarkup = *markup
		}
		_, _, err := ctx.CallbackQuery.Message.EditText(b, text, opts)
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
			return nil
		}
		// Fallback to sending a regular message if edit failed.
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}

func intArg(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(parts[i])
	return n
}

func int64Arg(parts []string, i int) int64 {
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.ParseInt(parts[i], 10, 64)
	return n
}
