package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"github.com/semegn89/ozon/internal/storage"
	"github.com/semegn89/ozon/internal/wizard"
)

var errSessionExpired = errors.New("session expired")

func (s *Service) adminMenu(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	return s.replyWithMarkup(ctx, b, s.adminMenuText(), s.adminMenuKeyboard())
}

// requireAdmin rejects non-admins with an access-denied reply. No
// session is created or touched on the rejection path.
func (s *Service) requireAdmin(b *gotgbot.Bot, ctx *ext.Context) bool {
	if s.isAdmin(userID(ctx)) {
		return true
	}
	_ = s.reply(ctx, b, "Access denied.")
	return false
}

func (s *Service) beginDocumentWizard(ctx *ext.Context, b *gotgbot.Bot, kind string) error {
	uid := userID(ctx)
	sess := wizard.NewSession(uid, wizard.FlowDocumentCreate, wizard.StateTitle)
	sess.Fields.Kind = kind
	if err := s.sessions.Set(context.Background(), uid, sess); err != nil {
		return s.reply(ctx, b, "Failed to start the wizard, try again.")
	}
	return s.promptState(ctx, b, sess, true)
}

func (s *Service) beginModelWizard(ctx *ext.Context, b *gotgbot.Bot) error {
	uid := userID(ctx)
	sess := wizard.NewSession(uid, wizard.FlowModelCreate, wizard.StateModelName)
	if err := s.sessions.Set(context.Background(), uid, sess); err != nil {
		return s.reply(ctx, b, "Failed to start the wizard, try again.")
	}
	return s.editOrReplyCallback(ctx, b, "Send a name for the new model.", s.wizardNavKeyboard())
}

// wizardText handles free-text input for the document-creation flow.
// Text arriving at a button-driven step re-prompts that step unchanged.
func (s *Service) wizardText(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session, text string) error {
	switch sess.State {
	case wizard.StateTitle:
		if !wizard.ValidTitle(text) {
			return s.reply(ctx, b, "The title cannot be empty. Send a title.")
		}
		sess.Fields.Title = strings.TrimSpace(text)
		return s.advance(ctx, b, sess)

	case wizard.StateURLWait:
		if !wizard.ValidURL(text) {
			return s.reply(ctx, b, "The link must start with http:// or https://. Send it again.")
		}
		sess.Fields.URL = strings.TrimSpace(text)
		return s.advance(ctx, b, sess)

	case wizard.StateDescription:
		if text == wizard.SkipToken {
			sess.Fields.Description = ""
		} else {
			sess.Fields.Description = strings.TrimSpace(text)
		}
		return s.advance(ctx, b, sess)

	default:
		return s.reprompt(b, ctx, sess)
	}
}

func (s *Service) wizardFile(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session, fileID, name string, size int64) error {
	if err := wizard.CheckFile(name, size, s.maxFileSize); err != nil {
		switch {
		case errors.Is(err, wizard.ErrFileTooLarge):
			return s.reply(ctx, b, fmt.Sprintf("The file is too large. The limit is %d MiB. Send a smaller one.", s.maxFileSize/(1024*1024)))
		case errors.Is(err, wizard.ErrFileTypeNotAllowed):
			return s.reply(ctx, b, "This file type is not supported. Send a document, image, archive, video or audio file.")
		}
		return s.reply(ctx, b, "Could not accept this file. Send another one.")
	}
	sess.Fields.TgFileID = fileID
	return s.advance(ctx, b, sess)
}

func (s *Service) wizardType(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session, raw string) error {
	if sess.State != wizard.StateType {
		return s.reprompt(b, ctx, sess)
	}
	t := wizard.ParseType(raw)
	if t == "" {
		s.answerCallback(b, ctx, "Pick one of the offered types.", true)
		return nil
	}
	sess.Fields.Type = t
	next, ok := wizard.Next(sess.State, sess.Fields)
	if !ok {
		return s.reprompt(b, ctx, sess)
	}
	sess.State = next
	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.promptState(ctx, b, sess, true)
}

func (s *Service) wizardSkip(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session) error {
	switch sess.State {
	case wizard.StateModelDescription, wizard.StateModelTags:
		return s.modelCreateText(b, ctx, sess, wizard.SkipToken)
	case wizard.StateDescription:
	default:
		s.answerCallback(b, ctx, "Nothing to skip at this step.", false)
		return nil
	}
	sess.Fields.Description = ""
	next, _ := wizard.Next(sess.State, sess.Fields)
	sess.State = next
	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.promptState(ctx, b, sess, true)
}

func (s *Service) wizardBack(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session) error {
	prev, ok := wizard.Prev(sess.State, sess.Fields)
	if !ok {
		s.answerCallback(b, ctx, "This is the first step.", false)
		return nil
	}
	sess.State = prev
	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.promptState(ctx, b, sess, true)
}

func (s *Service) wizardCancel(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session) error {
	if err := s.sessions.Clear(context.Background(), sess.UserID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", sess.UserID).Msg("clear session failed")
		return s.reply(ctx, b, "Could not cancel right now, try again.")
	}
	s.metrics.WizardAborted.Inc()
	return s.editOrReplyCallback(ctx, b, "Cancelled.", s.mainMenuKeyboard(s.isAdmin(sess.UserID)))
}

func (s *Service) wizardToggle(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session, modelID int64, page int) error {
	if sess.State != wizard.StateBindModels {
		return s.reprompt(b, ctx, sess)
	}
	sess.Fields.ModelIDs = wizard.ToggleModelID(sess.Fields.ModelIDs, modelID)
	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.sendBindModels(ctx, b, sess, page, true)
}

func (s *Service) wizardContinue(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session) error {
	if sess.State != wizard.StateBindModels {
		return s.reprompt(b, ctx, sess)
	}
	if len(sess.Fields.ModelIDs) == 0 {
		s.answerCallback(b, ctx, "Select at least one model first.", true)
		return nil
	}
	next, _ := wizard.Next(sess.State, sess.Fields)
	sess.State = next
	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.promptState(ctx, b, sess, true)
}

func (s *Service) wizardSave(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session) error {
	doc, bound, err := s.finalizeDocument(context.Background(), sess.UserID)
	if err != nil {
		if errors.Is(err, errSessionExpired) {
			return s.editOrReplyCallback(ctx, b, "Session expired, start over.", s.adminMenuKeyboard())
		}
		s.logger.Error().Err(err).Int64("user_id", sess.UserID).Msg("finalize failed")
		return s.reply(ctx, b, "Failed to save. Your entries are kept, press Save to retry.")
	}
	text := fmt.Sprintf("Saved %s #%d %q, bound to %d model(s).", doc.Kind, doc.ID, doc.Title, bound)
	return s.editOrReplyCallback(ctx, b, text, s.adminMenuKeyboard())
}

// finalizeDocument turns the accumulated wizard fields into a document
// row plus its model bindings. The session is cleared only after the
// rows are written, so a failed save can be retried, and a second save
// after the clear cannot create a duplicate.
func (s *Service) finalizeDocument(ctx context.Context, uid int64) (storage.Document, int, error) {
	sess, err := s.sessions.Get(ctx, uid)
	if err != nil {
		return storage.Document{}, 0, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.Flow != wizard.FlowDocumentCreate || sess.State != wizard.StateConfirm {
		return storage.Document{}, 0, errSessionExpired
	}

	f := sess.Fields
	doc := storage.Document{
		Kind:        f.Kind,
		Title:       f.Title,
		Type:        f.Type,
		Description: f.Description,
	}
	if f.TgFileID != "" {
		doc.TgFileID = &f.TgFileID
	}
	if f.URL != "" {
		doc.URL = &f.URL
	}

	created, err := s.store.CreateDocument(ctx, doc)
	if err != nil {
		return storage.Document{}, 0, fmt.Errorf("create document: %w", err)
	}
	bound, err := s.store.BindDocumentToModels(ctx, created.ID, f.ModelIDs)
	if err != nil {
		return storage.Document{}, 0, fmt.Errorf("bind document: %w", err)
	}
	if err := s.sessions.Clear(ctx, uid); err != nil {
		s.logger.Error().Err(err).Int64("user_id", uid).Msg("clear session after finalize failed")
	}
	s.metrics.WizardFinalized.Inc()
	return created, bound, nil
}

func (s *Service) advance(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session) error {
	next, ok := wizard.Next(sess.State, sess.Fields)
	if !ok {
		return s.reprompt(b, ctx, sess)
	}
	sess.State = next
	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.promptState(ctx, b, sess, false)
}

func (s *Service) reprompt(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session) error {
	return s.promptState(ctx, b, sess, false)
}

// promptState renders the prompt for the session's current state. It is
// used both when advancing and when re-prompting after bad input, so it
// must rely only on the accumulated fields.
func (s *Service) promptState(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session, edit bool) error {
	send := s.replyWithMarkup
	if edit {
		send = s.editOrReplyCallback
	}
	switch sess.State {
	case wizard.StateTitle:
		return send(ctx, b, fmt.Sprintf("Step 1. Send a title for the new %s.", kindLabel(sess.Fields.Kind)), s.wizardNavKeyboard())
	case wizard.StateType:
		return send(ctx, b, "Step 2. Choose the content type.", s.typeKeyboard())
	case wizard.StateFileWait:
		return send(ctx, b, fmt.Sprintf("Step 3. Upload the file (up to %d MiB).", s.maxFileSize/(1024*1024)), s.wizardNavKeyboard())
	case wizard.StateURLWait:
		return send(ctx, b, "Step 3. Send a link starting with http:// or https://.", s.wizardNavKeyboard())
	case wizard.StateDescription:
		return send(ctx, b, "Step 4. Send a description, or skip this step.", s.descriptionKeyboard())
	case wizard.StateBindModels:
		return s.sendBindModels(ctx, b, sess, 0, edit)
	case wizard.StateConfirm:
		return send(ctx, b, confirmSummary(sess.Fields), s.confirmKeyboard())
	case wizard.StateModelName:
		return send(ctx, b, "Send a name for the new model.", s.wizardNavKeyboard())
	case wizard.StateModelDescription:
		return send(ctx, b, "Send a description for the model, or /skip.", s.descriptionKeyboard())
	case wizard.StateModelTags:
		return send(ctx, b, "Send comma-separated tags, or /skip.", s.descriptionKeyboard())
	}
	return nil
}

func (s *Service) sendBindModels(ctx *ext.Context, b *gotgbot.Bot, sess *wizard.Session, page int, edit bool) error {
	models, total, err := s.store.ListModels(context.Background(), page, s.pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("list models for binding failed")
		return s.reply(ctx, b, "Failed to load models, try again.")
	}
	if total == 0 {
		return s.editOrReplyCallback(ctx, b, "There are no models yet. Create a model first.", s.adminMenuKeyboard())
	}
	pages := (total + s.pageSize - 1) / s.pageSize
	text := fmt.Sprintf("Step 5. Select the models this %s belongs to (%d selected).", kindLabel(sess.Fields.Kind), len(sess.Fields.ModelIDs))
	markup := s.bindModelsKeyboard(models, sess.Fields.ModelIDs, page, pages)
	if edit {
		return s.editOrReplyCallback(ctx, b, text, markup)
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}

// modelCreateText walks the short model-creation flow. There is no
// confirm step; the row is written right after the tags step.
func (s *Service) modelCreateText(b *gotgbot.Bot, ctx *ext.Context, sess *wizard.Session, text string) error {
	switch sess.State {
	case wizard.StateModelName:
		if !wizard.ValidTitle(text) {
			return s.reply(ctx, b, "The name cannot be empty. Send a name.")
		}
		sess.Fields.Name = strings.TrimSpace(text)
		sess.State = wizard.StateModelDescription
	case wizard.StateModelDescription:
		if text != wizard.SkipToken {
			sess.Fields.Description = strings.TrimSpace(text)
		}
		sess.State = wizard.StateModelTags
	case wizard.StateModelTags:
		tags := ""
		if text != wizard.SkipToken {
			tags = strings.TrimSpace(text)
		}
		m, err := s.store.CreateModel(context.Background(), sess.Fields.Name, sess.Fields.Description, tags)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				sess.State = wizard.StateModelName
				sess.UpdatedAt = s.now()
				if serr := s.sessions.Set(context.Background(), sess.UserID, sess); serr != nil {
					return s.reply(ctx, b, "Failed to save progress, try again.")
				}
				return s.reply(ctx, b, fmt.Sprintf("A model named %q already exists. Send another name.", sess.Fields.Name))
			}
			s.logger.Error().Err(err).Msg("create model failed")
			return s.reply(ctx, b, "Failed to save the model. Send the tags again to retry.")
		}
		_ = s.sessions.Clear(context.Background(), sess.UserID)
		return s.replyWithMarkup(ctx, b, fmt.Sprintf("Model #%d %q created.", m.ID, m.Name), s.adminMenuKeyboard())
	default:
		return s.reprompt(b, ctx, sess)
	}

	sess.UpdatedAt = s.now()
	if err := s.sessions.Set(context.Background(), sess.UserID, sess); err != nil {
		return s.reply(ctx, b, "Failed to save progress, try again.")
	}
	return s.promptState(ctx, b, sess, false)
}

func (s *Service) adminTickets(ctx *ext.Context, b *gotgbot.Bot) error {
	tickets, err := s.store.ListOpenTickets(context.Background(), 50)
	if err != nil {
		s.logger.Error().Err(err).Msg("list open tickets failed")
		return s.reply(ctx, b, "Failed to load the ticket queue.")
	}
	if len(tickets) == 0 {
		return s.editOrReplyCallback(ctx, b, "The ticket queue is empty.", s.adminMenuKeyboard())
	}
	return s.editOrReplyCallback(ctx, b, "Open tickets:", s.ticketListKeyboard(tickets))
}

func (s *Service) adminStats(ctx *ext.Context, b *gotgbot.Bot) error {
	stats, err := s.store.TicketStats(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("ticket stats failed")
		return s.reply(ctx, b, "Failed to load ticket stats.")
	}
	text := strings.Join([]string{
		"Ticket stats:",
		fmt.Sprintf("open: %d", stats[storage.StatusOpen]),
		fmt.Sprintf("in progress: %d", stats[storage.StatusInProgress]),
		fmt.Sprintf("closed: %d", stats[storage.StatusClosed]),
	}, "\n")
	return s.editOrReplyCallback(ctx, b, text, s.adminMenuKeyboard())
}

func (s *Service) viewTicket(ctx *ext.Context, b *gotgbot.Bot, ticketID int64) error {
	uid := userID(ctx)
	t, err := s.store.GetTicket(context.Background(), ticketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.editOrReplyCallback(ctx, b, "This ticket no longer exists.", s.backToMenuKeyboard())
		}
		return s.reply(ctx, b, "Failed to load the ticket.")
	}
	admin := s.isAdmin(uid)
	if !admin && t.UserID != uid {
		return s.reply(ctx, b, "Access denied.")
	}
	msgs, err := s.store.ListTicketMessages(context.Background(), ticketID)
	if err != nil {
		return s.reply(ctx, b, "Failed to load the ticket thread.")
	}
	return s.editOrReplyCallback(ctx, b, ticketThreadText(t, msgs), s.ticketViewKeyboard(t, admin))
}

func (s *Service) beginTicketReply(ctx *ext.Context, b *gotgbot.Bot, ticketID int64) error {
	uid := userID(ctx)
	t, err := s.store.GetTicket(context.Background(), ticketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.editOrReplyCallback(ctx, b, "This ticket no longer exists.", s.backToMenuKeyboard())
		}
		return s.reply(ctx, b, "Failed to load the ticket.")
	}
	if !s.isAdmin(uid) && t.UserID != uid {
		return s.reply(ctx, b, "Access denied.")
	}
	if t.Status == storage.StatusClosed {
		return s.editOrReplyCallback(ctx, b, "The ticket is closed, replies are no longer accepted.", s.backToMenuKeyboard())
	}
	sess := wizard.NewSession(uid, wizard.FlowTicketReply, wizard.StateAwaitText)
	sess.Fields.TicketID = ticketID
	if err := s.sessions.Set(context.Background(), uid, sess); err != nil {
		return s.reply(ctx, b, "Failed to start the reply, try again.")
	}
	return s.editOrReplyCallback(ctx, b, fmt.Sprintf("Send your reply to ticket #%d. A file attachment is allowed.", ticketID), s.wizardNavKeyboard())
}

func (s *Service) changeTicketStatus(ctx *ext.Context, b *gotgbot.Bot, ticketID int64, status string) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	t, err := s.store.SetTicketStatus(context.Background(), ticketID, status)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.editOrReplyCallback(ctx, b, "This ticket no longer exists.", s.backToMenuKeyboard())
		}
		s.logger.Error().Err(err).Int64("ticket_id", ticketID).Msg("set ticket status failed")
		return s.reply(ctx, b, "Failed to change the ticket status.")
	}
	// Best effort, the requester may have blocked the bot.
	note := fmt.Sprintf("Your ticket #%d is now %q.", t.ID, t.Status)
	if _, err := b.SendMessage(t.UserID, note, nil); err != nil {
		s.logger.Warn().Err(err).Int64("ticket_id", t.ID).Msg("status note to requester failed")
	}
	return s.viewTicket(ctx, b, ticketID)
}

func kindLabel(kind string) string {
	if kind == storage.KindRecipe {
		return "recipe"
	}
	return "instruction"
}
