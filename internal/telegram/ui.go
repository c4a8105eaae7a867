package telegram

import (
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"github.com/semegn89/ozon/internal/storage"
	"github.com/semegn89/ozon/internal/wizard"
)

const (
	cbPrefix = "gs:"

	cbMenu      = cbPrefix + "menu"
	cbModels    = cbPrefix + "models"    // gs:models:<page>
	cbModel     = cbPrefix + "model"     // gs:model:<id>
	cbDocs      = cbPrefix + "docs"      // gs:docs:<kind>:<model_id>
	cbDoc       = cbPrefix + "doc"       // gs:doc:<id>
	cbSearch    = cbPrefix + "search"
	cbSupport   = cbPrefix + "support" // gs:support or gs:support:<model_id>
	cbMyTickets = cbPrefix + "mytickets"

	cbAdmin        = cbPrefix + "adm"
	cbAdminDoc     = cbPrefix + "adm:doc" // gs:adm:doc:<kind>
	cbAdminModel   = cbPrefix + "adm:model"
	cbAdminTickets = cbPrefix + "adm:tickets"
	cbAdminStats   = cbPrefix + "adm:stats"

	cbWizType     = cbPrefix + "wiz:type" // gs:wiz:type:<pdf|video|link>
	cbWizSkip     = cbPrefix + "wiz:skip"
	cbWizBack     = cbPrefix + "wiz:back"
	cbWizCancel   = cbPrefix + "wiz:cancel"
	cbWizToggle   = cbPrefix + "wiz:toggle" // gs:wiz:toggle:<model_id>
	cbWizPage     = cbPrefix + "wiz:page"   // gs:wiz:page:<n>
	cbWizContinue = cbPrefix + "wiz:continue"
	cbWizSave     = cbPrefix + "wiz:save"

	cbTicketView   = cbPrefix + "t:view"   // gs:t:view:<id>
	cbTicketReply  = cbPrefix + "t:reply"  // gs:t:reply:<id>
	cbTicketStatus = cbPrefix + "t:status" // gs:t:status:<id>:<status>
)

func (s *Service) mainMenuText() string {
	return strings.Join([]string{
		"GAK Shop assistant",
		"",
		"Browse appliance models, download instructions and recipes,",
		"or open a support ticket.",
		"",
		"/models - model catalog",
		"/search - find a model",
		"/support - contact support",
		"/my_tickets - your tickets",
	}, "\n")
}

func (s *Service) mainMenuKeyboard(admin bool) *gotgbot.InlineKeyboardMarkup {
	rows := [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Models", CallbackData: cbModels + ":0"},
			{Text: "Search", CallbackData: cbSearch},
		},
		{
			{Text: "Support", CallbackData: cbSupport},
			{Text: "My tickets", CallbackData: cbMyTickets},
		},
	}
	if admin {
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: "Admin panel", CallbackData: cbAdmin},
		})
	}
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) backToMenuKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{{Text: "Main menu", CallbackData: cbMenu}},
	}}
}

func (s *Service) adminMenuText() string {
	return strings.Join([]string{
		"Admin panel",
		"",
		"Create content or work the support queue.",
	}, "\n")
}

func (s *Service) adminMenuKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "New instruction", CallbackData: cbAdminDoc + ":" + storage.KindInstruction},
			{Text: "New recipe", CallbackData: cbAdminDoc + ":" + storage.KindRecipe},
		},
		{
			{Text: "New model", CallbackData: cbAdminModel},
		},
		{
			{Text: "Open tickets", CallbackData: cbAdminTickets},
			{Text: "Ticket stats", CallbackData: cbAdminStats},
		},
		{
			{Text: "Main menu", CallbackData: cbMenu},
		},
	}}
}

func (s *Service) wizardNavKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Back", CallbackData: cbWizBack},
			{Text: "Cancel", CallbackData: cbWizCancel},
		},
	}}
}

func (s *Service) typeKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "PDF", CallbackData: cbWizType + ":" + storage.TypePDF},
			{Text: "Video", CallbackData: cbWizType + ":" + storage.TypeVideo},
			{Text: "Link", CallbackData: cbWizType + ":" + storage.TypeLink},
		},
		{
			{Text: "Back", CallbackData: cbWizBack},
			{Text: "Cancel", CallbackData: cbWizCancel},
		},
	}}
}

func (s *Service) descriptionKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Skip", CallbackData: cbWizSkip},
		},
		{
			{Text: "Back", CallbackData: cbWizBack},
			{Text: "Cancel", CallbackData: cbWizCancel},
		},
	}}
}

// bindModelsKeyboard renders one toggle button per model with a check
// mark on selected ones, plus paging and flow controls.
func (s *Service) bindModelsKeyboard(models []storage.Model, selected []int64, page, pages int) *gotgbot.InlineKeyboardMarkup {
	rows := make([][]gotgbot.InlineKeyboardButton, 0, len(models)+3)
	for _, m := range models {
		label := m.Name
		if wizard.Selected(selected, m.ID) {
			label = "✓ " + label
		}
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: label, CallbackData: fmt.Sprintf("%s:%d:%d", cbWizToggle, m.ID, page)},
		})
	}
	if nav := pageNavRow(cbWizPage, page, pages); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows,
		[]gotgbot.InlineKeyboardButton{{Text: "Continue", CallbackData: cbWizContinue}},
		[]gotgbot.InlineKeyboardButton{
			{Text: "Back", CallbackData: cbWizBack},
			{Text: "Cancel", CallbackData: cbWizCancel},
		},
	)
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) confirmKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Save", CallbackData: cbWizSave},
		},
		{
			{Text: "Back", CallbackData: cbWizBack},
			{Text: "Cancel", CallbackData: cbWizCancel},
		},
	}}
}

func confirmSummary(f wizard.Fields) string {
	lines := []string{
		"Review before saving:",
		"",
		"Kind: " + f.Kind,
		"Title: " + f.Title,
		"Type: " + f.Type,
	}
	if f.Type == storage.TypeLink {
		lines = append(lines, "URL: "+f.URL)
	} else {
		lines = append(lines, "File: attached")
	}
	desc := f.Description
	if desc == "" {
		desc = "<none>"
	}
	lines = append(lines,
		"Description: "+desc,
		fmt.Sprintf("Bound models: %d", len(f.ModelIDs)),
	)
	return strings.Join(lines, "\n")
}

func (s *Service) modelsKeyboard(models []storage.Model, page, pages int) *gotgbot.InlineKeyboardMarkup {
	rows := make([][]gotgbot.InlineKeyboardButton, 0, len(models)+2)
	for _, m := range models {
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: m.Name, CallbackData: fmt.Sprintf("%s:%d", cbModel, m.ID)},
		})
	}
	if nav := pageNavRow(cbModels, page, pages); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows, []gotgbot.InlineKeyboardButton{{Text: "Main menu", CallbackData: cbMenu}})
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func pageNavRow(prefix string, page, pages int) []gotgbot.InlineKeyboardButton {
	if pages <= 1 {
		return nil
	}
	var nav []gotgbot.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, gotgbot.InlineKeyboardButton{
			Text: "<", CallbackData: fmt.Sprintf("%s:%d", prefix, page-1),
		})
	}
	nav = append(nav, gotgbot.InlineKeyboardButton{
		Text: fmt.Sprintf("%d/%d", page+1, pages), CallbackData: fmt.Sprintf("%s:%d", prefix, page),
	})
	if page < pages-1 {
		nav = append(nav, gotgbot.InlineKeyboardButton{
			Text: ">", CallbackData: fmt.Sprintf("%s:%d", prefix, page+1),
		})
	}
	return nav
}

func modelCardText(m storage.Model) string {
	lines := []string{m.Name}
	if m.Description != "" {
		lines = append(lines, "", m.Description)
	}
	if m.Tags != "" {
		lines = append(lines, "", "Tags: "+m.Tags)
	}
	return strings.Join(lines, "\n")
}

func (s *Service) modelCardKeyboard(modelID int64) *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Instructions", CallbackData: fmt.Sprintf("%s:%s:%d", cbDocs, storage.KindInstruction, modelID)},
			{Text: "Recipes", CallbackData: fmt.Sprintf("%s:%s:%d", cbDocs, storage.KindRecipe, modelID)},
		},
		{
			{Text: "Ask support about this model", CallbackData: fmt.Sprintf("%s:%d", cbSupport, modelID)},
		},
		{
			{Text: "All models", CallbackData: cbModels + ":0"},
			{Text: "Main menu", CallbackData: cbMenu},
		},
	}}
}

func (s *Service) docListKeyboard(docs []storage.Document, modelID int64) *gotgbot.InlineKeyboardMarkup {
	rows := make([][]gotgbot.InlineKeyboardButton, 0, len(docs)+1)
	for _, d := range docs {
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: d.Title, CallbackData: fmt.Sprintf("%s:%d", cbDoc, d.ID)},
		})
	}
	rows = append(rows, []gotgbot.InlineKeyboardButton{
		{Text: "Back to model", CallbackData: fmt.Sprintf("%s:%d", cbModel, modelID)},
		{Text: "Main menu", CallbackData: cbMenu},
	})
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func ticketLine(t storage.Ticket) string {
	subject := t.Subject
	if subject == "" {
		subject = "<no subject>"
	}
	return fmt.Sprintf("#%d [%s] %s", t.ID, t.Status, subject)
}

func (s *Service) ticketListKeyboard(tickets []storage.Ticket) *gotgbot.InlineKeyboardMarkup {
	rows := make([][]gotgbot.InlineKeyboardButton, 0, len(tickets)+1)
	for _, t := range tickets {
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: ticketLine(t), CallbackData: fmt.Sprintf("%s:%d", cbTicketView, t.ID)},
		})
	}
	rows = append(rows, []gotgbot.InlineKeyboardButton{{Text: "Main menu", CallbackData: cbMenu}})
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) ticketViewKeyboard(t storage.Ticket, admin bool) *gotgbot.InlineKeyboardMarkup {
	var rows [][]gotgbot.InlineKeyboardButton
	if t.Status != storage.StatusClosed {
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: "Reply", CallbackData: fmt.Sprintf("%s:%d", cbTicketReply, t.ID)},
		})
	}
	if admin {
		var statusRow []gotgbot.InlineKeyboardButton
		if t.Status == storage.StatusOpen {
			statusRow = append(statusRow, gotgbot.InlineKeyboardButton{
				Text: "Take in progress", CallbackData: fmt.Sprintf("%s:%d:%s", cbTicketStatus, t.ID, storage.StatusInProgress),
			})
		}
		if t.Status != storage.StatusClosed {
			statusRow = append(statusRow, gotgbot.InlineKeyboardButton{
				Text: "Close", CallbackData: fmt.Sprintf("%s:%d:%s", cbTicketStatus, t.ID, storage.StatusClosed),
			})
		} else {
			statusRow = append(statusRow, gotgbot.InlineKeyboardButton{
				Text: "Reopen", CallbackData: fmt.Sprintf("%s:%d:%s", cbTicketStatus, t.ID, storage.StatusOpen),
			})
		}
		rows = append(rows, statusRow)
	}
	rows = append(rows, []gotgbot.InlineKeyboardButton{{Text: "Main menu", CallbackData: cbMenu}})
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func ticketThreadText(t storage.Ticket, msgs []storage.TicketMessage) string {
	lines := []string{ticketLine(t), ""}
	for _, m := range msgs {
		role := "user"
		if m.FromRole == storage.RoleAdmin {
			role = "support"
		}
		text := m.Text
		if text == "" && m.TgFileID != nil {
			text = "<attachment>"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", role, text))
	}
	if t.ClosedAt != nil {
		lines = append(lines, "", "Closed at "+t.ClosedAt.Format("2006-01-02 15:04 UTC"))
	}
	return strings.Join(lines, "\n")
}
