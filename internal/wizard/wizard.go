// Package wizard defines the per-user conversation flows: which states
// exist, how they chain together, and how each step's input is
// validated. Handlers in the telegram package dispatch on these states;
// this package stays free of transport concerns so the transition rules
// can be tested directly.
package wizard

import (
	"strings"
	"time"
)

// Flow identifies which multi-step conversation a session belongs to.
type Flow string

const (
	FlowDocumentCreate Flow = "document_create"
	FlowModelCreate    Flow = "model_create"
	FlowSupport        Flow = "support"
	FlowSupportModel   Flow = "support_model"
	FlowSearch         Flow = "search"
	FlowTicketReply    Flow = "ticket_reply"
)

// State is one step within a flow.
type State string

const (
	// Document creation flow.
	StateTitle       State = "title"
	StateType        State = "type"
	StateFileWait    State = "file_wait"
	StateURLWait     State = "url_wait"
	StateDescription State = "description"
	StateBindModels  State = "bind_models"
	StateConfirm     State = "confirm"

	// Model creation flow.
	StateModelName        State = "model_name"
	StateModelDescription State = "model_description"
	StateModelTags        State = "model_tags"

	// One-shot flows (support, search, ticket reply) wait for a single
	// message.
	StateAwaitText State = "await_text"
)

// SkipToken lets the user leave an optional field empty.
const SkipToken = "/skip"

// Fields is the data accumulated across steps. Each step writes only
// the field it is responsible for.
type Fields struct {
	Kind        string  `json:"kind,omitempty"`
	Title       string  `json:"title,omitempty"`
	Type        string  `json:"type,omitempty"`
	TgFileID    string  `json:"tg_file_id,omitempty"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	ModelIDs    []int64 `json:"model_ids,omitempty"`

	Name string `json:"name,omitempty"`
	Tags string `json:"tags,omitempty"`

	Query string `json:"query,omitempty"`

	ModelID  int64 `json:"model_id,omitempty"`
	TicketID int64 `json:"ticket_id,omitempty"`
}

// Session is the ephemeral per-user wizard record. At most one exists
// per user; starting any flow overwrites whatever was there.
type Session struct {
	UserID    int64     `json:"user_id"`
	Flow      Flow      `json:"flow"`
	State     State     `json:"state"`
	Fields    Fields    `json:"fields"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(userID int64, flow Flow, state State) *Session {
	return &Session{
		UserID:    userID,
		Flow:      flow,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
}

// Next returns the successor of state s in the document-creation flow.
// The TYPE step branches: file-backed types wait for an upload, links
// wait for a URL.
func Next(s State, f Fields) (State, bool) {
	switch s {
	case StateTitle:
		return StateType, true
	case StateType:
		if f.Type == "link" {
			return StateURLWait, true
		}
		return StateFileWait, true
	case StateFileWait, StateURLWait:
		return StateDescription, true
	case StateDescription:
		return StateBindModels, true
	case StateBindModels:
		return StateConfirm, true
	}
	return "", false
}

// Prev returns the single declared predecessor of state s, given the
// data accumulated so far. The first state has no predecessor.
func Prev(s State, f Fields) (State, bool) {
	switch s {
	case StateType:
		return StateTitle, true
	case StateFileWait, StateURLWait:
		return StateType, true
	case StateDescription:
		if f.Type == "link" {
			return StateURLWait, true
		}
		return StateFileWait, true
	case StateBindModels:
		return StateDescription, true
	case StateConfirm:
		return StateBindModels, true
	case StateModelDescription:
		return StateModelName, true
	case StateModelTags:
		return StateModelDescription, true
	}
	return "", false
}

// ValidTitle rejects empty or whitespace-only titles.
func ValidTitle(text string) bool {
	return strings.TrimSpace(text) != ""
}

// ParseType normalizes a document type choice. Empty result means the
// input is not a recognized type.
func ParseType(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "pdf":
		return "pdf"
	case "video":
		return "video"
	case "link", "url":
		return "link"
	}
	return ""
}

// ValidURL accepts only absolute http(s) links.
func ValidURL(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")
}

// ToggleModelID adds id to the selection if absent and removes it if
// present. Selection behaves as a set.
func ToggleModelID(ids []int64, id int64) []int64 {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return append(ids, id)
}

// Selected reports whether id is currently part of the selection.
func Selected(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
