package storage

import "time"

// Document kinds. Instructions and recipes share one table and differ
// only in how they are surfaced to the user.
const (
	KindInstruction = "instruction"
	KindRecipe      = "recipe"
)

// Document types.
const (
	TypePDF   = "pdf"
	TypeVideo = "video"
	TypeLink  = "link"
)

// Ticket statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Ticket message roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Model struct {
	ID          int64
	Name        string
	Description string
	Tags        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Document struct {
	ID          int64
	Kind        string
	Title       string
	Type        string
	Description string
	TgFileID    *string
	URL         *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Ticket struct {
	ID        int64
	UserID    int64
	Username  string
	Status    string
	Subject   string
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

type TicketMessage struct {
	ID        int64
	TicketID  int64
	FromRole  string
	Text      string
	TgFileID  *string
	FileType  *string
	CreatedAt time.Time
}

// ValidDocumentType reports whether t is one of the recognized document types.
func ValidDocumentType(t string) bool {
	switch t {
	case TypePDF, TypeVideo, TypeLink:
		return true
	}
	return false
}

// ValidTicketStatus reports whether s is a recognized ticket status.
func ValidTicketStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}
