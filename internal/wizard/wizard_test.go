package wizard

import (
	"errors"
	"testing"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		name   string
		state  State
		fields Fields
		want   State
		ok     bool
	}{
		{"title to type", StateTitle, Fields{}, StateType, true},
		{"type pdf to file", StateType, Fields{Type: "pdf"}, StateFileWait, true},
		{"type video to file", StateType, Fields{Type: "video"}, StateFileWait, true},
		{"type link to url", StateType, Fields{Type: "link"}, StateURLWait, true},
		{"file to description", StateFileWait, Fields{}, StateDescription, true},
		{"url to description", StateURLWait, Fields{}, StateDescription, true},
		{"description to bind", StateDescription, Fields{}, StateBindModels, true},
		{"bind to confirm", StateBindModels, Fields{}, StateConfirm, true},
		{"confirm is terminal", StateConfirm, Fields{}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Next(tc.state, tc.fields)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Next(%s) = %q, %v; want %q, %v", tc.state, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestPrevTransitions(t *testing.T) {
	cases := []struct {
		name   string
		state  State
		fields Fields
		want   State
		ok     bool
	}{
		{"title has no predecessor", StateTitle, Fields{}, "", false},
		{"type back to title", StateType, Fields{}, StateTitle, true},
		{"file back to type", StateFileWait, Fields{Type: "pdf"}, StateType, true},
		{"url back to type", StateURLWait, Fields{Type: "link"}, StateType, true},
		{"description back to file", StateDescription, Fields{Type: "pdf"}, StateFileWait, true},
		{"description back to url", StateDescription, Fields{Type: "link"}, StateURLWait, true},
		{"bind back to description", StateBindModels, Fields{}, StateDescription, true},
		{"confirm back to bind", StateConfirm, Fields{}, StateBindModels, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Prev(tc.state, tc.fields)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Prev(%s) = %q, %v; want %q, %v", tc.state, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestFullLinkFlow(t *testing.T) {
	f := Fields{Kind: "instruction"}
	state := StateTitle

	f.Title = "Setup Guide"
	state, _ = Next(state, f)
	if state != StateType {
		t.Fatalf("after title expected %s, got %s", StateType, state)
	}

	f.Type = ParseType("link")
	if f.Type != "link" {
		t.Fatalf("parse type: got %q", f.Type)
	}
	state, _ = Next(state, f)
	if state != StateURLWait {
		t.Fatalf("after type expected %s, got %s", StateURLWait, state)
	}

	if !ValidURL("https://example.com/doc") {
		t.Fatal("expected url to validate")
	}
	f.URL = "https://example.com/doc"
	state, _ = Next(state, f)
	if state != StateDescription {
		t.Fatalf("after url expected %s, got %s", StateDescription, state)
	}

	state, _ = Next(state, f)
	f.ModelIDs = ToggleModelID(f.ModelIDs, 3)
	state, _ = Next(state, f)
	if state != StateConfirm {
		t.Fatalf("expected %s at the end, got %s", StateConfirm, state)
	}

	// Earlier fields survive every later step untouched.
	if f.Title != "Setup Guide" || f.Type != "link" || f.URL != "https://example.com/doc" {
		t.Fatalf("accumulated fields were mutated: %+v", f)
	}
	if !Selected(f.ModelIDs, 3) {
		t.Fatal("expected model 3 selected")
	}
}

func TestParseType(t *testing.T) {
	cases := map[string]string{
		"pdf":   "pdf",
		"PDF":   "pdf",
		"video": "video",
		"link":  "link",
		"url":   "link",
		"doc":   "",
		"":      "",
	}
	for in, want := range cases {
		if got := ParseType(in); got != want {
			t.Fatalf("ParseType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidURL(t *testing.T) {
	if ValidURL("not-a-url") {
		t.Fatal("expected plain text to be rejected")
	}
	if ValidURL("ftp://example.com") {
		t.Fatal("expected ftp scheme to be rejected")
	}
	if !ValidURL("http://example.com") || !ValidURL("https://example.com") {
		t.Fatal("expected http(s) to be accepted")
	}
}

func TestToggleModelIDIsSetLike(t *testing.T) {
	var ids []int64
	ids = ToggleModelID(ids, 5)
	ids = ToggleModelID(ids, 7)
	if len(ids) != 2 || !Selected(ids, 5) || !Selected(ids, 7) {
		t.Fatalf("unexpected selection: %v", ids)
	}
	ids = ToggleModelID(ids, 5)
	if len(ids) != 1 || Selected(ids, 5) {
		t.Fatalf("expected 5 removed, got %v", ids)
	}
	ids = ToggleModelID(ids, 7)
	if len(ids) != 0 {
		t.Fatalf("expected empty selection, got %v", ids)
	}
}

func TestCheckFileSize(t *testing.T) {
	if err := CheckFile("manual.pdf", DefaultMaxFileSize+1, DefaultMaxFileSize); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if err := CheckFile("manual.pdf", 25*1024*1024, DefaultMaxFileSize); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge for 25 MiB, got %v", err)
	}
	if err := CheckFile("manual.pdf", 1024, DefaultMaxFileSize); err != nil {
		t.Fatalf("expected small pdf accepted, got %v", err)
	}
}

func TestCheckFileExtension(t *testing.T) {
	if err := CheckFile("malware.exe", 1024, DefaultMaxFileSize); !errors.Is(err, ErrFileTypeNotAllowed) {
		t.Fatalf("expected ErrFileTypeNotAllowed, got %v", err)
	}
	// Oversize wins over a bad extension so the user hears about the
	// size first.
	if err := CheckFile("malware.exe", DefaultMaxFileSize+1, DefaultMaxFileSize); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected size checked first, got %v", err)
	}
	// Photos arrive without a filename; only the size applies then.
	if err := CheckFile("", 1024, DefaultMaxFileSize); err != nil {
		t.Fatalf("expected nameless upload accepted, got %v", err)
	}
	for _, name := range []string{"a.pdf", "b.JPG", "c.zip", "d.mp4", "e.mp3"} {
		if err := CheckFile(name, 1024, DefaultMaxFileSize); err != nil {
			t.Fatalf("expected %q accepted, got %v", name, err)
		}
	}
}
