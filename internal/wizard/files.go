package wizard

import (
	"errors"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize caps uploads at 20 MiB, matching what the bot API
// will serve back out.
const DefaultMaxFileSize = 20 * 1024 * 1024

var (
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
)

// allowedExtensions covers the document, image, archive, video and
// audio formats admins are expected to upload.
var allowedExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".txt": {}, ".rtf": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {},
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".m4a": {}, ".flac": {},
}

// CheckFile validates an uploaded file against the size limit and the
// extension allow-list. Size is checked first so an oversize file of an
// unknown type reports the size problem. A maxSize of 0 falls back to
// the default limit. Files without a name (e.g. photos sent as media)
// skip the extension check because Telegram has already transcoded them.
func CheckFile(name string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if size > maxSize {
		return ErrFileTooLarge
	}
	if name == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return ErrFileTypeNotAllowed
	}
	return nil
}
