// Package converters renders generated markdown and session history into
// downloadable files.
package converters

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/elearning-factory/internal/models"
)

var (
	ErrEmptyContent      = errors.New("nothing to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatDOCX, FormatPDF, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

func (f Format) Extension() string {
	return "." + string(f)
}

// ConversationExport is the JSON export document.
type ConversationExport struct {
	SessionID    string                    `json:"sessionId"`
	Operation    string                    `json:"operation,omitempty"`
	ExportedAt   time.Time                 `json:"exportedAt"`
	Turns        int                       `json:"turns"`
	LastResponse string                    `json:"lastResponse"`
	History      []models.ConversationTurn `json:"history"`
}

// ToJSON exports the full conversation of sess.
func ToJSON(sess *models.Session, now time.Time) ([]byte, error) {
	if sess == nil || len(sess.History) == 0 {
		return nil, ErrEmptyContent
	}
	doc := ConversationExport{
		SessionID:    sess.ID,
		Operation:    sess.Operation,
		ExportedAt:   now,
		Turns:        len(sess.History),
		LastResponse: sess.LastResponse,
		History:      sess.History,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}
	return data, nil
}

// Export renders the session in format: documents carry the latest reply,
// JSON carries the whole history.
func Export(sess *models.Session, format Format, now time.Time) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ToJSON(sess, now)
	case FormatDOCX:
		return ToDOCX(lastResponse(sess))
	case FormatPDF:
		return ToPDF(lastResponse(sess))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func lastResponse(sess *models.Session) string {
	if sess == nil {
		return ""
	}
	return sess.LastResponse
}
