// Package textextract turns uploaded statement artifacts into plain text for
// the line extractor.
package textextract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnavailable means no provider could produce text for the artifact. The
// statement waits in needs_text until text is supplied some other way.
var ErrUnavailable = errors.New("text extraction unavailable")

// Artifact is an uploaded file as read back from storage.
type Artifact struct {
	Filename string
	MimeType string
	Data     []byte
}

// IsText reports whether the artifact is already plain text.
func (a Artifact) IsText() bool {
	if strings.HasPrefix(a.MimeType, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(a.Filename)) {
	case ".txt", ".text":
		return true
	}
	return false
}

// IsPDF reports whether the artifact is a PDF document.
func (a Artifact) IsPDF() bool {
	return a.MimeType == "application/pdf" || strings.EqualFold(filepath.Ext(a.Filename), ".pdf")
}

// Provider extracts statement text. Implementations return ErrUnavailable
// (possibly wrapped) for artifacts they cannot handle.
type Provider interface {
	Extract(ctx context.Context, a Artifact) (string, error)
}

// PlainText returns text artifacts as is.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, a Artifact) (string, error) {
	if !a.IsText() {
		return "", fmt.Errorf("PlainText: %s: %w", a.MimeType, ErrUnavailable)
	}
	if !utf8.Valid(a.Data) {
		return "", fmt.Errorf("PlainText: %s is not valid UTF-8: %w", a.Filename, ErrUnavailable)
	}
	return strings.TrimPrefix(string(a.Data), "\ufeff"), nil
}

// Chain tries providers in order and returns the first text produced. A
// provider error other than ErrUnavailable stops the chain.
type Chain []Provider

func (c Chain) Extract(ctx context.Context, a Artifact) (string, error) {
	for _, p := range c {
		text, err := p.Extract(ctx, a)
		if errors.Is(err, ErrUnavailable) {
			continue
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		return text, nil
	}
	return "", ErrUnavailable
}
