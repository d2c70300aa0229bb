// Package artifacts stores uploaded statement files and reads them back by
// their storage reference.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidRef is returned for a storage reference the store cannot read.
var ErrInvalidRef = errors.New("invalid storage reference")

// Store persists artifact bytes under a key and returns a reference that
// Get accepts later.
type Store interface {
	// Put writes data under key. key is a slash-separated relative path.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Get reads the bytes behind a reference returned by Put.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Key builds the object key for one statement upload.
func Key(userID, statementID, filename string) string {
	return path.Join("statements", safeSegment(userID), safeSegment(statementID), SafeFilename(filename))
}

// SafeFilename keeps the base name of filename and replaces characters that
// are awkward in object names.
func SafeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return "statement"
	}
	return safeSegment(base)
}

func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("ParseGCSURI: %s: %w", uri, ErrInvalidRef)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ParseGCSURI: %s has no object path: %w", uri, ErrInvalidRef)
	}
	return parts[0], parts[1], nil
}

// FilenameFromRef extracts the file name from a reference.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromRef(ref string) string {
	for _, scheme := range []string{"gs://", "file://"} {
		ref = strings.TrimPrefix(ref, scheme)
	}
	return path.Base(ref)
}
