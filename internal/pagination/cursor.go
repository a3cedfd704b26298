// Package pagination provides opaque cursors for paging through an
// order's append-only event log.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrInvalidCursor is returned for cursors that were not produced by Encode
// or no longer match the log.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Cursor marks the last item returned by the previous page: its position in
// the log and its GUID.
type Cursor struct {
	Position int
	GUID     string
}

// Encode returns an opaque cursor string.
func Encode(position int, guid string) string {
	raw := strconv.Itoa(position) + "|" + guid
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	pos, guid, ok := strings.Cut(string(raw), "|")
	if !ok || guid == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.Atoi(pos)
	if err != nil || n < 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Position: n, GUID: guid}, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Page returns the items after cursor, at most limit of them, with the
// cursor for the next page (empty when there is none). guidOf must return
// the identity stored in cursors so a stale cursor is detected.
func Page[T any](items []T, cursor string, limit int, guidOf func(T) string) ([]T, string, error) {
	c, err := Decode(cursor)
	if err != nil {
		return nil, "", err
	}
	start := 0
	if c != nil {
		if c.Position >= len(items) || guidOf(items[c.Position]) != c.GUID {
			return nil, "", ErrInvalidCursor
		}
		start = c.Position + 1
	}

	limit = ClampLimit(limit)
	end := start + limit
	if end >= len(items) {
		return items[start:], "", nil
	}
	last := end - 1
	return items[start:end], Encode(last, guidOf(items[last])), nil
}
