// Package pagination implements keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	separator = "~"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for zero or below.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer asks for one extra row so callers can tell whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim drops the buffer row fetched by LimitWithBuffer and reports whether it existed.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	limit = NormalizeLimit(limit)
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}

// EncodeCursor renders a URL-safe token for query strings.
func EncodeCursor(cursor Cursor) string {
	raw := cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + separator + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor returns nil for a blank value.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(decoded), separator)
	if !ok {
		return nil, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: createdAt, ID: parsedID}, nil
}
