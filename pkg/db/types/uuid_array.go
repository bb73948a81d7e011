package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray maps a Postgres uuid[] column. On sqlite the array literal is stored as text.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	parts, err := scanArrayLiteral(src)
	if err != nil {
		return fmt.Errorf("UUIDArray: %w", err)
	}
	out := make(UUIDArray, 0, len(parts))
	for _, raw := range parts {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("UUIDArray: parse %q: %w", raw, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	parts := make([]string, 0, len(a))
	for _, id := range a {
		parts = append(parts, id.String())
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether id is in the array.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, candidate := range a {
		if candidate == id {
			return true
		}
	}
	return false
}

// StringArray maps a Postgres text[] column of simple tokens (no commas or quotes).
type StringArray []string

func (a *StringArray) Scan(src any) error {
	parts, err := scanArrayLiteral(src)
	if err != nil {
		return fmt.Errorf("StringArray: %w", err)
	}
	*a = StringArray(parts)
	return nil
}

func (a StringArray) Value() (driver.Value, error) {
	return "{" + strings.Join(a, ",") + "}", nil
}

func (a StringArray) Contains(value string) bool {
	for _, candidate := range a {
		if candidate == value {
			return true
		}
	}
	return false
}

func scanArrayLiteral(src any) ([]string, error) {
	var s string
	switch v := src.(type) {
	case nil:
		return []string{}, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return nil, fmt.Errorf("unsupported Scan type %T", src)
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	if strings.TrimSpace(s) == "" {
		return []string{}, nil
	}

	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, strings.TrimSpace(strings.Trim(r, `"`)))
	}
	return out, nil
}
