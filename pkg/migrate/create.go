package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// Slug lowercases name and collapses every run of non-alphanumerics into one
// underscore.
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<UTC timestamp>_<slug>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, at time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("migration dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migration dir %q: %w", dir, err)
	}

	path := filepath.Join(dir, at.Format(versionLayout)+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("migration %s already exists", path)
		}
		return "", fmt.Errorf("open migration %q: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, sqlTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
