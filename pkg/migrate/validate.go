package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var migrationName = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// ValidateDir checks the migrations in a directory on disk.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("migration dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS checks every .sql file under dir: the name must be
// <14 digit version>_<slug>.sql, versions must be unique, and the body must
// hold an Up marker followed by a Down marker. All problems are reported
// together.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migrations %q: %w", dir, err)
	}

	var problems error
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		m := migrationName.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: want YYYYMMDDHHMMSS_slug.sql", name))
			continue
		}
		if first, dup := versions[m[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, m[1], first))
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		problems = multierr.Append(problems, checkSections(name, string(body)))
	}
	return problems
}

func checkSections(name, body string) error {
	up := strings.Index(body, upMarker)
	down := strings.Index(body, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("%s: missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("%s: %q must come before %q", name, upMarker, downMarker)
	}
	return nil
}
