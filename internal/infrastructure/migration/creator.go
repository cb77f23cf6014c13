package migration

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/golang-migrate/migrate/v4/source"
)

var (
	upTemplate = template.Must(template.New("up").Parse(`-- Migration: {{.Name}}
-- Created: {{.Timestamp}}
-- Description: {{.Description}}

-- Money columns are decimal(18,4); JSON payloads are jsonb

`))

	downTemplate = template.Must(template.New("down").Parse(`-- Migration: {{.Name}} (Rollback)
-- Created: {{.Timestamp}}
-- Description: Rollback for {{.Description}}

`))
)

// versionWidth is the zero padding of version prefixes, e.g. 000003_add_index
const versionWidth = 6

// Migration is one versioned pair of SQL files
type Migration struct {
	Version uint
	Name    string
	HasDown bool
}

// String returns the shared base name of the pair's files
func (m Migration) String() string {
	return fmt.Sprintf("%0*d_%s", versionWidth, m.Version, m.Name)
}

// MigrationFile describes a pair written by CreateMigration
type MigrationFile struct {
	Version     uint
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair into migrationsDir, numbered one
// past the highest version already there.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	return createMigration(migrationsDir, name, description, time.Now())
}

func createMigration(migrationsDir, name, description string, now time.Time) (*MigrationFile, error) {
	safe := sanitizeName(name)
	if safe == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	existing, err := ListMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	next := Migration{Version: 1, Name: safe}
	if len(existing) > 0 {
		next.Version = existing[len(existing)-1].Version + 1
	}
	base := filepath.Join(migrationsDir, next.String())
	mf := &MigrationFile{
		Version:     next.Version,
		Name:        name,
		Description: description,
		Timestamp:   now.Format(time.RFC3339),
		UpPath:      base + ".up.sql",
		DownPath:    base + ".down.sql",
	}

	if err := writeTemplate(mf.UpPath, upTemplate, mf); err != nil {
		return nil, fmt.Errorf("create up migration: %w", err)
	}
	if err := writeTemplate(mf.DownPath, downTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("create down migration: %w", err)
	}
	return mf, nil
}

func writeTemplate(path string, tmpl *template.Template, data *MigrationFile) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

// sanitizeName lowercases name and collapses runs of spaces, dashes and
// underscores into single underscores, dropping anything else
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// ListMigrations returns the migrations in migrationsDir in version order, using
// the same file name rules as golang-migrate. Files it cannot parse are ignored;
// two up files with one version are an error. A missing directory holds no migrations.
func ListMigrations(migrationsDir string) ([]Migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	byVersion := make(map[uint]*Migration)
	hasUp := make(map[uint]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parsed, err := source.Parse(entry.Name())
		if err != nil {
			continue
		}
		m, ok := byVersion[parsed.Version]
		if !ok {
			m = &Migration{Version: parsed.Version, Name: parsed.Identifier}
			byVersion[parsed.Version] = m
		}
		switch parsed.Direction {
		case source.Up:
			if hasUp[parsed.Version] {
				return nil, fmt.Errorf("migration version %d has more than one up file", parsed.Version)
			}
			hasUp[parsed.Version] = true
		case source.Down:
			m.HasDown = true
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for v, m := range byVersion {
		// a lone down file cannot be applied
		if hasUp[v] {
			migrations = append(migrations, *m)
		}
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}
