package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// Files embeds the SQL migrations.
//
//go:embed *.sql
var Files embed.FS

// Up returns the up migrations in apply order.
func Up() ([]string, error) {
	names, err := fs.Glob(Files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(Files, name)
		if err != nil {
			return nil, err
		}
		out = append(out, strings.TrimSpace(string(body)))
	}
	return out, nil
}
