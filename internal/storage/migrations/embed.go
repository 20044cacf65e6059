// Package migrations applies the embedded schema files on startup. All
// statements are CREATE IF NOT EXISTS, so reapplying on every boot is safe
// and there is no version table to maintain.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// sqlFiles returns the paths of the .sql entries in one embedded directory.
// fs.ReadDir guarantees lexical order, which is the application order
// (001_, 002_, ...).
func sqlFiles(fsys embed.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, dir+"/"+entry.Name())
		}
	}
	return files, nil
}
