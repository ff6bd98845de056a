package sqlite

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// Схема локального хранилища: одна таблица kv (ключи устройства, закреплённые ключи
// собеседников). Файлы применяются по порядку имён и должны быть идемпотентны.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// migrations возвращает DDL всех миграций в порядке применения.
func migrations() ([]string, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		ddl, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, string(ddl))
	}
	return out, nil
}
