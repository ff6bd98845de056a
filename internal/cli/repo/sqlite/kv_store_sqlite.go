package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"FromChat/internal/cli/repo"

	_ "modernc.org/sqlite"
)

// KVStore: локальное хранилище ключ-значение поверх SQLite (один файл на пользователя).
type KVStore struct {
	db    *sql.DB
	login string
}

var _ repo.KeyValueStore = (*KVStore)(nil)

var loginRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// BaseDir возвращает каталог с пользовательскими БД: CLIENT_DB_PATH или <UserConfigDir>/FromChat/users.
func BaseDir() (string, error) {
	if base := os.Getenv("CLIENT_DB_PATH"); base != "" {
		return base, nil
	}
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "FromChat", "users"), nil
}

// OpenForUser открывает (и создаёт при необходимости) файл БД для указанного логина
// в каталоге base (пустой base: BaseDir()). Вторым значением возвращается путь к БД.
func OpenForUser(base, login string) (*KVStore, string, error) {
	if login == "" {
		return nil, "", errors.New("empty login for user store")
	}
	if !loginRe.MatchString(login) || login == "." || login == ".." {
		return nil, "", errors.New("login is not usable as a directory name")
	}
	if base == "" {
		var err error
		if base, err = BaseDir(); err != nil {
			return nil, "", err
		}
	}
	dir := filepath.Join(base, login)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", err
	}
	dbPath := filepath.Join(dir, "client.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, "", err
	}
	return &KVStore{db: db, login: login}, dbPath, nil
}

// Close закрывает соединение с БД.
func (s *KVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate гарантирует наличие необходимых таблиц.
func (s *KVStore) Migrate(ctx context.Context) error {
	ddl, err := migrations()
	if err != nil {
		return err
	}
	for i, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Get возвращает значение по ключу; ok=false, если ключа нет.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set вставляет или перезаписывает значение.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("empty key")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}
