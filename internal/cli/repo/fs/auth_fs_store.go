package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"FromChat/internal/cli/repo"
)

// AuthFSStore: файловое хранилище токена и контекста пользователя для CLI.
// Токен хранится отдельно от ключей (локальная БД пользователя).
type AuthFSStore struct{}

var _ repo.AuthStore = AuthFSStore{}

func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, "FromChat")
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", err
	}
	return p, nil
}

func pathIn(name string) (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func tokenPath() (string, error)     { return pathIn("auth_token") }
func lastLoginPath() (string, error) { return pathIn("last_login") }

func userIDPath(login string) (string, error) {
	if login == "" {
		return "", errors.New("empty login for user_id")
	}
	// Храним per-user, чтобы поддерживать несколько аккаунтов
	return pathIn("user_id_" + login)
}

// readTrimmed читает файл и обрезает завершающие переводы строки/пробелы.
func readTrimmed(p, emptyMsg string) (string, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	s := strings.TrimRight(string(b), " \t\r\n")
	if s == "" {
		return "", errors.New(emptyMsg)
	}
	return s, nil
}

// Save сохраняет auth‑токен в файл.
func (AuthFSStore) Save(token string) error {
	p, err := tokenPath()
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(token), 0o600)
}

// Load читает auth‑токен из файла.
func (AuthFSStore) Load() (string, error) {
	p, err := tokenPath()
	if err != nil {
		return "", err
	}
	return readTrimmed(p, "empty token file")
}

// Clear удаляет токен (logout). Отсутствие файла ошибкой не считается.
func (AuthFSStore) Clear() error {
	p, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SaveLogin сохраняет логин пользователя в файл.
func (AuthFSStore) SaveLogin(login string) error {
	if login == "" {
		return errors.New("empty login")
	}
	p, err := lastLoginPath()
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(login), 0o600)
}

// LoadLogin читает логин пользователя из файла.
func (AuthFSStore) LoadLogin() (string, error) {
	p, err := lastLoginPath()
	if err != nil {
		return "", err
	}
	return readTrimmed(p, "no stored login")
}

// SaveUserID сохраняет серверный id пользователя login.
func (AuthFSStore) SaveUserID(login, id string) error {
	if id == "" {
		return errors.New("empty user id")
	}
	p, err := userIDPath(login)
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(id), 0o600)
}

// LoadUserID читает серверный id пользователя login.
func (AuthFSStore) LoadUserID(login string) (string, error) {
	p, err := userIDPath(login)
	if err != nil {
		return "", err
	}
	return readTrimmed(p, "empty user_id file")
}
