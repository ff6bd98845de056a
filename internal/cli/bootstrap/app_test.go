package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	fsrepo "FromChat/internal/cli/repo/fs"
	"FromChat/internal/cli/session"
	"FromChat/internal/config"
)

// helper: временный пользовательский конфиг для тестов
func setTempCfg(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Setenv("APPDATA", dir)
	} else {
		t.Setenv("XDG_CONFIG_HOME", dir)
	}
	// база клиентов хранится в ClientDBPath
	db := filepath.Join(dir, "db")
	_ = os.MkdirAll(db, 0o700)
	return &config.Config{ServerURL: "http://127.0.0.1:1", SocketURL: "ws://127.0.0.1:1/chat/ws", ClientDBPath: db}
}

func saveIdentity(t *testing.T, login, id string) {
	t.Helper()
	auth := fsrepo.AuthFSStore{}
	if err := auth.SaveLogin(login); err != nil {
		t.Fatalf("save login: %v", err)
	}
	if err := auth.Save("tok"); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if err := auth.SaveUserID(login, id); err != nil {
		t.Fatalf("save user id: %v", err)
	}
}

func TestOpen_SuccessAndClose(t *testing.T) {
	cfg := setTempCfg(t)
	saveIdentity(t, "john", "12")

	app, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if app.UserID != 12 || app.Login != "john" {
		t.Fatalf("unexpected identity: %d %s", app.UserID, app.Login)
	}
	if app.Session.State() != session.Uninitialized {
		t.Fatalf("keys must not be loaded by Open")
	}
	// хранилище рабочее
	if err := app.Store.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("store set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.ClientDBPath, "john", "client.sqlite")); err != nil {
		t.Fatalf("db must live in ClientDBPath: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpen_ErrorWhenNoLogin(t *testing.T) {
	cfg := setTempCfg(t)
	if _, err := Open(context.Background(), cfg); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestOpen_ErrorWhenTokenCleared(t *testing.T) {
	cfg := setTempCfg(t)
	saveIdentity(t, "john", "12")
	_ = (fsrepo.AuthFSStore{}).Clear()
	if _, err := Open(context.Background(), cfg); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

// Доп.кейс: ClientDBPath указывает на обычный файл
func TestOpenStore_FailsWhenClientDBPathIsFile(t *testing.T) {
	cfg := setTempCfg(t)
	tmpFile := filepath.Join(t.TempDir(), "not_dir")
	if err := os.WriteFile(tmpFile, []byte("x"), 0o600); err != nil {
		t.Fatalf("prepare tmp file: %v", err)
	}
	cfg.ClientDBPath = tmpFile
	if _, _, err := OpenStore(context.Background(), cfg, "john"); err == nil {
		t.Fatalf("expected error when ClientDBPath points to file, got nil")
	}
}

func TestResume_WithoutCacheAsksForLogin(t *testing.T) {
	cfg := setTempCfg(t)
	saveIdentity(t, "ann", "3")
	app, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer app.Close()

	err = app.Resume(context.Background())
	if !errors.Is(err, session.ErrNoCachedKeys) {
		t.Fatalf("expected ErrNoCachedKeys, got %v", err)
	}
}

// memAuth: хранилище токена и логина в памяти.
type memAuth struct {
	token, login string
	ids          map[string]string
}

func (m *memAuth) Save(token string) error { m.token = token; return nil }
func (m *memAuth) Load() (string, error)   { return m.token, nil }
func (m *memAuth) Clear() error            { m.token = ""; return nil }
func (m *memAuth) SaveLogin(login string) error {
	m.login = login
	return nil
}
func (m *memAuth) LoadLogin() (string, error) {
	if m.login == "" {
		return "", errors.New("no login")
	}
	return m.login, nil
}
func (m *memAuth) SaveUserID(login, id string) error { m.ids[login] = id; return nil }
func (m *memAuth) LoadUserID(login string) (string, error) {
	id, ok := m.ids[login]
	if !ok {
		return "", errors.New("no id")
	}
	return id, nil
}

func TestOpenWith_CustomAuthStore(t *testing.T) {
	cfg := setTempCfg(t)
	auth := &memAuth{token: "tok", login: "kate", ids: map[string]string{"kate": "not-a-number"}}
	if _, err := OpenWith(context.Background(), cfg, auth); err == nil {
		t.Fatalf("expected error for malformed user id")
	}

	auth.ids["kate"] = "7"
	app, err := OpenWith(context.Background(), cfg, auth)
	if err != nil {
		t.Fatalf("OpenWith: %v", err)
	}
	defer app.Close()
	if app.UserID != 7 || app.Login != "kate" {
		t.Fatalf("unexpected identity: %d %s", app.UserID, app.Login)
	}

	auth.token = ""
	if _, err := OpenWith(context.Background(), cfg, auth); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}
