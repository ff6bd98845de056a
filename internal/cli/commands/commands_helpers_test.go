package commands

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// isolateUserDirs уводит токен, last_login и базы пользователей во временный каталог
// и возвращает каталог баз (CLIENT_DB_PATH).
func isolateUserDirs(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	switch runtime.GOOS {
	case "windows":
		t.Setenv("APPDATA", home)
	case "darwin":
		// os.UserConfigDir на macOS смотрит в $HOME/Library/Application Support
		t.Setenv("HOME", home)
	default:
		t.Setenv("XDG_CONFIG_HOME", home)
	}
	dbDir := filepath.Join(home, "fromchat-db")
	if err := os.MkdirAll(dbDir, 0o700); err != nil {
		t.Fatalf("create db dir: %v", err)
	}
	t.Setenv("CLIENT_DB_PATH", dbDir)
	return dbDir
}
