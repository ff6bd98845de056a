// Package bootstrap собирает клиентские зависимости для команд CLI:
// HTTP-клиент, локальное хранилище, менеджер ключей, сокет и сервис сообщений.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"FromChat/internal/cli/api"
	"FromChat/internal/cli/chat"
	"FromChat/internal/cli/crypto"
	"FromChat/internal/cli/envelope"
	"FromChat/internal/cli/repo"
	fsrepo "FromChat/internal/cli/repo/fs"
	reposqlite "FromChat/internal/cli/repo/sqlite"
	"FromChat/internal/cli/session"
	"FromChat/internal/config"
	"FromChat/internal/transport"

	"go.uber.org/zap"
)

// ErrNotLoggedIn: нет сохранённого логина или токена.
var ErrNotLoggedIn = errors.New("not logged in: run login or register first")

// NewLogger возвращает логгер клиента: подробный при cfg.Debug, иначе молчаливый.
func NewLogger(cfg *config.Config) *zap.SugaredLogger {
	if cfg.Debug {
		if l, err := zap.NewDevelopment(); err == nil {
			return l.Sugar()
		}
	}
	return zap.NewNop().Sugar()
}

// NewAPI создаёт HTTP-клиент, который берёт токен из файлового хранилища.
func NewAPI(cfg *config.Config, auth repo.TokenStore) *api.Client {
	return api.New(cfg.ServerURL, func() string {
		tok, _ := auth.Load()
		return tok
	})
}

// OpenStore открывает и мигрирует локальное хранилище ключей пользователя login.
// cleanup закрывает соединение с БД.
func OpenStore(ctx context.Context, cfg *config.Config, login string) (*reposqlite.KVStore, func() error, error) {
	s, _, err := reposqlite.OpenForUser(cfg.ClientDBPath, login)
	if err != nil {
		return nil, nil, fmt.Errorf("open user db: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("migrate user db: %w", err)
	}
	return s, s.Close, nil
}

// NewSession создаёт менеджер ключей с параметрами Argon2id из конфигурации.
func NewSession(cfg *config.Config, registry session.KeyRegistry, store *reposqlite.KVStore, logger *zap.SugaredLogger) *session.Manager {
	params := crypto.DefaultBackupParams
	if cfg.BackupKDFTime > 0 {
		params.Time = uint32(cfg.BackupKDFTime)
	}
	if cfg.BackupKDFMemoryKiB > 0 {
		params.MemoryKiB = uint32(cfg.BackupKDFMemoryKiB)
	}
	return session.New(registry, store, session.WithLogger(logger), session.WithBackupParams(params))
}

// App: окружение залогиненного пользователя.
type App struct {
	Config  *config.Config
	Logger  *zap.SugaredLogger
	Auth    repo.AuthStore
	API     *api.Client
	Store   *reposqlite.KVStore
	Session *session.Manager
	Login   string
	UserID  int64

	closeStore func() error
}

// Open собирает App для последнего вошедшего пользователя. Ключи не загружаются:
// для этого вызовите Resume.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	return OpenWith(ctx, cfg, fsrepo.AuthFSStore{})
}

// OpenWith: Open с явным хранилищем токена и логина.
func OpenWith(ctx context.Context, cfg *config.Config, auth repo.AuthStore) (*App, error) {
	login, err := auth.LoadLogin()
	if err != nil {
		return nil, ErrNotLoggedIn
	}
	if tok, err := auth.Load(); err != nil || tok == "" {
		return nil, ErrNotLoggedIn
	}
	rawID, err := auth.LoadUserID(login)
	if err != nil {
		return nil, ErrNotLoggedIn
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stored user id %q: %w", rawID, err)
	}

	logger := NewLogger(cfg)
	store, closeStore, err := OpenStore(ctx, cfg, login)
	if err != nil {
		return nil, err
	}
	client := NewAPI(cfg, auth)
	return &App{
		Config:     cfg,
		Logger:     logger,
		Auth:       auth,
		API:        client,
		Store:      store,
		Session:    NewSession(cfg, client, store, logger),
		Login:      login,
		UserID:     userID,
		closeStore: closeStore,
	}, nil
}

// Resume поднимает ключи из локального кэша. Если кэш устарел, нужен повторный login.
func (a *App) Resume(ctx context.Context) error {
	err := a.Session.Resume(ctx)
	switch {
	case errors.Is(err, session.ErrNoCachedKeys), errors.Is(err, session.ErrStaleCache):
		return fmt.Errorf("%w: run login again to restore keys", err)
	case errors.Is(err, api.ErrUnauthorized):
		return fmt.Errorf("session expired: %w", ErrNotLoggedIn)
	}
	return err
}

// NewTransport создаёт сокет-клиент. Обработчики push регистрируются на router до Start.
func (a *App) NewTransport(router *transport.Router) *transport.Client {
	return transport.NewClient(transport.Options{
		URL: a.Config.SocketURL,
		Token: func() string {
			tok, _ := a.Auth.Load()
			return tok
		},
		RequestTimeout: a.Config.RequestTimeout,
		ReconnectMin:   a.Config.ReconnectMin,
		ReconnectMax:   a.Config.ReconnectMax,
		Logger:         a.Logger,
	}, router)
}

// Start запускает client в фоне. stop закрывает соединение и ждёт завершения Run.
func Start(ctx context.Context, client *transport.Client) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Chat создаёт сервис сообщений поверх rpc. Ключи должны быть загружены.
func (a *App) Chat(rpc chat.Requester) *chat.Service {
	return chat.NewService(a.UserID, envelope.NewEngine(a.Session), rpc, a.API, a.Store, a.Logger)
}

// Close стирает ключи из памяти и закрывает хранилище.
func (a *App) Close() error {
	_ = a.Session.Teardown(context.Background(), false)
	_ = a.Logger.Sync()
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}
