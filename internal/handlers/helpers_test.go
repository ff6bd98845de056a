package handlers_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"FromChat/internal/config"
	"FromChat/internal/handlers"
	"FromChat/internal/hub"
	"FromChat/internal/middleware"
	"FromChat/internal/model"
	"FromChat/internal/repo"
	"FromChat/internal/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// Minimal mocks
type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	args := m.Called(ctx, user)
	if u, ok := args.Get(0).(*model.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	args := m.Called(ctx, login)
	if u, ok := args.Get(0).(*model.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*model.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *mockUserRepo) MarkDeleted(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

var _ repo.UserRepository = (*mockUserRepo)(nil)

// newTestRouter собирает роутер с моком пользователей и реальным реестром ключей на SQLite.
func newTestRouter(t *testing.T, ur repo.UserRepository) http.Handler {
	t.Helper()
	cfg := &config.Config{AuthSecret: testSecret}
	logger := zap.NewNop().Sugar()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repo.InitDB("sqlite:file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	userSvc := service.NewUserService(ur)
	cryptoSvc := service.NewCryptoService(repo.NewKeyRepository(db))
	dmSvc := service.NewDMService(repo.NewDMRepository(db), userSvc, logger)
	h := handlers.NewHandler(userSvc, cryptoSvc, hub.New(dmSvc, cfg.AuthSecret, logger), logger, cfg)
	return h.Router
}

func addAuth(t *testing.T, req *http.Request, userID int64) {
	t.Helper()
	tok, err := middleware.BuildJWTString(userID, testSecret)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
}
