package handlers

import (
	"encoding/json"
	"net/http"

	"FromChat/internal/config"
	"FromChat/internal/hub"
	"FromChat/internal/middleware"
	"FromChat/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodySize ограничивает JSON-тела HTTP-запросов. Сообщения идут через сокет.
const maxBodySize = 1 << 20

type Handler struct {
	Router chi.Router
}

// NewHandler разводящий для хендлеров
func NewHandler(
	userService *service.UserService,
	cryptoService *service.CryptoService,
	socket *hub.Hub,
	logger *zap.SugaredLogger,
	config *config.Config,
) *Handler {
	r := chi.NewRouter()

	r.Use(middleware.WithLogging)
	r.Use(middleware.WithGzip)
	r.Use(middleware.WithAuth(config.AuthSecret))

	userHandler := NewUserHandler(userService, socket, logger, config)
	cryptoHandler := NewCryptoHandler(cryptoService, logger)

	// User routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Post("/change-password", userHandler.ChangePassword)
		r.Delete("/account", userHandler.DeleteAccount)

		// Crypto routes
		r.Get("/crypto/public-key", cryptoHandler.GetPublicKey)
		r.Post("/crypto/public-key", cryptoHandler.SetPublicKey)
		r.Get("/crypto/public-key/of/{id}", cryptoHandler.GetPublicKeyOf)
		r.Get("/crypto/backup", cryptoHandler.GetBackup)
		r.Post("/crypto/backup", cryptoHandler.SetBackup)

		// Socket
		r.Get("/chat/ws", socket.ServeHTTP)
	})

	return &Handler{Router: r}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
