package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"FromChat/internal/middleware"
	"FromChat/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CryptoHandler: реестр публичных ключей и резервных копий ключа.
type CryptoHandler struct {
	CryptoService *service.CryptoService
	Logger        *zap.SugaredLogger
}

func NewCryptoHandler(cryptoService *service.CryptoService, logger *zap.SugaredLogger) *CryptoHandler {
	return &CryptoHandler{CryptoService: cryptoService, Logger: logger}
}

// publicKeyBody: ключ в base64, null если ключ не зарегистрирован.
type publicKeyBody struct {
	PublicKey []byte `json:"publicKey"`
}

type backupBody struct {
	Blob *string `json:"blob"`
}

// GetPublicKey GET /crypto/public-key
func (h *CryptoHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	h.writePublicKey(w, r, userID)
}

// GetPublicKeyOf GET /crypto/public-key/of/{id}
func (h *CryptoHandler) GetPublicKeyOf(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	h.writePublicKey(w, r, id)
}

func (h *CryptoHandler) writePublicKey(w http.ResponseWriter, r *http.Request, userID int64) {
	pub, err := h.CryptoService.PublicKey(r.Context(), userID)
	if err != nil {
		h.Logger.Errorw("PublicKey: service error", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, publicKeyBody{PublicKey: pub})
}

// SetPublicKey POST /crypto/public-key
func (h *CryptoHandler) SetPublicKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req publicKeyBody
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.CryptoService.SetPublicKey(r.Context(), userID, req.PublicKey); err != nil {
		h.writeServiceError(w, "SetPublicKey", userID, err)
		return
	}
	h.Logger.Infow("public key registered", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// GetBackup GET /crypto/backup
func (h *CryptoHandler) GetBackup(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	blob, err := h.CryptoService.Backup(r.Context(), userID)
	if err != nil {
		h.Logger.Errorw("Backup: service error", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, backupBody{Blob: blob})
}

// SetBackup POST /crypto/backup
func (h *CryptoHandler) SetBackup(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req backupBody
	if err := decodeJSON(w, r, &req); err != nil || req.Blob == nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.CryptoService.SetBackup(r.Context(), userID, *req.Blob); err != nil {
		h.writeServiceError(w, "SetBackup", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CryptoHandler) writeServiceError(w http.ResponseWriter, op string, userID int64, err error) {
	if errors.Is(err, service.ErrBadRequest) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.Errorw(op+": service error", "user_id", userID, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
