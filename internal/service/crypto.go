package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"FromChat/internal/repo"
)

// PublicKeySize: длина публичного ключа X25519.
const PublicKeySize = 32

// CryptoService: реестр публичных ключей и резервных копий.
// Сервер ничего не расшифровывает: backup хранится строкой как есть.
type CryptoService struct {
	keys repo.KeyRepository
}

func NewCryptoService(r repo.KeyRepository) *CryptoService {
	return &CryptoService{keys: r}
}

// PublicKey возвращает ключ пользователя или nil, если он не зарегистрирован.
func (s *CryptoService) PublicKey(ctx context.Context, userID int64) ([]byte, error) {
	b64, ok, err := s.keys.GetPublicKey(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}
	pub, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("stored public key of user %d: %w", userID, err)
	}
	return pub, nil
}

func (s *CryptoService) SetPublicKey(ctx context.Context, userID int64, pub []byte) error {
	if len(pub) != PublicKeySize {
		return fmt.Errorf("%w: public key must be %d bytes", ErrBadRequest, PublicKeySize)
	}
	return s.keys.SetPublicKey(ctx, userID, base64.StdEncoding.EncodeToString(pub))
}

// Backup возвращает сохранённый blob или nil.
func (s *CryptoService) Backup(ctx context.Context, userID int64) (*string, error) {
	blob, ok, err := s.keys.GetBackup(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}
	return &blob, nil
}

// SetBackup принимает любую корректную JSON-строку; содержимое не разбирается.
func (s *CryptoService) SetBackup(ctx context.Context, userID int64, blob string) error {
	if blob == "" || !json.Valid([]byte(blob)) {
		return fmt.Errorf("%w: backup blob must be a JSON document", ErrBadRequest)
	}
	return s.keys.SetBackup(ctx, userID, blob)
}
