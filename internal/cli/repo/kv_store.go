package repo

import "context"

// Фиксированные ключи локального хранилища.
const (
	KeyPublicKey  = "publicKey"
	KeyPrivateKey = "privateKey"
	// peerKeyPrefix + id пользователя: закэшированный публичный ключ собеседника (TOFU).
	peerKeyPrefix = "peer:"
)

// PeerKey возвращает ключ хранилища для публичного ключа пользователя id.
func PeerKey(id string) string { return peerKeyPrefix + id }

// KeyValueStore определяет порт доступа к локальному строковому хранилищу клиента.
// Значения непрозрачны для хранилища; ключевой материал кодируется в base64 вызывающей стороной.
type KeyValueStore interface {
	// Get возвращает значение и признак его наличия.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
