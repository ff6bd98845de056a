package model

// CryptoPublicKey: зарегистрированный публичный ключ X25519 пользователя (base64).
type CryptoPublicKey struct {
	ID           int64  `gorm:"primaryKey"`
	UserID       int64  `gorm:"uniqueIndex;not null"`
	PublicKeyB64 string `gorm:"type:text;not null"`
}

// CryptoBackup: зашифрованная паролем резервная копия приватного ключа.
// Сервер хранит JSON-строку как есть и никогда её не разбирает.
type CryptoBackup struct {
	ID       int64  `gorm:"primaryKey"`
	UserID   int64  `gorm:"uniqueIndex;not null"`
	BlobJSON string `gorm:"type:text;not null"`
}
