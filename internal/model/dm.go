package model

import "time"

// DMEnvelope: личное сообщение в зашифрованном виде. Поля конверта хранятся в base64.
type DMEnvelope struct {
	ID          int64 `gorm:"primaryKey"`
	SenderID    int64 `gorm:"not null;index"`
	RecipientID int64 `gorm:"not null;index"`

	SaltB64       string `gorm:"type:text;not null"`
	IVB64         string `gorm:"type:text;not null"`
	IV2B64        string `gorm:"type:text;not null"`
	CiphertextB64 string `gorm:"type:text;not null"`
	WrappedMKB64  string `gorm:"type:text;not null"`

	ReplyToID *int64

	Files     []DMFile     `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	Reactions []DMReaction `gorm:"foreignKey:DMEnvelopeID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	EditedAt  *time.Time
}

// Peer возвращает собеседника пользователя userID.
func (e *DMEnvelope) Peer(userID int64) int64 {
	if e.SenderID == userID {
		return e.RecipientID
	}
	return e.SenderID
}

// DMFile: вложение, зашифрованное ключом сообщения (iv || ciphertext).
type DMFile struct {
	ID          int64  `gorm:"primaryKey"`
	MessageID   int64  `gorm:"not null;index"`
	SenderID    int64  `gorm:"not null"`
	RecipientID int64  `gorm:"not null"`
	Name        string `gorm:"not null"`
	Data        []byte `gorm:"not null"`
}

// DMReaction: реакция пользователя на личное сообщение.
type DMReaction struct {
	ID           int64     `gorm:"primaryKey"`
	DMEnvelopeID int64     `gorm:"not null;uniqueIndex:uniq_dm_reaction"`
	UserID       int64     `gorm:"not null;uniqueIndex:uniq_dm_reaction"`
	Emoji        string    `gorm:"size:16;not null;uniqueIndex:uniq_dm_reaction"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}
