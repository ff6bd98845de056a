package repo

import (
	"context"
	"errors"

	"FromChat/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyRepository: реестр публичных ключей и резервных копий.
// Геттеры возвращают "", false, nil, если записи нет.
type KeyRepository interface {
	GetPublicKey(ctx context.Context, userID int64) (string, bool, error)
	SetPublicKey(ctx context.Context, userID int64, publicKeyB64 string) error
	GetBackup(ctx context.Context, userID int64) (string, bool, error)
	SetBackup(ctx context.Context, userID int64, blobJSON string) error
}

type keyRepo struct {
	db *gorm.DB
}

// NewKeyRepository создаёт реестр ключей.
func NewKeyRepository(db *gorm.DB) KeyRepository {
	return &keyRepo{db: db}
}

func (r *keyRepo) GetPublicKey(ctx context.Context, userID int64) (string, bool, error) {
	var row model.CryptoPublicKey
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.PublicKeyB64, true, nil
}

// SetPublicKey вставляет или заменяет ключ пользователя.
func (r *keyRepo) SetPublicKey(ctx context.Context, userID int64, publicKeyB64 string) error {
	row := &model.CryptoPublicKey{UserID: userID, PublicKeyB64: publicKeyB64}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"public_key_b64"}),
	}).Create(row).Error
}

func (r *keyRepo) GetBackup(ctx context.Context, userID int64) (string, bool, error) {
	var row model.CryptoBackup
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.BlobJSON, true, nil
}

// SetBackup вставляет или заменяет резервную копию пользователя.
func (r *keyRepo) SetBackup(ctx context.Context, userID int64, blobJSON string) error {
	row := &model.CryptoBackup{UserID: userID, BlobJSON: blobJSON}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob_json"}),
	}).Create(row).Error
}
