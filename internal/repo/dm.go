package repo

import (
	"context"
	"errors"
	"time"

	"FromChat/internal/model"

	"gorm.io/gorm"
)

// DMRepository: хранилище личных сообщений. Содержимое непрозрачно для сервера.
type DMRepository interface {
	Create(ctx context.Context, env *model.DMEnvelope) error
	GetByID(ctx context.Context, id int64) (*model.DMEnvelope, error)
	// ReplaceEnvelope целиком заменяет поля конверта и отмечает время правки.
	ReplaceEnvelope(ctx context.Context, id int64, env *model.DMEnvelope) (*model.DMEnvelope, error)
	Delete(ctx context.Context, id int64) error
	// History возвращает переписку пользователей a и b, новые первыми.
	// beforeID > 0 ограничивает выборку сообщениями старше него.
	History(ctx context.Context, a, b, beforeID int64, limit int) ([]model.DMEnvelope, error)
	// ToggleReaction добавляет реакцию или снимает существующую; removed=true, если снята.
	ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (removed bool, err error)
}

type dmRepo struct {
	db *gorm.DB
}

// NewDMRepository создаёт хранилище личных сообщений.
func NewDMRepository(db *gorm.DB) DMRepository {
	return &dmRepo{db: db}
}

func (r *dmRepo) Create(ctx context.Context, env *model.DMEnvelope) error {
	// вложения создаются вместе с сообщением (ассоциация Files)
	return r.db.WithContext(ctx).Create(env).Error
}

func (r *dmRepo) GetByID(ctx context.Context, id int64) (*model.DMEnvelope, error) {
	var env model.DMEnvelope
	err := r.db.WithContext(ctx).Preload("Files").Preload("Reactions").First(&env, id).Error
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (r *dmRepo) ReplaceEnvelope(ctx context.Context, id int64, env *model.DMEnvelope) (*model.DMEnvelope, error) {
	now := time.Now().UTC()
	tx := r.db.WithContext(ctx).Model(&model.DMEnvelope{}).Where("id = ?", id).Updates(map[string]any{
		"salt_b64":       env.SaltB64,
		"iv_b64":         env.IVB64,
		"iv2_b64":        env.IV2B64,
		"ciphertext_b64": env.CiphertextB64,
		"wrapped_mk_b64": env.WrappedMKB64,
		"edited_at":      now,
	})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *dmRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&model.DMFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dm_envelope_id = ?", id).Delete(&model.DMReaction{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.DMEnvelope{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *dmRepo) History(ctx context.Context, a, b, beforeID int64, limit int) ([]model.DMEnvelope, error) {
	q := r.db.WithContext(ctx).
		Preload("Files").Preload("Reactions").
		Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))", a, b, b, a)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var out []model.DMEnvelope
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dmRepo) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.DMReaction
		err := tx.Where("dm_envelope_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).First(&existing).Error
		switch {
		case err == nil:
			removed = true
			return tx.Delete(&existing).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&model.DMReaction{DMEnvelopeID: messageID, UserID: userID, Emoji: emoji}).Error
		default:
			return err
		}
	})
	return removed, err
}
