package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"FromChat/internal/model"
	"FromChat/internal/repo"
	"FromChat/internal/transport"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// UserDirectory отвечает, существует ли активный пользователь.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// storedEnvelope: поля конверта в том виде, в каком их хранит сервер (base64).
type storedEnvelope struct {
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	IV2        string `json:"iv2"`
	Ciphertext string `json:"ciphertext"`
	WrappedMK  string `json:"wrappedMk"`
}

func parseEnvelope(raw json.RawMessage) (*storedEnvelope, error) {
	var e storedEnvelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrBadRequest, err)
	}
	for name, v := range map[string]string{
		"salt": e.Salt, "iv": e.IV, "iv2": e.IV2, "ciphertext": e.Ciphertext, "wrappedMk": e.WrappedMK,
	} {
		if v == "" {
			return nil, fmt.Errorf("%w: envelope field %s is empty", ErrBadRequest, name)
		}
		if _, err := base64.StdEncoding.DecodeString(v); err != nil {
			return nil, fmt.Errorf("%w: envelope field %s is not base64", ErrBadRequest, name)
		}
	}
	return &e, nil
}

func (e *storedEnvelope) apply(m *model.DMEnvelope) {
	m.SaltB64 = e.Salt
	m.IVB64 = e.IV
	m.IV2B64 = e.IV2
	m.CiphertextB64 = e.Ciphertext
	m.WrappedMKB64 = e.WrappedMK
}

// ToRecord переводит строку БД в запись протокола.
func ToRecord(m *model.DMEnvelope) (transport.DMRecord, error) {
	raw, err := json.Marshal(storedEnvelope{
		Salt:       m.SaltB64,
		IV:         m.IVB64,
		IV2:        m.IV2B64,
		Ciphertext: m.CiphertextB64,
		WrappedMK:  m.WrappedMKB64,
	})
	if err != nil {
		return transport.DMRecord{}, err
	}
	rec := transport.DMRecord{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Envelope:    raw,
		ReplyTo:     m.ReplyToID,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
	}
	for _, f := range m.Files {
		rec.Files = append(rec.Files, transport.FilePayload{Name: f.Name, Data: f.Data})
	}
	for _, r := range m.Reactions {
		rec.Reactions = append(rec.Reactions, transport.Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}
	return rec, nil
}

// DMService: хранение и выдача зашифрованных личных сообщений.
// Сервер проверяет только права и форму конверта.
type DMService struct {
	dms    repo.DMRepository
	users  UserDirectory
	logger *zap.SugaredLogger
}

func NewDMService(dms repo.DMRepository, users UserDirectory, logger *zap.SugaredLogger) *DMService {
	return &DMService{dms: dms, users: users, logger: logger}
}

// Send сохраняет сообщение от senderID вместе с вложениями.
func (s *DMService) Send(ctx context.Context, senderID int64, req transport.DMSend) (transport.DMRecord, error) {
	if req.RecipientID <= 0 {
		return transport.DMRecord{}, fmt.Errorf("%w: recipient required", ErrBadRequest)
	}
	ok, err := s.users.Exists(ctx, req.RecipientID)
	if err != nil {
		return transport.DMRecord{}, err
	}
	if !ok {
		return transport.DMRecord{}, fmt.Errorf("%w: recipient %d", ErrNotFound, req.RecipientID)
	}
	env, err := parseEnvelope(req.Envelope)
	if err != nil {
		return transport.DMRecord{}, err
	}

	if req.ReplyTo != nil {
		parent, err := s.load(ctx, *req.ReplyTo)
		if err != nil {
			return transport.DMRecord{}, err
		}
		if !sameConversation(parent, senderID, req.RecipientID) {
			return transport.DMRecord{}, fmt.Errorf("%w: reply target belongs to another conversation", ErrBadRequest)
		}
	}

	row := &model.DMEnvelope{SenderID: senderID, RecipientID: req.RecipientID, ReplyToID: req.ReplyTo}
	env.apply(row)
	for _, f := range req.Files {
		if f.Name == "" || len(f.Data) == 0 {
			return transport.DMRecord{}, fmt.Errorf("%w: file name and data required", ErrBadRequest)
		}
		row.Files = append(row.Files, model.DMFile{
			SenderID:    senderID,
			RecipientID: req.RecipientID,
			Name:        f.Name,
			Data:        f.Data,
		})
	}
	if err := s.dms.Create(ctx, row); err != nil {
		return transport.DMRecord{}, err
	}
	s.logger.Debugw("dm stored", "id", row.ID, "from", senderID, "to", req.RecipientID, "files", len(row.Files))
	return ToRecord(row)
}

// Edit заменяет конверт целиком. Править может только отправитель.
func (s *DMService) Edit(ctx context.Context, userID int64, req transport.DMEdit) (transport.DMRecord, error) {
	msg, err := s.load(ctx, req.ID)
	if err != nil {
		return transport.DMRecord{}, err
	}
	if msg.SenderID != userID {
		return transport.DMRecord{}, ErrForbidden
	}
	env, err := parseEnvelope(req.Envelope)
	if err != nil {
		return transport.DMRecord{}, err
	}
	upd := &model.DMEnvelope{}
	env.apply(upd)
	row, err := s.dms.ReplaceEnvelope(ctx, req.ID, upd)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return transport.DMRecord{}, ErrNotFound
	}
	if err != nil {
		return transport.DMRecord{}, err
	}
	return ToRecord(row)
}

// Delete удаляет сообщение. Удалять может только отправитель.
func (s *DMService) Delete(ctx context.Context, userID, id int64) (transport.DMDeleted, error) {
	msg, err := s.load(ctx, id)
	if err != nil {
		return transport.DMDeleted{}, err
	}
	if msg.SenderID != userID {
		return transport.DMDeleted{}, ErrForbidden
	}
	if err := s.dms.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return transport.DMDeleted{}, ErrNotFound
		}
		return transport.DMDeleted{}, err
	}
	return transport.DMDeleted{ID: id, SenderID: msg.SenderID, RecipientID: msg.RecipientID}, nil
}

// React переключает реакцию участника переписки. Возвращает также собеседника,
// которому нужно разослать уведомление.
func (s *DMService) React(ctx context.Context, userID int64, req transport.DMReact) (transport.DMReaction, int64, error) {
	if req.Emoji == "" {
		return transport.DMReaction{}, 0, fmt.Errorf("%w: emoji required", ErrBadRequest)
	}
	msg, err := s.load(ctx, req.ID)
	if err != nil {
		return transport.DMReaction{}, 0, err
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		return transport.DMReaction{}, 0, ErrForbidden
	}
	removed, err := s.dms.ToggleReaction(ctx, req.ID, userID, req.Emoji)
	if err != nil {
		return transport.DMReaction{}, 0, err
	}
	return transport.DMReaction{MessageID: req.ID, UserID: userID, Emoji: req.Emoji, Removed: removed}, msg.Peer(userID), nil
}

// History возвращает переписку userID с собеседником, новые сообщения первыми.
func (s *DMService) History(ctx context.Context, userID int64, req transport.DMHistory) (transport.DMHistoryResult, error) {
	if req.PeerID <= 0 {
		return transport.DMHistoryResult{}, fmt.Errorf("%w: peer required", ErrBadRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	rows, err := s.dms.History(ctx, userID, req.PeerID, req.BeforeID, limit)
	if err != nil {
		return transport.DMHistoryResult{}, err
	}
	res := transport.DMHistoryResult{Messages: make([]transport.DMRecord, 0, len(rows))}
	for i := range rows {
		rec, err := ToRecord(&rows[i])
		if err != nil {
			return transport.DMHistoryResult{}, err
		}
		res.Messages = append(res.Messages, rec)
	}
	return res, nil
}

func (s *DMService) load(ctx context.Context, id int64) (*model.DMEnvelope, error) {
	msg, err := s.dms.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
	}
	return msg, err
}

func sameConversation(m *model.DMEnvelope, a, b int64) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}
