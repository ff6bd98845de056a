// Package chat реализует клиентский сервис личных сообщений: шифрует исходящие сообщения,
// расшифровывает историю и push-события. Сервер видит только конверты.
package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FromChat/internal/cli/crypto"
	"FromChat/internal/cli/envelope"
	"FromChat/internal/cli/repo"
	"FromChat/internal/transport"

	"go.uber.org/zap"
)

// ErrNoPeerKey: у собеседника нет зарегистрированного публичного ключа.
var ErrNoPeerKey = errors.New("peer has no public key")

// DefaultHistoryLimit: размер страницы истории по умолчанию.
const DefaultHistoryLimit = 50

// Requester: транспорт запрос/ответ (transport.Client).
type Requester interface {
	Request(ctx context.Context, t transport.MessageType, data, out any) error
}

// KeyDirectory отдаёт публичные ключи пользователей (api.Client).
type KeyDirectory interface {
	PublicKeyOf(ctx context.Context, userID int64) ([]byte, error)
}

// Attachment: файл в открытом виде. Unreadable=true, если файл зашифрован
// ключом, которого у конверта уже нет (сообщение было отредактировано).
type Attachment struct {
	Name       string
	Data       []byte
	Unreadable bool
}

// Options отправки сообщения.
type Options struct {
	ReplyTo *int64
	Files   []Attachment
}

// Message: расшифрованное сообщение. Unreadable=true, если конверт не удалось открыть.
type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Text        string
	Files       []Attachment
	ReplyTo     *int64
	Reactions   []transport.Reaction
	CreatedAt   time.Time
	EditedAt    *time.Time
	Outgoing    bool
	Unreadable  bool
}

// EventKind: вид события для UI.
type EventKind int

const (
	EventNew EventKind = iota + 1
	EventEdited
	EventDeleted
	EventReaction
	EventUserDeleted
)

// Event: push, приведённый к виду для UI.
type Event struct {
	Kind      EventKind
	Message   *Message              // EventNew, EventEdited
	MessageID int64                 // EventDeleted
	Reaction  *transport.DMReaction // EventReaction
	UserID    int64                 // EventUserDeleted
}

// Service: личные сообщения текущего пользователя.
type Service struct {
	selfID int64
	engine *envelope.Engine
	rpc    Requester
	dir    KeyDirectory
	cache  repo.KeyValueStore
	log    *zap.SugaredLogger

	mu    sync.Mutex
	peers map[int64][]byte
}

// NewService собирает сервис. cache хранит ключи собеседников (TOFU) и может быть nil.
func NewService(selfID int64, engine *envelope.Engine, rpc Requester, dir KeyDirectory, cache repo.KeyValueStore, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		selfID: selfID,
		engine: engine,
		rpc:    rpc,
		dir:    dir,
		cache:  cache,
		log:    log,
		peers:  make(map[int64][]byte),
	}
}

// Send шифрует text и вложения для recipientID и отправляет dmSend.
func (s *Service) Send(ctx context.Context, recipientID int64, text string, opts Options) (*Message, error) {
	if err := s.engine.Ready(); err != nil {
		return nil, err
	}
	pub, err := s.currentKey(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	files := make([][]byte, len(opts.Files))
	for i, f := range opts.Files {
		files[i] = f.Data
	}
	sealed, err := s.engine.Seal(pub, []byte(text), files...)
	if err != nil {
		return nil, err
	}
	env, err := json.Marshal(sealed.Envelope)
	if err != nil {
		return nil, err
	}
	req := transport.DMSend{RecipientID: recipientID, Envelope: env, ReplyTo: opts.ReplyTo}
	for i, f := range opts.Files {
		req.Files = append(req.Files, transport.FilePayload{Name: f.Name, Data: sealed.Files[i]})
	}

	var rec transport.DMRecord
	if err := s.rpc.Request(ctx, transport.TypeDMSend, req, &rec); err != nil {
		return nil, fmt.Errorf("dmSend: %w", err)
	}
	s.log.Debugw("dm sent", "id", rec.ID, "recipient", recipientID, "files", len(req.Files))
	msg := s.fromRecord(&rec)
	msg.Text = text
	msg.Files = opts.Files
	return msg, nil
}

// Edit заменяет конверт сообщения messageID новым, с новым ключом сообщения.
func (s *Service) Edit(ctx context.Context, messageID, recipientID int64, text string) (*Message, error) {
	if err := s.engine.Ready(); err != nil {
		return nil, err
	}
	pub, err := s.currentKey(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	sealed, err := s.engine.Reseal(pub, []byte(text))
	if err != nil {
		return nil, err
	}
	env, err := json.Marshal(sealed)
	if err != nil {
		return nil, err
	}
	var rec transport.DMRecord
	if err := s.rpc.Request(ctx, transport.TypeDMEdit, transport.DMEdit{ID: messageID, Envelope: env}, &rec); err != nil {
		return nil, fmt.Errorf("dmEdit: %w", err)
	}
	msg := s.fromRecord(&rec)
	msg.Text = text
	return msg, nil
}

// Delete удаляет сообщение.
func (s *Service) Delete(ctx context.Context, messageID int64) error {
	if err := s.rpc.Request(ctx, transport.TypeDMDelete, transport.DMDelete{ID: messageID}, nil); err != nil {
		return fmt.Errorf("dmDelete: %w", err)
	}
	return nil
}

// React переключает реакцию emoji на сообщении.
func (s *Service) React(ctx context.Context, messageID int64, emoji string) (*transport.DMReaction, error) {
	if emoji == "" {
		return nil, errors.New("empty emoji")
	}
	var res transport.DMReaction
	if err := s.rpc.Request(ctx, transport.TypeDMReact, transport.DMReact{ID: messageID, Emoji: emoji}, &res); err != nil {
		return nil, fmt.Errorf("dmReact: %w", err)
	}
	return &res, nil
}

// History загружает переписку с peerID (новые первыми) и расшифровывает её.
// Нерасшифровываемые сообщения возвращаются с Unreadable=true.
func (s *Service) History(ctx context.Context, peerID int64, limit int) ([]*Message, error) {
	if err := s.engine.Ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var res transport.DMHistoryResult
	if err := s.rpc.Request(ctx, transport.TypeDMHistory, transport.DMHistory{PeerID: peerID, Limit: limit}, &res); err != nil {
		return nil, fmt.Errorf("dmHistory: %w", err)
	}
	out := make([]*Message, 0, len(res.Messages))
	for i := range res.Messages {
		out = append(out, s.decrypt(ctx, &res.Messages[i]))
	}
	return out, nil
}

// HandlePush приводит push к событию для UI. ok=false для push, не относящихся к личным сообщениям.
func (s *Service) HandlePush(ctx context.Context, p transport.Push) (Event, bool) {
	switch v := p.(type) {
	case *transport.DMNew:
		return Event{Kind: EventNew, Message: s.decrypt(ctx, &v.DMRecord)}, true
	case *transport.DMEdited:
		return Event{Kind: EventEdited, Message: s.decrypt(ctx, &v.DMRecord)}, true
	case *transport.DMDeleted:
		return Event{Kind: EventDeleted, MessageID: v.ID}, true
	case *transport.DMReaction:
		return Event{Kind: EventReaction, MessageID: v.MessageID, Reaction: v}, true
	case *transport.UserDeleted:
		s.ForgetPeer(ctx, v.UserID)
		return Event{Kind: EventUserDeleted, UserID: v.UserID}, true
	}
	return Event{}, false
}

// ForgetPeer удаляет закэшированный ключ собеседника.
func (s *Service) ForgetPeer(ctx context.Context, peerID int64) {
	s.mu.Lock()
	delete(s.peers, peerID)
	s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Delete(ctx, repo.PeerKey(strconv.FormatInt(peerID, 10))); err != nil {
			s.log.Warnw("failed to drop cached peer key", "peer", peerID, "error", err)
		}
	}
}

// decrypt открывает запись; любая ошибка делает сообщение нечитаемым, но не прерывает обработку.
func (s *Service) decrypt(ctx context.Context, rec *transport.DMRecord) *Message {
	msg := s.fromRecord(rec)
	counterparty := rec.SenderID
	if msg.Outgoing {
		counterparty = rec.RecipientID
	}
	pub, err := s.peerKey(ctx, counterparty)
	if err == nil {
		err = s.open(rec, msg, pub)
	}
	if errors.Is(err, envelope.ErrDecryptionFailed) {
		// закреплённый ключ мог устареть: собеседник пересоздал ключи
		if cur, ferr := s.currentKey(ctx, counterparty); ferr == nil && !bytes.Equal(cur, pub) {
			err = s.open(rec, msg, cur)
		}
	}
	if err != nil {
		s.log.Warnw("dm unreadable", "id", rec.ID, "peer", counterparty, "error", err)
		msg.Unreadable = true
		msg.Text = ""
		msg.Files = nil
	}
	return msg
}

func (s *Service) open(rec *transport.DMRecord, msg *Message, pub []byte) error {
	var env envelope.Envelope
	if err := json.Unmarshal(rec.Envelope, &env); err != nil {
		return fmt.Errorf("%w: %v", envelope.ErrDecryptionFailed, err)
	}
	opened, err := s.engine.Open(pub, &env)
	if err != nil {
		return err
	}
	msg.Text = string(opened.Plaintext)
	for _, f := range rec.Files {
		data, err := opened.OpenFile(f.Data)
		if err != nil {
			s.log.Debugw("attachment unreadable", "id", rec.ID, "file", f.Name, "error", err)
			msg.Files = append(msg.Files, Attachment{Name: f.Name, Unreadable: true})
			continue
		}
		msg.Files = append(msg.Files, Attachment{Name: f.Name, Data: data})
	}
	return nil
}

func (s *Service) fromRecord(rec *transport.DMRecord) *Message {
	return &Message{
		ID:          rec.ID,
		SenderID:    rec.SenderID,
		RecipientID: rec.RecipientID,
		ReplyTo:     rec.ReplyTo,
		Reactions:   rec.Reactions,
		CreatedAt:   rec.CreatedAt,
		EditedAt:    rec.EditedAt,
		Outgoing:    rec.SenderID == s.selfID,
	}
}

// peerKey возвращает закреплённый ключ собеседника (память, затем локальный кэш),
// а если его нет, запрашивает текущий у сервера.
func (s *Service) peerKey(ctx context.Context, peerID int64) ([]byte, error) {
	if pub, ok := s.pinned(ctx, peerID); ok {
		return pub, nil
	}
	return s.currentKey(ctx, peerID)
}

// currentKey запрашивает актуальный ключ собеседника и закрепляет его.
// Смена ключа (resync собеседника) перезаписывает прежнюю запись с предупреждением в лог.
func (s *Service) currentKey(ctx context.Context, peerID int64) ([]byte, error) {
	pub, err := s.dir.PublicKeyOf(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("fetch public key of %d: %w", peerID, err)
	}
	if len(pub) == 0 {
		return nil, fmt.Errorf("%w: user %d", ErrNoPeerKey, peerID)
	}
	old, ok := s.pinned(ctx, peerID)
	switch {
	case !ok:
		s.log.Debugw("peer key pinned", "peer", peerID, "publicKey", crypto.Fingerprint(pub))
	case !bytes.Equal(old, pub):
		s.log.Warnw("peer key changed", "peer", peerID,
			"previous", crypto.Fingerprint(old), "current", crypto.Fingerprint(pub))
	default:
		return pub, nil
	}
	s.remember(peerID, pub)
	if s.cache != nil {
		name := repo.PeerKey(strconv.FormatInt(peerID, 10))
		if err := s.cache.Set(ctx, name, base64.StdEncoding.EncodeToString(pub)); err != nil {
			s.log.Warnw("failed to cache peer key", "peer", peerID, "error", err)
		}
	}
	return pub, nil
}

func (s *Service) pinned(ctx context.Context, peerID int64) ([]byte, bool) {
	s.mu.Lock()
	pub, ok := s.peers[peerID]
	s.mu.Unlock()
	if ok || s.cache == nil {
		return pub, ok
	}
	v, ok, err := s.cache.Get(ctx, repo.PeerKey(strconv.FormatInt(peerID, 10)))
	if err != nil || !ok {
		return nil, false
	}
	pub, err = base64.StdEncoding.DecodeString(v)
	if err != nil || len(pub) != crypto.PublicKeySize {
		return nil, false
	}
	s.remember(peerID, pub)
	return pub, true
}

func (s *Service) remember(peerID int64, pub []byte) {
	s.mu.Lock()
	s.peers[peerID] = pub
	s.mu.Unlock()
}
