package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"FromChat/internal/repo"
	"FromChat/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type knownUsers map[int64]bool

func (k knownUsers) Exists(_ context.Context, id int64) (bool, error) {
	return k[id], nil
}

func newDMService(t *testing.T) *DMService {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repo.InitDB("sqlite:file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDMService(repo.NewDMRepository(db), knownUsers{1: true, 2: true, 3: true}, zap.NewNop().Sugar())
}

func envelopeJSON(ct string) json.RawMessage {
	return json.RawMessage(`{"salt":"c2FsdA==","iv":"aXY=","iv2":"aXYy","ciphertext":"` + ct + `","wrappedMk":"d21r"}`)
}

func TestDMService_SendAndHistory(t *testing.T) {
	ctx := context.Background()
	svc := newDMService(t)

	rec, err := svc.Send(ctx, 1, transport.DMSend{
		RecipientID: 2,
		Envelope:    envelopeJSON("AAAA"),
		Files:       []transport.FilePayload{{Name: "a.bin", Data: []byte{1, 2}}},
	})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, int64(1), rec.SenderID)
	assert.JSONEq(t, string(envelopeJSON("AAAA")), string(rec.Envelope))
	require.Len(t, rec.Files, 1)

	reply := rec.ID
	_, err = svc.Send(ctx, 2, transport.DMSend{RecipientID: 1, Envelope: envelopeJSON("BBBB"), ReplyTo: &reply})
	require.NoError(t, err)

	hist, err := svc.History(ctx, 2, transport.DMHistory{PeerID: 1})
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, &reply, hist.Messages[0].ReplyTo)
	assert.Equal(t, rec.ID, hist.Messages[1].ID)
}

func TestDMService_SendValidation(t *testing.T) {
	ctx := context.Background()
	svc := newDMService(t)

	_, err := svc.Send(ctx, 1, transport.DMSend{RecipientID: 42, Envelope: envelopeJSON("AAAA")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Send(ctx, 1, transport.DMSend{RecipientID: 2, Envelope: json.RawMessage(`{"salt":"c2FsdA=="}`)})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.Send(ctx, 1, transport.DMSend{RecipientID: 2, Envelope: envelopeJSON("!!not-base64!!")})
	assert.ErrorIs(t, err, ErrBadRequest)

	// ответ на сообщение из чужой переписки
	other, err := svc.Send(ctx, 1, transport.DMSend{RecipientID: 3, Envelope: envelopeJSON("AAAA")})
	require.NoError(t, err)
	_, err = svc.Send(ctx, 1, transport.DMSend{RecipientID: 2, Envelope: envelopeJSON("AAAA"), ReplyTo: &other.ID})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestDMService_EditDeleteOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newDMService(t)

	rec, err := svc.Send(ctx, 1, transport.DMSend{RecipientID: 2, Envelope: envelopeJSON("AAAA")})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, 2, transport.DMEdit{ID: rec.ID, Envelope: envelopeJSON("BBBB")})
	assert.ErrorIs(t, err, ErrForbidden)

	edited, err := svc.Edit(ctx, 1, transport.DMEdit{ID: rec.ID, Envelope: envelopeJSON("BBBB")})
	require.NoError(t, err)
	assert.NotNil(t, edited.EditedAt)
	assert.JSONEq(t, string(envelopeJSON("BBBB")), string(edited.Envelope))

	_, err = svc.Delete(ctx, 2, rec.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	del, err := svc.Delete(ctx, 1, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, transport.DMDeleted{ID: rec.ID, SenderID: 1, RecipientID: 2}, del)

	_, err = svc.Delete(ctx, 1, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDMService_React(t *testing.T) {
	ctx := context.Background()
	svc := newDMService(t)

	rec, err := svc.Send(ctx, 1, transport.DMSend{RecipientID: 2, Envelope: envelopeJSON("AAAA")})
	require.NoError(t, err)

	r, peer, err := svc.React(ctx, 2, transport.DMReact{ID: rec.ID, Emoji: "👍"})
	require.NoError(t, err)
	assert.False(t, r.Removed)
	assert.Equal(t, int64(1), peer)

	r, _, err = svc.React(ctx, 2, transport.DMReact{ID: rec.ID, Emoji: "👍"})
	require.NoError(t, err)
	assert.True(t, r.Removed)

	_, _, err = svc.React(ctx, 3, transport.DMReact{ID: rec.ID, Emoji: "👍"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDMService_HistoryLimit(t *testing.T) {
	ctx := context.Background()
	svc := newDMService(t)

	for i := 0; i < 5; i++ {
		_, err := svc.Send(ctx, 1, transport.DMSend{RecipientID: 2, Envelope: envelopeJSON("AAAA")})
		require.NoError(t, err)
	}
	hist, err := svc.History(ctx, 1, transport.DMHistory{PeerID: 2, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 3)

	_, err = svc.History(ctx, 1, transport.DMHistory{})
	assert.ErrorIs(t, err, ErrBadRequest)
}
