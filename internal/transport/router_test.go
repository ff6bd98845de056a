package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePush_ClosedSet(t *testing.T) {
	cases := map[MessageType]string{
		TypeDMNew:       `{"id":1,"senderId":2,"recipientId":3,"envelope":{"salt":"AA=="}}`,
		TypeDMEdited:    `{"id":1}`,
		TypeDMDeleted:   `{"id":1}`,
		TypeDMReaction:  `{"messageId":1,"userId":2,"emoji":"👍"}`,
		TypeUserDeleted: `{"userId":4}`,
		TypeCallSignal:  `{"toId":2,"kind":"answer"}`,
	}
	for typ, data := range cases {
		p, err := DecodePush(&Frame{Type: typ, Data: json.RawMessage(data)})
		require.NoError(t, err, typ)
		assert.Equal(t, typ, p.PushType())
		assert.True(t, typ.IsPush())
	}

	p, err := DecodePush(&Frame{Type: TypeDMNew, Data: json.RawMessage(cases[TypeDMNew])})
	require.NoError(t, err)
	rec := p.(*DMNew)
	assert.Equal(t, int64(2), rec.SenderID)
	assert.JSONEq(t, `{"salt":"AA=="}`, string(rec.Envelope))
}

func TestDecodePush_UnknownAndMalformed(t *testing.T) {
	_, err := DecodePush(&Frame{Type: TypeDMSend})
	var ute *UnknownTypeError
	assert.ErrorAs(t, err, &ute)

	_, err = DecodePush(&Frame{Type: TypeDMNew, Data: json.RawMessage(`{"id":"x"}`)})
	assert.Error(t, err)
}

func TestRouter_DropsBadFramesWithoutCallingHandlers(t *testing.T) {
	called := false
	r := NewRouter(nil)
	r.OnPush(func(Push) { called = true })
	r.Dispatch(&Frame{Type: "nope"})
	r.Dispatch(&Frame{Type: TypeDMDeleted, Data: json.RawMessage(`[]`)})
	assert.False(t, called)
}

func TestMessageType_Sets(t *testing.T) {
	for _, typ := range []MessageType{TypePing, TypeDMSend, TypeDMEdit, TypeDMDelete, TypeDMReact, TypeDMHistory} {
		assert.True(t, typ.IsRequest(), typ)
		assert.False(t, typ.IsPush(), typ)
	}
	assert.True(t, TypeCallSignal.IsRequest())
	assert.True(t, TypeCallSignal.IsPush())
}
