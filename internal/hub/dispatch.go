package hub

import (
	"context"
	"errors"
	"net/http"

	"FromChat/internal/middleware"
	"FromChat/internal/service"
	"FromChat/internal/transport"
)

var errUnauthorized = errors.New("frame credentials missing or invalid")

// handle выполняет один запрос. Ответ несёт тот же type и id; запросы без id выполняются без ответа.
func (h *Hub) handle(ctx context.Context, c *conn, f *transport.Frame) {
	if !f.Type.IsRequest() {
		h.reply(c, f, nil, &transport.RemoteError{Code: http.StatusBadRequest, Detail: "unsupported message type " + string(f.Type)})
		return
	}
	if f.Type != transport.TypePing {
		if err := h.checkCredentials(c, f.Credentials); err != nil {
			h.reply(c, f, nil, remoteError(err))
			return
		}
	}

	data, err := h.execute(ctx, c, f)
	if err != nil {
		h.logger.Debugw("request rejected", "type", f.Type, "user_id", c.userID, "error", err)
		h.reply(c, f, nil, remoteError(err))
		return
	}
	h.reply(c, f, data, nil)
}

func (h *Hub) execute(ctx context.Context, c *conn, f *transport.Frame) (any, error) {
	switch f.Type {
	case transport.TypePing:
		return nil, nil

	case transport.TypeDMSend:
		var req transport.DMSend
		if err := f.Decode(&req); err != nil {
			return nil, badRequest(err)
		}
		rec, err := h.dms.Send(ctx, c.userID, req)
		if err != nil {
			return nil, err
		}
		h.pushData(transport.TypeDMNew, transport.DMNew{DMRecord: rec}, c, rec.SenderID, rec.RecipientID)
		return rec, nil

	case transport.TypeDMEdit:
		var req transport.DMEdit
		if err := f.Decode(&req); err != nil {
			return nil, badRequest(err)
		}
		rec, err := h.dms.Edit(ctx, c.userID, req)
		if err != nil {
			return nil, err
		}
		h.pushData(transport.TypeDMEdited, transport.DMEdited{DMRecord: rec}, c, rec.SenderID, rec.RecipientID)
		return rec, nil

	case transport.TypeDMDelete:
		var req transport.DMDelete
		if err := f.Decode(&req); err != nil {
			return nil, badRequest(err)
		}
		del, err := h.dms.Delete(ctx, c.userID, req.ID)
		if err != nil {
			return nil, err
		}
		h.pushData(transport.TypeDMDeleted, del, c, del.SenderID, del.RecipientID)
		return del, nil

	case transport.TypeDMReact:
		var req transport.DMReact
		if err := f.Decode(&req); err != nil {
			return nil, badRequest(err)
		}
		reaction, peer, err := h.dms.React(ctx, c.userID, req)
		if err != nil {
			return nil, err
		}
		h.pushData(transport.TypeDMReaction, reaction, c, c.userID, peer)
		return reaction, nil

	case transport.TypeDMHistory:
		var req transport.DMHistory
		if err := f.Decode(&req); err != nil {
			return nil, badRequest(err)
		}
		return h.dms.History(ctx, c.userID, req)

	case transport.TypeCallSignal:
		var sig transport.CallSignal
		if err := f.Decode(&sig); err != nil {
			return nil, badRequest(err)
		}
		if sig.ToID <= 0 || sig.Kind == "" {
			return nil, badRequest(errors.New("toId and kind required"))
		}
		if !h.Online(sig.ToID) {
			return nil, service.ErrNotFound
		}
		// отправитель задаётся сервером, клиентскому fromId не доверяем
		sig.FromID = c.userID
		h.pushData(transport.TypeCallSignal, sig, nil, sig.ToID)
		return nil, nil
	}
	return nil, badRequest(errors.New("unsupported message type"))
}

// checkCredentials сверяет токен кадра с пользователем подключения.
func (h *Hub) checkCredentials(c *conn, cred *transport.Credentials) error {
	if cred == nil || cred.Scheme != transport.SchemeBearer {
		return errUnauthorized
	}
	uid, err := middleware.ParseToken(cred.Credentials, h.secret)
	if err != nil || uid != c.userID {
		return errUnauthorized
	}
	return nil
}

func (h *Hub) reply(c *conn, req *transport.Frame, data any, rerr *transport.RemoteError) {
	if req.ID == "" {
		if rerr != nil {
			h.logger.Warnw("fire-and-forget request failed", "type", req.Type, "user_id", c.userID, "error", rerr)
		}
		return
	}
	f, err := transport.NewFrame(req.Type, req.ID, data)
	if err != nil {
		h.logger.Errorw("encode reply", "type", req.Type, "error", err)
		f = &transport.Frame{Type: req.Type, ID: req.ID}
		rerr = &transport.RemoteError{Code: http.StatusInternalServerError, Detail: "internal error"}
	}
	f.Error = rerr
	c.enqueue(f)
}

func (h *Hub) pushData(t transport.MessageType, data any, skip *conn, userIDs ...int64) {
	f, err := transport.NewFrame(t, "", data)
	if err != nil {
		h.logger.Errorw("encode push", "type", t, "error", err)
		return
	}
	h.push(f, skip, userIDs...)
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }

func badRequest(err error) error { return badRequestError{err: err} }

// remoteError переводит ошибку сервиса в код ответа.
func remoteError(err error) *transport.RemoteError {
	var bad badRequestError
	switch {
	case errors.As(err, &bad), errors.Is(err, service.ErrBadRequest):
		return &transport.RemoteError{Code: http.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, errUnauthorized):
		return &transport.RemoteError{Code: http.StatusUnauthorized, Detail: err.Error()}
	case errors.Is(err, service.ErrForbidden):
		return &transport.RemoteError{Code: http.StatusForbidden, Detail: err.Error()}
	case errors.Is(err, service.ErrNotFound):
		return &transport.RemoteError{Code: http.StatusNotFound, Detail: err.Error()}
	}
	return &transport.RemoteError{Code: http.StatusInternalServerError, Detail: "internal error"}
}
