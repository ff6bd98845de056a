// Package hub обслуживает сокет /chat/ws: отвечает на запросы клиента
// с тем же id и рассылает push-события подключениям пользователей.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"FromChat/internal/middleware"
	"FromChat/internal/transport"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	// вложения передаются внутри кадра, поэтому лимит большой
	maxFrameSize = 32 << 20
	sendBuffer   = 64
)

// DMs: операции с личными сообщениями, которые хаб вызывает от имени пользователя.
type DMs interface {
	Send(ctx context.Context, senderID int64, req transport.DMSend) (transport.DMRecord, error)
	Edit(ctx context.Context, userID int64, req transport.DMEdit) (transport.DMRecord, error)
	Delete(ctx context.Context, userID, id int64) (transport.DMDeleted, error)
	React(ctx context.Context, userID int64, req transport.DMReact) (transport.DMReaction, int64, error)
	History(ctx context.Context, userID int64, req transport.DMHistory) (transport.DMHistoryResult, error)
}

// Hub хранит живые подключения по пользователям.
type Hub struct {
	dms      DMs
	secret   string
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[int64]map[*conn]struct{}
}

func New(dms DMs, secret string, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		dms:    dms,
		secret: secret,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[int64]map[*conn]struct{}),
	}
}

type conn struct {
	id     string
	userID int64
	ws     *websocket.Conn
	send   chan *transport.Frame
	done   chan struct{}
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue не блокирует: медленный клиент теряет соединение, а не тормозит остальных.
func (c *conn) enqueue(f *transport.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		c.close()
		return false
	}
}

// ServeHTTP апгрейдит запрос до WebSocket. Пользователь берётся из контекста (WithAuth).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := &conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan *transport.Frame, sendBuffer),
		done:   make(chan struct{}),
	}
	h.register(c)
	h.logger.Infow("socket opened", "user_id", userID, "conn", c.id)

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)

	h.unregister(c)
	c.close()
	h.logger.Infow("socket closed", "user_id", userID, "conn", c.id)
}

// Online сообщает, есть ли у пользователя открытые подключения.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// NotifyUserDeleted рассылает userDeleted всем подключённым и закрывает сокеты
// удалённого пользователя.
func (h *Hub) NotifyUserDeleted(userID int64) {
	f, err := transport.NewFrame(transport.TypeUserDeleted, "", transport.UserDeleted{UserID: userID})
	if err != nil {
		return
	}
	h.mu.RLock()
	var others, own []*conn
	for uid, set := range h.conns {
		for c := range set {
			if uid == userID {
				own = append(own, c)
			} else {
				others = append(others, c)
			}
		}
	}
	h.mu.RUnlock()
	for _, c := range others {
		c.enqueue(f)
	}
	for _, c := range own {
		c.close()
	}
	if len(own) > 0 {
		h.logger.Infow("closed sockets of deleted user", "user_id", userID, "count", len(own))
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.userID]
	if set == nil {
		set = make(map[*conn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

func (h *Hub) writeLoop(c *conn) {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				h.logger.Warnw("socket write failed", "conn", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(maxFrameSize)
	go func() {
		// writeLoop закрывает сокет, это же прерывает чтение
		<-c.done
		_ = c.ws.Close()
	}()
	for {
		var f transport.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.logger.Warnw("malformed frame", "conn", c.id, "error", err)
				continue
			}
			return
		}
		h.handle(ctx, c, &f)
	}
}

// push отправляет кадр всем подключениям пользователей, кроме skip.
func (h *Hub) push(f *transport.Frame, skip *conn, userIDs ...int64) {
	h.mu.RLock()
	var targets []*conn
	seen := make(map[int64]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		for c := range h.conns[uid] {
			if c != skip {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(f)
	}
}
