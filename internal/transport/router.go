package transport

import (
	"go.uber.org/zap"
)

// PushHandler receives decoded pushes. Handlers run on the read goroutine in
// arrival order and must not block on Client.Request.
type PushHandler func(Push)

// Router dispatches pushes: the global handler first, then, for call
// signaling, the call handler.
type Router struct {
	global PushHandler
	call   func(*CallSignal)
	log    *zap.SugaredLogger
}

// NewRouter returns an empty router.
func NewRouter(log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{log: log}
}

// OnPush registers the global push handler, replacing any previous one.
func (r *Router) OnPush(h PushHandler) { r.global = h }

// OnCallSignal registers the call-signaling handler.
func (r *Router) OnCallSignal(h func(*CallSignal)) { r.call = h }

// Dispatch decodes f and hands it to the registered handlers.
// Unknown or malformed frames are logged and dropped.
func (r *Router) Dispatch(f *Frame) {
	p, err := DecodePush(f)
	if err != nil {
		r.log.Warnw("dropping push", "type", f.Type, "error", err)
		return
	}
	if r.global != nil {
		r.global(p)
	}
	if cs, ok := p.(*CallSignal); ok && r.call != nil {
		r.call(cs)
	}
}
