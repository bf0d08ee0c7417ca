package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/philsgames/questtracker/game/session"
	"go.uber.org/zap"
)

// HandlerFunc processes one decoded packet payload.
type HandlerFunc func(ctx context.Context, s *session.Session, payload json.RawMessage) error

// Router maps packet types to handlers and enforces per-session
// sequence monotonicity before a handler ever runs. A packet with
// seq 0 opts out of sequence tracking (fire-and-forget clients).
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

// On registers fn for msgType. Registration happens during startup,
// before any connection exists, so no locking is needed.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// accept decodes raw and applies the replay check. It returns nil when
// the packet must be dropped.
func (r *Router) accept(s *session.Session, raw []byte) *session.Packet {
	var pkt session.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.Int64("account_id", s.AccountID), zap.Error(err))
		return nil
	}
	if pkt.Seq != 0 {
		if pkt.Seq <= s.LastSeq {
			r.logger.Warn("replayed or out-of-order packet",
				zap.Int64("account_id", s.AccountID),
				zap.Uint64("seq", pkt.Seq),
				zap.Uint64("last_seq", s.LastSeq))
			return nil
		}
		s.LastSeq = pkt.Seq
	}
	return &pkt
}

// Dispatch routes one raw inbound frame. Handler errors are logged,
// never sent back over the wire.
func (r *Router) Dispatch(s *session.Session, raw []byte) {
	pkt := r.accept(s, raw)
	if pkt == nil {
		return
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type), zap.Int64("account_id", s.AccountID))
		return
	}

	// Each dispatch gets its own trace id, also kept on the session so
	// disconnect logs can point at the last message handled.
	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Error("handler failed",
			zap.String("type", pkt.Type),
			zap.Int64("account_id", s.AccountID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the dispatch trace id from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
