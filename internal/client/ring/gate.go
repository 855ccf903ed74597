package ring

import (
	"sync"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/pkg/events"
	"voicebridge/pkg/logger"

	"go.uber.org/zap"
)

// Notifier carries the gate's responses back to callers.
type Notifier interface {
	SendUserBusy(to domain.PeerID) error
	SendCallDeclined(to domain.PeerID) error
}

// Config assembles a gate. Busy reports whether the local peer is already in
// a call; together with the pending slot it decides who gets user-busy.
type Config struct {
	RingTimeout time.Duration
	Notifier    Notifier
	Busy        func() bool
	Logger      *zap.SugaredLogger
}

// Gate holds at most one pending incoming call. A second offer while one is
// ringing, or any offer while the local peer is in a call, is answered with
// user-busy. An unanswered offer is declined when the ring timeout fires.
type Gate struct {
	ringTimeout time.Duration
	notifier    Notifier
	busy        func() bool
	logger      *zap.SugaredLogger

	mu      sync.Mutex
	pending *domain.IncomingCallRequest
	timer   *time.Timer

	incoming *events.Emitter[domain.IncomingCallRequest]
	expired  *events.Emitter[domain.PeerID]
}

func NewGate(cfg Config) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop().Sugar()
	}
	if cfg.Busy == nil {
		cfg.Busy = func() bool { return false }
	}
	return &Gate{
		ringTimeout: cfg.RingTimeout,
		notifier:    cfg.Notifier,
		busy:        cfg.Busy,
		logger:      cfg.Logger,
		incoming:    events.NewEmitter[domain.IncomingCallRequest](),
		expired:     events.NewEmitter[domain.PeerID](),
	}
}

// Incoming announces each offer that made it into the pending slot.
func (g *Gate) Incoming() *events.Emitter[domain.IncomingCallRequest] { return g.incoming }

// Expired announces callers whose ring timed out.
func (g *Gate) Expired() *events.Emitter[domain.PeerID] { return g.expired }

// Offer presents an inbound call. Busy callers are told so immediately;
// otherwise the offer occupies the pending slot and the ring timer starts.
func (g *Gate) Offer(req domain.IncomingCallRequest) {
	// busy consults the client's own lock; keep it outside g.mu.
	busy := g.busy()

	g.mu.Lock()
	occupied := g.pending != nil
	if !occupied && !busy {
		pending := req
		g.pending = &pending
		g.timer = time.AfterFunc(g.ringTimeout, func() { g.expire(req.FromPeerID) })
		g.mu.Unlock()

		g.logger.Infow("incoming call ringing", "from", req.FromPeerID)
		g.incoming.Emit(req)
		return
	}
	g.mu.Unlock()

	g.logger.Infow("rejecting incoming call, busy", "from", req.FromPeerID)
	if err := g.notifier.SendUserBusy(req.FromPeerID); err != nil {
		g.logger.Warnw("failed to send user-busy", "to", req.FromPeerID, "error", err)
	}
}

// Accept takes the pending offer out of the gate. The caller owns answering
// it from here on.
func (g *Gate) Accept() (domain.IncomingCallRequest, error) {
	req, ok := g.take("")
	if !ok {
		return domain.IncomingCallRequest{}, domain.ErrCallPending
	}
	return req, nil
}

// Decline clears the pending offer and tells the caller.
func (g *Gate) Decline() error {
	req, ok := g.take("")
	if !ok {
		return domain.ErrCallPending
	}
	if err := g.notifier.SendCallDeclined(req.FromPeerID); err != nil {
		g.logger.Warnw("failed to send call-declined", "to", req.FromPeerID, "error", err)
		return err
	}
	return nil
}

// CancelByCaller drops the pending offer when the caller hangs up before an
// answer. A no-op if the slot holds a different caller or is empty.
func (g *Gate) CancelByCaller(from domain.PeerID) bool {
	_, ok := g.take(from)
	if ok {
		g.logger.Infow("caller canceled before answer", "from", from)
	}
	return ok
}

// Pending reports the caller currently ringing, if any.
func (g *Gate) Pending() (domain.PeerID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return "", false
	}
	return g.pending.FromPeerID, true
}

// take removes the pending offer. With a non-empty from it only matches that
// caller.
func (g *Gate) take(from domain.PeerID) (domain.IncomingCallRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return domain.IncomingCallRequest{}, false
	}
	if from != "" && g.pending.FromPeerID != from {
		return domain.IncomingCallRequest{}, false
	}

	req := *g.pending
	g.pending = nil
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	return req, true
}

func (g *Gate) expire(from domain.PeerID) {
	req, ok := g.take(from)
	if !ok {
		return
	}

	g.logger.Infow("ring timeout, declining", "from", req.FromPeerID)
	if err := g.notifier.SendCallDeclined(req.FromPeerID); err != nil {
		g.logger.Warnw("failed to send ring-timeout decline", "to", req.FromPeerID, "error", err)
	}
	g.expired.Emit(req.FromPeerID)
}
