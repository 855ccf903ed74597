package signal

import (
	"context"
	"sync"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"

	"go.uber.org/zap"
)

// PeerRegistry tracks live connections by peer id and mirrors the online set
// into the presence repository.
type PeerRegistry struct {
	mu    sync.RWMutex
	conns map[domain.PeerID]*Conn

	presence ports.PresenceRepository
	logger   *zap.SugaredLogger
}

func NewPeerRegistry(presence ports.PresenceRepository, logger *zap.SugaredLogger) *PeerRegistry {
	return &PeerRegistry{
		conns:    make(map[domain.PeerID]*Conn),
		presence: presence,
		logger:   logger,
	}
}

// Register adds the connection under its peer id. If the peer already has a
// connection the old one is closed and replaced.
func (r *PeerRegistry) Register(ctx context.Context, conn *Conn) error {
	r.mu.Lock()
	old, reconnect := r.conns[conn.ID()]
	r.conns[conn.ID()] = conn
	r.mu.Unlock()

	if reconnect && old != nil {
		r.logger.Infow("closing stale connection for reconnecting peer", "peer_id", conn.ID())
		old.Close()
	}

	if err := r.presence.Add(ctx, &domain.Peer{ID: conn.ID(), RegisteredAt: time.Now()}); err != nil {
		r.mu.Lock()
		delete(r.conns, conn.ID())
		r.mu.Unlock()
		return err
	}
	return nil
}

// Unregister removes the connection if it is still the one registered for
// its peer id. A newer connection from a reconnect is left alone.
func (r *PeerRegistry) Unregister(ctx context.Context, conn *Conn) {
	r.mu.Lock()
	current, ok := r.conns[conn.ID()]
	if ok && current == conn {
		delete(r.conns, conn.ID())
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.presence.Remove(ctx, conn.ID()); err != nil {
		r.logger.Warnw("failed to remove peer from presence", "peer_id", conn.ID(), "error", err)
	}
}

func (r *PeerRegistry) Lookup(id domain.PeerID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// Conns returns a snapshot of all live connections.
func (r *PeerRegistry) Conns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Peers lists the online peer ids from the presence repository.
func (r *PeerRegistry) Peers(ctx context.Context) ([]domain.PeerID, error) {
	return r.presence.List(ctx)
}

func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
