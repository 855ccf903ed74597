package memory

import (
	"context"
	"sort"
	"sync"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"
)

type MemoryPresenceRepository struct {
	peers map[domain.PeerID]*domain.Peer
	mu    sync.RWMutex
}

func NewMemoryPresenceRepository() ports.PresenceRepository {
	return &MemoryPresenceRepository{
		peers: make(map[domain.PeerID]*domain.Peer),
	}
}

func (r *MemoryPresenceRepository) Add(ctx context.Context, peer *domain.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[peer.ID] = peer
	return nil
}

func (r *MemoryPresenceRepository) Remove(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; !exists {
		return domain.ErrPeerNotFound
	}
	delete(r.peers, id)
	return nil
}

func (r *MemoryPresenceRepository) List(ctx context.Context) ([]domain.PeerID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryPresenceRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers), nil
}
