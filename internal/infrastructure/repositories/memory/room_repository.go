package memory

import (
	"context"
	"fmt"
	"sync"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"
)

type MemoryRoomRepository struct {
	rooms  map[domain.RoomID]*domain.Room
	byPeer map[domain.PeerID]domain.RoomID
	mu     sync.RWMutex
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		rooms:  make(map[domain.RoomID]*domain.Room),
		byPeer: make(map[domain.PeerID]domain.RoomID),
	}
}

func (r *MemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID]; exists {
		return fmt.Errorf("room already exists: %s", room.ID)
	}

	r.rooms[room.ID] = room.Clone()
	r.reindex(room)
	return nil
}

func (r *MemoryRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r *MemoryRoomRepository) GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, exists := r.byPeer[peerID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	room, exists := r.rooms[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r *MemoryRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.rooms[room.ID]
	if !exists {
		return domain.ErrRoomNotFound
	}

	for _, p := range old.Participants {
		delete(r.byPeer, p.ID)
	}
	r.rooms[room.ID] = room.Clone()
	r.reindex(room)
	return nil
}

func (r *MemoryRoomRepository) Delete(ctx context.Context, id domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return domain.ErrRoomNotFound
	}

	for _, p := range room.Participants {
		delete(r.byPeer, p.ID)
	}
	delete(r.rooms, id)
	return nil
}

func (r *MemoryRoomRepository) ListActive(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room.Clone())
	}
	return rooms, nil
}

func (r *MemoryRoomRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), nil
}

// reindex must be called with the write lock held.
func (r *MemoryRoomRepository) reindex(room *domain.Room) {
	for _, p := range room.Participants {
		r.byPeer[p.ID] = room.ID
	}
}
