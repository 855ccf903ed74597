package ports

import (
	"context"

	"voicebridge/internal/core/domain"
)

// RoomRepository stores room state. Implementations must return
// domain.ErrRoomNotFound for unknown ids.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	// GetByPeer resolves the room a peer currently occupies.
	GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, id domain.RoomID) error
	ListActive(ctx context.Context) ([]*domain.Room, error)
	Count(ctx context.Context) (int, error)
}

// PresenceRepository tracks the online peer set.
type PresenceRepository interface {
	Add(ctx context.Context, peer *domain.Peer) error
	Remove(ctx context.Context, id domain.PeerID) error
	List(ctx context.Context) ([]domain.PeerID, error)
	Count(ctx context.Context) (int, error)
}
