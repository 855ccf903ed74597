package ports

import (
	"context"

	"voicebridge/internal/core/domain"
	"voicebridge/pkg/events"
)

// RoomService owns room lifecycle: creation, membership, host identity,
// capacity and visibility. All mutations are serialized by the
// implementation; callers never see a half-applied membership change.
type RoomService interface {
	CreateRoom(ctx context.Context, hostID domain.PeerID, req domain.CreateRoomPayload) (*domain.Room, error)
	JoinRoom(ctx context.Context, peerID domain.PeerID, req domain.JoinRoomPayload) (*domain.Room, *domain.Participant, error)
	// LeaveRoom removes the peer from whichever room it occupies. No-op if
	// the peer is in no room. Both explicit leave-room and connection drop
	// go through here.
	LeaveRoom(ctx context.Context, peerID domain.PeerID) error
	ListRooms(ctx context.Context) ([]domain.RoomSummary, error)
	RoomCount(ctx context.Context) (int, error)
	// Events exposes the membership notification stream the signaling layer
	// fans out to room members.
	Events() *events.Emitter[domain.RoomEvent]
}
