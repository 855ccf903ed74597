package domain

// RoomEventType names a room lifecycle notification fanned out to members.
type RoomEventType string

const (
	RoomEventParticipantJoined RoomEventType = "participant-joined"
	RoomEventParticipantLeft   RoomEventType = "participant-left"
	RoomEventUpdated           RoomEventType = "room-updated"
	RoomEventDeleted           RoomEventType = "room-deleted"
)

// RoomEvent is emitted by the room service after each membership mutation.
// Room is a snapshot taken under the service lock; Recipients lists the peers
// the event must be delivered to.
type RoomEvent struct {
	Type        RoomEventType
	RoomID      RoomID
	Room        *Room
	Participant *Participant
	PeerID      PeerID
	Recipients  []PeerID
}
