package domain

import (
	"sort"
	"time"
)

type RoomID string

// LanguageSettings carries the translation pair configured for a room.
// The translation pipeline itself is an external collaborator; the relay
// only transports these settings.
type LanguageSettings struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// Participant is one peer's membership in a room. A peer holds at most one
// Participant entry across all rooms.
type Participant struct {
	ID          PeerID    `json:"id"`
	DisplayName string    `json:"displayName"`
	IsHost      bool      `json:"isHost"`
	Language    string    `json:"language"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Room invariants: a room with zero participants does not exist, HostID always
// names a current participant, and len(Participants) never exceeds
// MaxParticipants. RoomService enforces all three.
type Room struct {
	ID               RoomID           `json:"id"`
	Name             string           `json:"name"`
	HostID           PeerID           `json:"hostId"`
	Participants     []*Participant   `json:"participants"`
	LanguageSettings LanguageSettings `json:"languageSettings"`
	MaxParticipants  int              `json:"maxParticipants"`
	IsPublic         bool             `json:"isPublic"`
	JoinLink         string           `json:"joinLink,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// Participant returns the member with the given peer id, or nil.
func (r *Room) Participant(id PeerID) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Full reports whether the room is at capacity.
func (r *Room) Full() bool {
	return len(r.Participants) >= r.MaxParticipants
}

// RemoveParticipant deletes the member with the given id and returns it.
// If the removed member was host and others remain, host role moves to the
// earliest-joined remaining participant.
func (r *Room) RemoveParticipant(id PeerID) (removed *Participant, hostChanged bool) {
	idx := -1
	for i, p := range r.Participants {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	removed = r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)

	if removed.IsHost && len(r.Participants) > 0 {
		next := r.earliestJoined()
		next.IsHost = true
		r.HostID = next.ID
		return removed, true
	}
	return removed, false
}

func (r *Room) earliestJoined() *Participant {
	members := make([]*Participant, len(r.Participants))
	copy(members, r.Participants)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members[0]
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		pc := *p
		cp.Participants[i] = &pc
	}
	return &cp
}

// PeerIDs returns the ids of all current members.
func (r *Room) PeerIDs() []PeerID {
	ids := make([]PeerID, len(r.Participants))
	for i, p := range r.Participants {
		ids[i] = p.ID
	}
	return ids
}

// RoomSummary is the public listing shape served by GET /rooms.
type RoomSummary struct {
	ID               RoomID    `json:"id"`
	Name             string    `json:"name"`
	ParticipantCount int       `json:"participantCount"`
	MaxParticipants  int       `json:"maxParticipants"`
	IsPublic         bool      `json:"isPublic"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summary builds the listing shape for a room.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:               r.ID,
		Name:             r.Name,
		ParticipantCount: len(r.Participants),
		MaxParticipants:  r.MaxParticipants,
		IsPublic:         r.IsPublic,
		CreatedAt:        r.CreatedAt,
	}
}
