package domain

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// EventType names one message kind on the persistent connection.
type EventType string

// Client -> server events.
const (
	EventCreateRoom   EventType = "create-room"
	EventJoinRoom     EventType = "join-room"
	EventLeaveRoom    EventType = "leave-room"
	EventCallRequest  EventType = "call-request"
	EventCallAnswer   EventType = "call-answer"
	EventICECandidate EventType = "ice-candidate"
	EventCallDeclined EventType = "call-declined"
	EventCallEnded    EventType = "call-ended"
	EventUserBusy     EventType = "user-busy"
)

// Server -> client events.
const (
	EventPeerID            EventType = "peer-id"
	EventUsersUpdated      EventType = "users-updated"
	EventRoomCreated       EventType = "room-created"
	EventRoomJoined        EventType = "room-joined"
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventRoomUpdated       EventType = "room-updated"
	EventRoomLeft          EventType = "room-left"
	EventRoomError         EventType = "room-error"
	EventIncomingCall      EventType = "incoming-call"
	EventCallAnswered      EventType = "call-answered"
	EventCallFailed        EventType = "call-failed"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope.
func NewEnvelope(typ EventType, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

type CreateRoomPayload struct {
	Name            string `json:"name"`
	SourceLanguage  string `json:"sourceLanguage"`
	TargetLanguage  string `json:"targetLanguage"`
	MaxParticipants int    `json:"maxParticipants"`
	IsPublic        bool   `json:"isPublic"`
	ParticipantName string `json:"participantName"`
}

type JoinRoomPayload struct {
	RoomID          RoomID `json:"roomId,omitempty"`
	JoinLink        string `json:"joinLink,omitempty"`
	ParticipantName string `json:"participantName"`
	Language        string `json:"language,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID RoomID `json:"roomId"`
}

type CallRequestPayload struct {
	To    PeerID                    `json:"to"`
	From  PeerID                    `json:"from,omitempty"`
	Offer webrtc.SessionDescription `json:"offer"`
}

type CallAnswerPayload struct {
	To     PeerID                    `json:"to"`
	From   PeerID                    `json:"from,omitempty"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type ICECandidatePayload struct {
	To        PeerID                  `json:"to"`
	From      PeerID                  `json:"from,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// CallSignalPayload covers the bare from/to notifications:
// call-declined, call-ended and user-busy.
type CallSignalPayload struct {
	To   PeerID `json:"to"`
	From PeerID `json:"from,omitempty"`
}

type CallFailedPayload struct {
	Reason string `json:"reason"`
}

type PeerIDPayload struct {
	ID PeerID `json:"id"`
}

type UsersUpdatedPayload struct {
	Peers []PeerID `json:"peers"`
}

type RoomCreatedPayload struct {
	Room *Room `json:"room"`
}

type RoomJoinedPayload struct {
	Room        *Room        `json:"room"`
	Participant *Participant `json:"participant"`
}

type ParticipantJoinedPayload struct {
	Participant *Participant `json:"participant"`
}

type ParticipantLeftPayload struct {
	PeerID PeerID `json:"peerId"`
}

type RoomUpdatedPayload struct {
	Room *Room `json:"room"`
}

type RoomErrorPayload struct {
	Error string `json:"error"`
}
