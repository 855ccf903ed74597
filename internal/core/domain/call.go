package domain

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
)

// CallID is the locally generated identifier a session carries through its
// log lines. It never goes over the wire; peers address each other by PeerID.
type CallID string

// CallRole distinguishes the side that sent the offer from the side that
// answered it.
type CallRole string

const (
	RoleCaller CallRole = "caller"
	RoleCallee CallRole = "callee"
)

// CallState is the explicit call progress enum. Ended is terminal; a new call
// requires a new session.
type CallState int

const (
	CallIdle CallState = iota
	CallConnecting
	CallConnected
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallConnecting:
		return "connecting"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// legal transitions; ended is reachable from every state so hangup and
// failure paths never get rejected.
var callTransitions = map[CallState][]CallState{
	CallIdle:       {CallConnecting, CallEnded},
	CallConnecting: {CallConnected, CallEnded},
	CallConnected:  {CallEnded},
	CallEnded:      {},
}

// CanTransition reports whether moving from s to next is legal.
func (s CallState) CanTransition(next CallState) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IncomingCallRequest is a pending inbound offer held by the ring gate.
// At most one live instance exists per client.
type IncomingCallRequest struct {
	FromPeerID PeerID
	Offer      webrtc.SessionDescription
	ReceivedAt time.Time
}
