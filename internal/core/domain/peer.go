package domain

import "time"

type PeerID string

// Peer is one live relay connection. Exactly one connection handle exists
// per id; the binding is created on registration and destroyed on disconnect.
type Peer struct {
	ID           PeerID
	RegisteredAt time.Time
}
