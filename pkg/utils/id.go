package utils

import (
	"github.com/google/uuid"
)

// GeneratePeerID generates a unique peer ID.
func GeneratePeerID() string {
	return uuid.NewString()
}

// GenerateRoomID generates a unique room ID.
func GenerateRoomID() string {
	return "room_" + uuid.NewString()
}

// GenerateCallID generates a unique call ID.
func GenerateCallID() string {
	return "call_" + uuid.NewString()
}
