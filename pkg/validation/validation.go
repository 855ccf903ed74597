package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// PeerIDRegex validates peer ID format
	PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// LanguageRegex validates BCP-47 style language tags (en, en-US, pt-BR)
	LanguageRegex = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})*$`)
)

// ValidatePeerID validates peer ID
func ValidatePeerID(peerID string) error {
	if peerID == "" {
		return fmt.Errorf("peer ID is required")
	}
	if len(peerID) > 100 {
		return fmt.Errorf("peer ID is too long (max 100 characters)")
	}
	if !PeerIDRegex.MatchString(peerID) {
		return fmt.Errorf("invalid peer ID format")
	}
	return nil
}

// ValidateRoomID validates room ID
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateRoomName validates room name
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("room name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("room name contains invalid characters")
	}
	return nil
}

// ValidateDisplayName validates participant display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateLanguage validates a language tag
func ValidateLanguage(lang string) error {
	if lang == "" {
		return fmt.Errorf("language is required")
	}
	if !LanguageRegex.MatchString(lang) {
		return fmt.Errorf("invalid language tag: %s", lang)
	}
	return nil
}

// ValidateSDP performs a shape check on a session description. The relay
// never parses SDP, but rejecting obviously broken payloads early keeps
// garbage out of the forwarding path.
func ValidateSDP(sdp string) error {
	if sdp == "" {
		return fmt.Errorf("SDP cannot be empty")
	}
	if len(sdp) < 2 || sdp[:2] != "v=" {
		return fmt.Errorf("invalid SDP format: must start with 'v='")
	}
	for _, field := range []string{"v=", "o=", "s="} {
		if !strings.Contains(sdp, field) {
			return fmt.Errorf("invalid SDP format: missing required field '%s'", field)
		}
	}
	return nil
}

// ValidateMaxParticipants validates a room capacity against the configured ceiling.
func ValidateMaxParticipants(n, limit int) error {
	if n < 2 {
		return fmt.Errorf("max participants must be at least 2")
	}
	if limit > 0 && n > limit {
		return fmt.Errorf("max participants exceeds limit (%d)", limit)
	}
	return nil
}
