package session

import (
	"context"

	"voicebridge/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// Transport is the negotiation surface of one peer connection. The session
// drives it through offer/answer and candidate exchange without knowing the
// underlying WebRTC implementation.
type Transport interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver))

	Close() error
}

// Signaler carries the session's outbound negotiation messages. The
// signaling client implements it.
type Signaler interface {
	SendCallRequest(to domain.PeerID, offer webrtc.SessionDescription) error
	SendCallAnswer(to domain.PeerID, answer webrtc.SessionDescription) error
	SendICECandidate(to domain.PeerID, candidate webrtc.ICECandidateInit) error
	SendCallEnded(to domain.PeerID) error
}
