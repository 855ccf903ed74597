package session

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// pionTransport adapts a pion PeerConnection to the Transport interface.
type pionTransport struct {
	pc *webrtc.PeerConnection
}

// NewPionTransport builds a peer connection with the given ICE servers.
func NewPionTransport(iceServers []webrtc.ICEServer) (Transport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
	if err != nil {
		return nil, err
	}
	return &pionTransport{pc: pc}, nil
}

func (t *pionTransport) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return t.pc.AddTrack(track)
}

func (t *pionTransport) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *pionTransport) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *pionTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *pionTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *pionTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

func (t *pionTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks end of gathering
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (t *pionTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *pionTransport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.pc.OnTrack(fn)
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}
