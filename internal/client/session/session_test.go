package session

import (
	"context"
	"sync"
	"testing"

	"voicebridge/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	mu         sync.Mutex
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func (f *fakeTransport) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return nil, nil
}

func (f *fakeTransport) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeTransport) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localDesc = &desc
	return nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &desc
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.onState = fn
}

func (f *fakeTransport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { f.onTrack = fn }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) applied() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.candidates))
	copy(out, f.candidates)
	return out
}

type fakeSignaler struct {
	mu         sync.Mutex
	requests   int
	answers    int
	candidates []webrtc.ICECandidateInit
	hangups    int
}

func (f *fakeSignaler) SendCallRequest(to domain.PeerID, offer webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return nil
}

func (f *fakeSignaler) SendCallAnswer(to domain.PeerID, answer webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return nil
}

func (f *fakeSignaler) SendICECandidate(to domain.PeerID, candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeSignaler) SendCallEnded(to domain.PeerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups++
	return nil
}

func newTestSession(t *testing.T, role domain.CallRole) (*Session, *fakeTransport, *fakeSignaler) {
	t.Helper()
	ft := &fakeTransport{}
	fs := &fakeSignaler{}
	sess, err := New(Config{
		Remote:    "peer-2",
		Role:      role,
		Transport: ft,
		Signaler:  fs,
		Logger:    zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return sess, ft, fs
}

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestSession_CallerFlow(t *testing.T) {
	sess, ft, fs := newTestSession(t, domain.RoleCaller)
	ctx := context.Background()

	require.NoError(t, sess.Start(ctx))
	assert.Equal(t, domain.CallConnecting, sess.State())
	assert.Equal(t, 1, fs.requests)
	require.NotNil(t, ft.localDesc)
	assert.Equal(t, webrtc.SDPTypeOffer, ft.localDesc.Type)

	require.NoError(t, sess.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 a"}))
	require.NotNil(t, ft.remoteDesc)

	ft.onState(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, domain.CallConnected, sess.State())
}

func TestSession_CalleeFlow(t *testing.T) {
	sess, ft, fs := newTestSession(t, domain.RoleCallee)

	err := sess.Answer(context.Background(), domain.IncomingCallRequest{
		FromPeerID: "peer-2",
		Offer:      webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 o"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CallConnecting, sess.State())
	assert.Equal(t, 1, fs.answers)
	require.NotNil(t, ft.remoteDesc)
	assert.Equal(t, webrtc.SDPTypeOffer, ft.remoteDesc.Type)
	require.NotNil(t, ft.localDesc)
	assert.Equal(t, webrtc.SDPTypeAnswer, ft.localDesc.Type)
}

func TestSession_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	sess, ft, _ := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))

	require.NoError(t, sess.HandleRemoteCandidate(cand("a")))
	require.NoError(t, sess.HandleRemoteCandidate(cand("b")))
	assert.Empty(t, ft.applied(), "no candidate reaches the transport before the answer")

	require.NoError(t, sess.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 a"}))
	assert.Equal(t, []webrtc.ICECandidateInit{cand("a"), cand("b")}, ft.applied(),
		"buffered candidates flush in arrival order")

	require.NoError(t, sess.HandleRemoteCandidate(cand("c")))
	assert.Equal(t, []webrtc.ICECandidateInit{cand("a"), cand("b"), cand("c")}, ft.applied())
}

func TestSession_CalleeBuffersPreOfferCandidates(t *testing.T) {
	sess, ft, _ := newTestSession(t, domain.RoleCallee)

	require.NoError(t, sess.HandleRemoteCandidate(cand("early")))
	assert.Empty(t, ft.applied())

	err := sess.Answer(context.Background(), domain.IncomingCallRequest{
		FromPeerID: "peer-2",
		Offer:      webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 o"},
	})
	require.NoError(t, err)
	assert.Equal(t, []webrtc.ICECandidateInit{cand("early")}, ft.applied())
}

func TestSession_HandleAnswer_WrongState(t *testing.T) {
	sess, _, _ := newTestSession(t, domain.RoleCaller)

	// No offer is out yet.
	err := sess.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer})
	assert.ErrorIs(t, err, domain.ErrNegotiationState)

	callee, _, _ := newTestSession(t, domain.RoleCallee)
	err = callee.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer})
	assert.ErrorIs(t, err, domain.ErrNegotiationState)
}

func TestSession_DuplicateAnswerRejected(t *testing.T) {
	sess, _, _ := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 a"}
	require.NoError(t, sess.HandleAnswer(answer))
	assert.ErrorIs(t, sess.HandleAnswer(answer), domain.ErrNegotiationState)
}

func TestSession_End_Idempotent(t *testing.T) {
	sess, ft, fs := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))

	var ended int
	sess.States().Subscribe(func(s domain.CallState) {
		if s == domain.CallEnded {
			ended++
		}
	})

	sess.End()
	sess.End()
	sess.End()

	assert.Equal(t, domain.CallEnded, sess.State())
	assert.Equal(t, 1, fs.hangups, "exactly one hangup goes out")
	assert.Equal(t, 1, ended, "exactly one terminal state event")
	assert.True(t, ft.closed)
}

func TestSession_RemoteHangupDoesNotEcho(t *testing.T) {
	sess, _, fs := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))

	sess.HandleRemoteHangup()

	assert.Equal(t, domain.CallEnded, sess.State())
	assert.Equal(t, 0, fs.hangups)
}

func TestSession_RejectsEverythingAfterEnd(t *testing.T) {
	sess, _, _ := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))
	sess.End()

	assert.ErrorIs(t, sess.HandleAnswer(webrtc.SessionDescription{}), domain.ErrSessionEnded)
	assert.ErrorIs(t, sess.HandleRemoteCandidate(cand("x")), domain.ErrSessionEnded)
	assert.ErrorIs(t, sess.Start(context.Background()), domain.ErrSessionEnded)
}

func TestSession_LateConnectedResultDiscarded(t *testing.T) {
	sess, ft, _ := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))
	sess.End()

	// The transport callback fires after teardown; the session stays ended.
	ft.onState(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, domain.CallEnded, sess.State())
}

func TestSession_TransportFailureEndsCall(t *testing.T) {
	sess, ft, fs := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))

	ft.onState(webrtc.PeerConnectionStateFailed)

	assert.Equal(t, domain.CallEnded, sess.State())
	assert.Equal(t, 1, fs.hangups)
}

func TestSession_LocalCandidatesSentImmediately(t *testing.T) {
	sess, ft, fs := newTestSession(t, domain.RoleCaller)
	require.NoError(t, sess.Start(context.Background()))

	ft.onICE(cand("local-1"))
	assert.Equal(t, []webrtc.ICECandidateInit{cand("local-1")}, fs.candidates)

	sess.End()
	ft.onICE(cand("local-2"))
	assert.Len(t, fs.candidates, 1, "candidates stop after teardown")
}
