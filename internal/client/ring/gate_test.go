package ring

import (
	"sync"
	"testing"
	"time"

	"voicebridge/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeNotifier struct {
	mu       sync.Mutex
	busy     []domain.PeerID
	declined []domain.PeerID
}

func (f *fakeNotifier) SendUserBusy(to domain.PeerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = append(f.busy, to)
	return nil
}

func (f *fakeNotifier) SendCallDeclined(to domain.PeerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, to)
	return nil
}

func (f *fakeNotifier) busySent() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PeerID, len(f.busy))
	copy(out, f.busy)
	return out
}

func (f *fakeNotifier) declinedSent() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PeerID, len(f.declined))
	copy(out, f.declined)
	return out
}

func newTestGate(t *testing.T, timeout time.Duration, busy func() bool) (*Gate, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	g := NewGate(Config{
		RingTimeout: timeout,
		Notifier:    n,
		Busy:        busy,
		Logger:      zaptest.NewLogger(t).Sugar(),
	})
	return g, n
}

func offer(from domain.PeerID) domain.IncomingCallRequest {
	return domain.IncomingCallRequest{
		FromPeerID: from,
		Offer:      webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
		ReceivedAt: time.Now(),
	}
}

func TestGate_OfferRingsAndAccepts(t *testing.T) {
	g, n := newTestGate(t, time.Minute, nil)

	var ringing []domain.PeerID
	g.Incoming().Subscribe(func(req domain.IncomingCallRequest) {
		ringing = append(ringing, req.FromPeerID)
	})

	g.Offer(offer("caller-1"))
	assert.Equal(t, []domain.PeerID{"caller-1"}, ringing)

	from, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("caller-1"), from)

	req, err := g.Accept()
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("caller-1"), req.FromPeerID)

	_, ok = g.Pending()
	assert.False(t, ok, "accept empties the slot")
	assert.Empty(t, n.busySent())
}

func TestGate_SecondOfferGetsBusy(t *testing.T) {
	g, n := newTestGate(t, time.Minute, nil)

	g.Offer(offer("caller-1"))
	g.Offer(offer("caller-2"))

	assert.Equal(t, []domain.PeerID{"caller-2"}, n.busySent())

	// The first call is still ringing.
	from, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("caller-1"), from)
}

func TestGate_BusyWhileInCall(t *testing.T) {
	g, n := newTestGate(t, time.Minute, func() bool { return true })

	g.Offer(offer("caller-1"))

	assert.Equal(t, []domain.PeerID{"caller-1"}, n.busySent())
	_, ok := g.Pending()
	assert.False(t, ok)
}

func TestGate_Decline(t *testing.T) {
	g, n := newTestGate(t, time.Minute, nil)

	g.Offer(offer("caller-1"))
	require.NoError(t, g.Decline())

	assert.Equal(t, []domain.PeerID{"caller-1"}, n.declinedSent())
	_, ok := g.Pending()
	assert.False(t, ok)
}

func TestGate_AcceptWithoutPending(t *testing.T) {
	g, _ := newTestGate(t, time.Minute, nil)

	_, err := g.Accept()
	assert.ErrorIs(t, err, domain.ErrCallPending)
	assert.ErrorIs(t, g.Decline(), domain.ErrCallPending)
}

func TestGate_CancelByCaller(t *testing.T) {
	g, n := newTestGate(t, time.Minute, nil)

	g.Offer(offer("caller-1"))

	assert.False(t, g.CancelByCaller("someone-else"))
	assert.True(t, g.CancelByCaller("caller-1"))

	_, ok := g.Pending()
	assert.False(t, ok)
	assert.Empty(t, n.declinedSent(), "a canceled ring is not a decline")
}

func TestGate_RingTimeout(t *testing.T) {
	g, n := newTestGate(t, 20*time.Millisecond, nil)

	expired := make(chan domain.PeerID, 1)
	g.Expired().Subscribe(func(from domain.PeerID) { expired <- from })

	g.Offer(offer("caller-1"))

	select {
	case from := <-expired:
		assert.Equal(t, domain.PeerID("caller-1"), from)
	case <-time.After(time.Second):
		t.Fatal("ring timeout never fired")
	}

	assert.Equal(t, []domain.PeerID{"caller-1"}, n.declinedSent())
	_, ok := g.Pending()
	assert.False(t, ok)

	// The slot is free again.
	g.Offer(offer("caller-2"))
	from, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("caller-2"), from)
}

func TestGate_AcceptBeatsTimeout(t *testing.T) {
	g, n := newTestGate(t, 30*time.Millisecond, nil)

	g.Offer(offer("caller-1"))
	_, err := g.Accept()
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, n.declinedSent(), "a stopped timer must not decline an accepted call")
}
