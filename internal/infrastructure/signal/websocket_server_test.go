package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"
	"voicebridge/internal/core/services"
	"voicebridge/internal/infrastructure/monitoring"
	"voicebridge/internal/infrastructure/repositories/memory"
	"voicebridge/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// promauto registers into the default registry; one collector per test binary.
var testCollector = monitoring.NewCollector()

type harness struct {
	server *httptest.Server
	rooms  ports.RoomService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Signal.PingInterval = 100 * time.Millisecond
	cfg.Signal.PongTimeout = 5 * time.Second
	cfg.Signal.WriteTimeout = time.Second

	logger := zaptest.NewLogger(t).Sugar()
	links := services.NewJoinLinkSigner("test-secret", time.Hour, "")
	rooms := services.NewRoomService(memory.NewMemoryRoomRepository(), links, services.RoomServiceConfig{
		DefaultMaxParticipants: 4,
		MaxParticipantsLimit:   16,
	}, logger)

	registry := NewPeerRegistry(memory.NewMemoryPresenceRepository(), logger)
	relay := NewMessageRelay(registry, testCollector, logger)
	ws := NewWebSocketServer(cfg, registry, relay, rooms, testCollector, logger)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(server.Close)

	return &harness{server: server, rooms: rooms}
}

type testClient struct {
	t     *testing.T
	conn  *websocket.Conn
	id    domain.PeerID
	inbox chan domain.Envelope
}

func dial(t *testing.T, h *harness) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn, inbox: make(chan domain.Envelope, 64)}
	go func() {
		for {
			var env domain.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				close(c.inbox)
				return
			}
			c.inbox <- env
		}
	}()

	var p domain.PeerIDPayload
	c.expect(domain.EventPeerID, &p)
	require.NotEmpty(t, p.ID)
	c.id = p.ID
	return c
}

// expect waits for the next envelope of the given type, skipping unrelated
// broadcasts, and decodes its payload.
func (c *testClient) expect(typ domain.EventType, into interface{}) domain.Envelope {
	c.t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", typ)
			}
			if env.Type != typ {
				continue
			}
			if into != nil {
				require.NoError(c.t, json.Unmarshal(env.Payload, into))
			}
			return env
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func (c *testClient) send(typ domain.EventType, payload interface{}) {
	c.t.Helper()
	env, err := domain.NewEnvelope(typ, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(env))
}

func (c *testClient) createRoom(name string) *domain.Room {
	c.t.Helper()
	c.send(domain.EventCreateRoom, domain.CreateRoomPayload{
		Name:            name,
		ParticipantName: "Host",
		IsPublic:        true,
	})
	var p domain.RoomCreatedPayload
	c.expect(domain.EventRoomCreated, &p)
	require.NotNil(c.t, p.Room)
	return p.Room
}

func (c *testClient) joinRoom(roomID domain.RoomID, name string) *domain.Room {
	c.t.Helper()
	c.send(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: roomID, ParticipantName: name})
	var p domain.RoomJoinedPayload
	c.expect(domain.EventRoomJoined, &p)
	require.NotNil(c.t, p.Room)
	return p.Room
}

func TestWebSocketServer_AssignsDistinctPeerIDs(t *testing.T) {
	h := newHarness(t)

	a := dial(t, h)
	b := dial(t, h)

	assert.NotEqual(t, a.id, b.id)

	// Both ids show up in a presence broadcast eventually.
	for {
		var p domain.UsersUpdatedPayload
		a.expect(domain.EventUsersUpdated, &p)
		if len(p.Peers) == 2 {
			assert.ElementsMatch(t, []domain.PeerID{a.id, b.id}, p.Peers)
			return
		}
	}
}

func TestWebSocketServer_RoomLifecycle(t *testing.T) {
	h := newHarness(t)

	a := dial(t, h)
	b := dial(t, h)

	room := a.createRoom("standup")
	assert.Equal(t, a.id, room.HostID)
	assert.NotEmpty(t, room.JoinLink)

	joined := b.joinRoom(room.ID, "Guest")
	assert.Len(t, joined.Participants, 2)

	var pj domain.ParticipantJoinedPayload
	a.expect(domain.EventParticipantJoined, &pj)
	require.NotNil(t, pj.Participant)
	assert.Equal(t, b.id, pj.Participant.ID)

	b.send(domain.EventLeaveRoom, nil)
	b.expect(domain.EventRoomLeft, nil)

	var pl domain.ParticipantLeftPayload
	a.expect(domain.EventParticipantLeft, &pl)
	assert.Equal(t, b.id, pl.PeerID)
}

func TestWebSocketServer_JoinUnknownRoomIsError(t *testing.T) {
	h := newHarness(t)
	a := dial(t, h)

	a.send(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: "room_missing", ParticipantName: "G"})

	var p domain.RoomErrorPayload
	a.expect(domain.EventRoomError, &p)
	assert.Contains(t, p.Error, "not found")
}

func TestWebSocketServer_RelaysNegotiation(t *testing.T) {
	h := newHarness(t)

	a := dial(t, h)
	b := dial(t, h)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 test offer"}
	a.send(domain.EventCallRequest, domain.CallRequestPayload{To: b.id, Offer: offer})

	var incoming domain.CallRequestPayload
	b.expect(domain.EventIncomingCall, &incoming)
	assert.Equal(t, a.id, incoming.From, "relay stamps the sender")
	assert.Equal(t, offer.SDP, incoming.Offer.SDP, "SDP passes through untouched")

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 test answer"}
	b.send(domain.EventCallAnswer, domain.CallAnswerPayload{To: a.id, Answer: answer})

	var answered domain.CallAnswerPayload
	a.expect(domain.EventCallAnswered, &answered)
	assert.Equal(t, b.id, answered.From)
	assert.Equal(t, answer.SDP, answered.Answer.SDP)

	a.send(domain.EventICECandidate, domain.ICECandidatePayload{
		To:        b.id,
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})
	var cand domain.ICECandidatePayload
	b.expect(domain.EventICECandidate, &cand)
	assert.Equal(t, a.id, cand.From)
	assert.Equal(t, "candidate:1", cand.Candidate.Candidate)

	b.send(domain.EventCallEnded, domain.CallSignalPayload{To: a.id})
	var ended domain.CallSignalPayload
	a.expect(domain.EventCallEnded, &ended)
	assert.Equal(t, b.id, ended.From)
}

func TestWebSocketServer_OfflineTargetFailsCall(t *testing.T) {
	h := newHarness(t)
	a := dial(t, h)

	a.send(domain.EventCallRequest, domain.CallRequestPayload{
		To:    "nobody-home",
		Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	var p domain.CallFailedPayload
	a.expect(domain.EventCallFailed, &p)
	assert.Equal(t, "user offline", p.Reason)
}

func TestWebSocketServer_DisconnectRunsHostFailover(t *testing.T) {
	h := newHarness(t)

	host := dial(t, h)
	guest := dial(t, h)

	room := host.createRoom("standup")
	guest.joinRoom(room.ID, "Guest")

	// Host drops without an explicit leave.
	host.conn.Close()

	var pl domain.ParticipantLeftPayload
	guest.expect(domain.EventParticipantLeft, &pl)
	assert.Equal(t, host.id, pl.PeerID)

	var ru domain.RoomUpdatedPayload
	guest.expect(domain.EventRoomUpdated, &ru)
	require.NotNil(t, ru.Room)
	assert.Equal(t, guest.id, ru.Room.HostID, "host moves to the remaining participant")
}
