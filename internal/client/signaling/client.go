package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/pkg/events"
	"voicebridge/pkg/logger"
	"voicebridge/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Client is the persistent connection to the relay. It decodes inbound
// envelopes into typed event streams and exposes typed senders for everything
// the relay accepts. It implements session.Signaler and ring.Notifier.
type Client struct {
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	peerID domain.PeerID
	ready  chan struct{}
	closed bool

	// inbound streams
	usersUpdated     *events.Emitter[domain.UsersUpdatedPayload]
	roomCreated      *events.Emitter[domain.RoomCreatedPayload]
	roomJoined       *events.Emitter[domain.RoomJoinedPayload]
	participantJoins *events.Emitter[domain.ParticipantJoinedPayload]
	participantLeft  *events.Emitter[domain.ParticipantLeftPayload]
	roomUpdated      *events.Emitter[domain.RoomUpdatedPayload]
	roomLeft         *events.Emitter[struct{}]
	roomErrors       *events.Emitter[domain.RoomErrorPayload]
	incomingCalls    *events.Emitter[domain.CallRequestPayload]
	callAnswered     *events.Emitter[domain.CallAnswerPayload]
	remoteCandidates *events.Emitter[domain.ICECandidatePayload]
	callDeclined     *events.Emitter[domain.CallSignalPayload]
	callEnded        *events.Emitter[domain.CallSignalPayload]
	userBusy         *events.Emitter[domain.CallSignalPayload]
	callFailed       *events.Emitter[domain.CallFailedPayload]
	disconnected     *events.Emitter[error]
}

func NewClient(lg *zap.SugaredLogger) *Client {
	if lg == nil {
		lg = logger.NewNop().Sugar()
	}
	return &Client{
		logger:           lg,
		ready:            make(chan struct{}),
		usersUpdated:     events.NewEmitter[domain.UsersUpdatedPayload](),
		roomCreated:      events.NewEmitter[domain.RoomCreatedPayload](),
		roomJoined:       events.NewEmitter[domain.RoomJoinedPayload](),
		participantJoins: events.NewEmitter[domain.ParticipantJoinedPayload](),
		participantLeft:  events.NewEmitter[domain.ParticipantLeftPayload](),
		roomUpdated:      events.NewEmitter[domain.RoomUpdatedPayload](),
		roomLeft:         events.NewEmitter[struct{}](),
		roomErrors:       events.NewEmitter[domain.RoomErrorPayload](),
		incomingCalls:    events.NewEmitter[domain.CallRequestPayload](),
		callAnswered:     events.NewEmitter[domain.CallAnswerPayload](),
		remoteCandidates: events.NewEmitter[domain.ICECandidatePayload](),
		callDeclined:     events.NewEmitter[domain.CallSignalPayload](),
		callEnded:        events.NewEmitter[domain.CallSignalPayload](),
		userBusy:         events.NewEmitter[domain.CallSignalPayload](),
		callFailed:       events.NewEmitter[domain.CallFailedPayload](),
		disconnected:     events.NewEmitter[error](),
	}
}

// Connect dials the relay, retrying transient failures, and starts the read
// loop. Returns once the connection is established; the server-assigned peer
// id arrives asynchronously, see AwaitPeerID.
func (c *Client) Connect(ctx context.Context, url string) error {
	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			c.logger.Warnw("dial failed, will retry", "url", url, "error", err)
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// AwaitPeerID blocks until the relay has assigned this client its id.
func (c *Client) AwaitPeerID(ctx context.Context) (domain.PeerID, error) {
	select {
	case <-c.ready:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.peerID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// PeerID returns the assigned id, empty until registration completes.
func (c *Client) PeerID() domain.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.closed = true
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Event stream accessors.

func (c *Client) UsersUpdated() *events.Emitter[domain.UsersUpdatedPayload]      { return c.usersUpdated }
func (c *Client) RoomCreated() *events.Emitter[domain.RoomCreatedPayload]        { return c.roomCreated }
func (c *Client) RoomJoined() *events.Emitter[domain.RoomJoinedPayload]          { return c.roomJoined }
func (c *Client) ParticipantJoined() *events.Emitter[domain.ParticipantJoinedPayload] {
	return c.participantJoins
}
func (c *Client) ParticipantLeft() *events.Emitter[domain.ParticipantLeftPayload] {
	return c.participantLeft
}
func (c *Client) RoomUpdated() *events.Emitter[domain.RoomUpdatedPayload]    { return c.roomUpdated }
func (c *Client) RoomLeft() *events.Emitter[struct{}]                        { return c.roomLeft }
func (c *Client) RoomErrors() *events.Emitter[domain.RoomErrorPayload]       { return c.roomErrors }
func (c *Client) IncomingCalls() *events.Emitter[domain.CallRequestPayload]  { return c.incomingCalls }
func (c *Client) CallAnswered() *events.Emitter[domain.CallAnswerPayload]    { return c.callAnswered }
func (c *Client) RemoteCandidates() *events.Emitter[domain.ICECandidatePayload] {
	return c.remoteCandidates
}
func (c *Client) CallDeclined() *events.Emitter[domain.CallSignalPayload] { return c.callDeclined }
func (c *Client) CallEnded() *events.Emitter[domain.CallSignalPayload]    { return c.callEnded }
func (c *Client) UserBusy() *events.Emitter[domain.CallSignalPayload]     { return c.userBusy }
func (c *Client) CallFailed() *events.Emitter[domain.CallFailedPayload]   { return c.callFailed }

// Disconnected fires once when the read loop exits.
func (c *Client) Disconnected() *events.Emitter[error] { return c.disconnected }

// Typed senders.

func (c *Client) CreateRoom(p domain.CreateRoomPayload) error {
	return c.send(domain.EventCreateRoom, p)
}

func (c *Client) JoinRoom(p domain.JoinRoomPayload) error {
	return c.send(domain.EventJoinRoom, p)
}

func (c *Client) LeaveRoom() error {
	return c.send(domain.EventLeaveRoom, nil)
}

func (c *Client) SendCallRequest(to domain.PeerID, offer webrtc.SessionDescription) error {
	return c.send(domain.EventCallRequest, domain.CallRequestPayload{To: to, Offer: offer})
}

func (c *Client) SendCallAnswer(to domain.PeerID, answer webrtc.SessionDescription) error {
	return c.send(domain.EventCallAnswer, domain.CallAnswerPayload{To: to, Answer: answer})
}

func (c *Client) SendICECandidate(to domain.PeerID, candidate webrtc.ICECandidateInit) error {
	return c.send(domain.EventICECandidate, domain.ICECandidatePayload{To: to, Candidate: candidate})
}

func (c *Client) SendCallDeclined(to domain.PeerID) error {
	return c.send(domain.EventCallDeclined, domain.CallSignalPayload{To: to})
}

func (c *Client) SendCallEnded(to domain.PeerID) error {
	return c.send(domain.EventCallEnded, domain.CallSignalPayload{To: to})
}

func (c *Client) SendUserBusy(to domain.PeerID) error {
	return c.send(domain.EventUserBusy, domain.CallSignalPayload{To: to})
}

func (c *Client) send(typ domain.EventType, payload interface{}) error {
	env, err := domain.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(env)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var loopErr error
	defer func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.disconnected.Emit(loopErr)
		}
	}()

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			loopErr = err
			return
		}
		c.handle(env)
	}
}

func (c *Client) handle(env domain.Envelope) {
	switch env.Type {
	case domain.EventPeerID:
		var p domain.PeerIDPayload
		if !c.decode(env, &p) {
			return
		}
		c.mu.Lock()
		first := c.peerID == ""
		c.peerID = p.ID
		c.mu.Unlock()
		if first {
			close(c.ready)
		}
		c.logger.Infow("registered with relay", "peer_id", p.ID)

	case domain.EventUsersUpdated:
		var p domain.UsersUpdatedPayload
		if c.decode(env, &p) {
			c.usersUpdated.Emit(p)
		}

	case domain.EventRoomCreated:
		var p domain.RoomCreatedPayload
		if c.decode(env, &p) {
			c.roomCreated.Emit(p)
		}

	case domain.EventRoomJoined:
		var p domain.RoomJoinedPayload
		if c.decode(env, &p) {
			c.roomJoined.Emit(p)
		}

	case domain.EventParticipantJoined:
		var p domain.ParticipantJoinedPayload
		if c.decode(env, &p) {
			c.participantJoins.Emit(p)
		}

	case domain.EventParticipantLeft:
		var p domain.ParticipantLeftPayload
		if c.decode(env, &p) {
			c.participantLeft.Emit(p)
		}

	case domain.EventRoomUpdated:
		var p domain.RoomUpdatedPayload
		if c.decode(env, &p) {
			c.roomUpdated.Emit(p)
		}

	case domain.EventRoomLeft:
		c.roomLeft.Emit(struct{}{})

	case domain.EventRoomError:
		var p domain.RoomErrorPayload
		if c.decode(env, &p) {
			c.roomErrors.Emit(p)
		}

	case domain.EventIncomingCall:
		var p domain.CallRequestPayload
		if c.decode(env, &p) {
			c.incomingCalls.Emit(p)
		}

	case domain.EventCallAnswered:
		var p domain.CallAnswerPayload
		if c.decode(env, &p) {
			c.callAnswered.Emit(p)
		}

	case domain.EventICECandidate:
		var p domain.ICECandidatePayload
		if c.decode(env, &p) {
			c.remoteCandidates.Emit(p)
		}

	case domain.EventCallDeclined:
		var p domain.CallSignalPayload
		if c.decode(env, &p) {
			c.callDeclined.Emit(p)
		}

	case domain.EventCallEnded:
		var p domain.CallSignalPayload
		if c.decode(env, &p) {
			c.callEnded.Emit(p)
		}

	case domain.EventUserBusy:
		var p domain.CallSignalPayload
		if c.decode(env, &p) {
			c.userBusy.Emit(p)
		}

	case domain.EventCallFailed:
		var p domain.CallFailedPayload
		if c.decode(env, &p) {
			c.callFailed.Emit(p)
		}

	default:
		c.logger.Debugw("ignoring unknown event", "type", env.Type)
	}
}

func (c *Client) decode(env domain.Envelope, into interface{}) bool {
	if err := json.Unmarshal(env.Payload, into); err != nil {
		c.logger.Warnw("failed to decode payload", "type", env.Type, "error", err)
		return false
	}
	return true
}
