package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicebridge/internal/client/media"
	"voicebridge/internal/client/quality"
	"voicebridge/internal/client/ring"
	"voicebridge/internal/client/session"
	"voicebridge/internal/client/signaling"
	"voicebridge/internal/core/domain"
	"voicebridge/pkg/config"
	"voicebridge/pkg/logger"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config for one voicebridge client.
type Config struct {
	// ServerURL is the relay websocket endpoint, e.g. ws://host:8080/ws.
	ServerURL   string
	ICEServers  []webrtc.ICEServer
	RingTimeout time.Duration
	// MediaAddress, when set, is the local UDP address an external encoder
	// publishes RTP audio to. Calls run without local media otherwise.
	MediaAddress string
	Logger       *zap.SugaredLogger
}

// ConfigFrom builds a client Config from the application config: the ice
// servers and ring timeout configured for the relay apply to clients as well.
func ConfigFrom(app *config.Config, serverURL string, lg *zap.SugaredLogger) Config {
	ice := make([]webrtc.ICEServer, 0, len(app.WebRTC.ICEServers))
	for _, s := range app.WebRTC.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		ice = append(ice, srv)
	}

	return Config{
		ServerURL:   serverURL,
		ICEServers:  ice,
		RingTimeout: app.Signal.RingTimeout,
		Logger:      lg,
	}
}

// callSignaler is what the client needs from the signaling layer for calls:
// the session's negotiation sends plus the decline notification.
type callSignaler interface {
	session.Signaler
	SendCallDeclined(to domain.PeerID) error
}

// Client ties the signaling connection, the incoming call gate and the
// active call session together. One client holds at most one active session.
type Client struct {
	cfg       Config
	logger    *zap.SugaredLogger
	signaling *signaling.Client
	gate      *ring.Gate
	quality   *quality.Monitor

	signaler  callSignaler
	transport func() (session.Transport, error)

	mu            sync.Mutex
	active        *session.Session
	preAnswer     []webrtc.ICECandidateInit
	preAnswerFrom domain.PeerID
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop().Sugar()
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:       cfg,
		logger:    cfg.Logger,
		signaling: signaling.NewClient(cfg.Logger),
		quality:   quality.NewMonitor(cfg.Logger),
	}
	c.signaler = c.signaling
	c.transport = func() (session.Transport, error) {
		return session.NewPionTransport(cfg.ICEServers)
	}
	c.gate = ring.NewGate(ring.Config{
		RingTimeout: cfg.RingTimeout,
		Notifier:    c.signaling,
		Busy:        c.inCall,
		Logger:      cfg.Logger,
	})
	c.route()
	return c
}

// Connect dials the relay and waits for the server-assigned peer id.
func (c *Client) Connect(ctx context.Context) (domain.PeerID, error) {
	if err := c.signaling.Connect(ctx, c.cfg.ServerURL); err != nil {
		return "", err
	}
	return c.signaling.AwaitPeerID(ctx)
}

func (c *Client) Close() error {
	c.HangUp()
	return c.signaling.Close()
}

func (c *Client) PeerID() domain.PeerID { return c.signaling.PeerID() }

// Signaling exposes the underlying event streams for UI wiring.
func (c *Client) Signaling() *signaling.Client { return c.signaling }

// Gate exposes the incoming call gate, mainly its Incoming stream.
func (c *Client) Gate() *ring.Gate { return c.gate }

// Call starts an outbound call to the given peer.
func (c *Client) Call(ctx context.Context, to domain.PeerID) error {
	c.mu.Lock()
	if c.activeLocked() {
		c.mu.Unlock()
		return domain.ErrCallPending
	}

	sess, err := c.newSession(to, domain.RoleCaller)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.active = sess
	c.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		c.clearSession(sess)
		return err
	}
	return nil
}

// Accept answers the pending incoming call. With another call already active
// the offer stays in the gate, still ringing, so the caller is never dropped
// without an answer.
func (c *Client) Accept(ctx context.Context) error {
	c.mu.Lock()
	if c.activeLocked() {
		c.mu.Unlock()
		return domain.ErrCallPending
	}

	req, err := c.gate.Accept()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	sess, err := c.newSession(req.FromPeerID, domain.RoleCallee)
	if err != nil {
		c.mu.Unlock()
		c.declineTaken(req.FromPeerID)
		return err
	}
	c.active = sess

	// Candidates held while the call was ringing go into the session before
	// the offer is applied, so they flush ahead of anything that arrives later.
	if c.preAnswerFrom == req.FromPeerID {
		for _, cand := range c.preAnswer {
			if err := sess.HandleRemoteCandidate(cand); err != nil {
				c.logger.Warnw("failed to buffer pre-answer candidate", "error", err)
			}
		}
	}
	c.preAnswer = nil
	c.preAnswerFrom = ""
	c.mu.Unlock()

	if err := sess.Answer(ctx, req); err != nil {
		c.clearSession(sess)
		c.declineTaken(req.FromPeerID)
		return err
	}
	return nil
}

// declineTaken tells a caller whose offer was already consumed from the gate
// that the call will not proceed.
func (c *Client) declineTaken(to domain.PeerID) {
	if err := c.signaler.SendCallDeclined(to); err != nil {
		c.logger.Warnw("failed to send call-declined", "to", to, "error", err)
	}
}

// Decline rejects the pending incoming call.
func (c *Client) Decline() error {
	return c.gate.Decline()
}

// HangUp ends the active call, if any.
func (c *Client) HangUp() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()

	if sess != nil {
		sess.End()
	}
}

// ActiveSession returns the current call session, nil when idle.
func (c *Client) ActiveSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Room passthroughs.

func (c *Client) CreateRoom(p domain.CreateRoomPayload) error { return c.signaling.CreateRoom(p) }
func (c *Client) JoinRoom(p domain.JoinRoomPayload) error     { return c.signaling.JoinRoom(p) }
func (c *Client) LeaveRoom() error                            { return c.signaling.LeaveRoom() }

func (c *Client) inCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *Client) activeLocked() bool {
	return c.active != nil && c.active.State() != domain.CallEnded
}

// newSession builds transport, media source and session for one call.
// Caller holds c.mu.
func (c *Client) newSession(remote domain.PeerID, role domain.CallRole) (*session.Session, error) {
	transport, err := c.transport()
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	var source media.Source
	if c.cfg.MediaAddress != "" {
		source, err = media.NewUDPSource(c.cfg.MediaAddress, c.logger)
		if err != nil {
			transport.Close()
			return nil, err
		}
	}

	sess, err := session.New(session.Config{
		Remote:    remote,
		Role:      role,
		Transport: transport,
		Signaler:  c.signaler,
		Source:    source,
		Quality:   c.quality,
		Logger:    c.logger,
	})
	if err != nil {
		transport.Close()
		if source != nil {
			source.Close()
		}
		return nil, err
	}

	sess.States().Subscribe(func(state domain.CallState) {
		if state == domain.CallEnded {
			c.clearSession(sess)
		}
	})
	return sess, nil
}

func (c *Client) clearSession(sess *session.Session) {
	c.mu.Lock()
	if c.active == sess {
		c.active = nil
	}
	c.mu.Unlock()
}

// route wires the inbound signaling streams to the gate and session.
func (c *Client) route() {
	c.signaling.IncomingCalls().Subscribe(func(p domain.CallRequestPayload) {
		c.gate.Offer(domain.IncomingCallRequest{
			FromPeerID: p.From,
			Offer:      p.Offer,
			ReceivedAt: time.Now(),
		})
	})

	c.signaling.CallAnswered().Subscribe(func(p domain.CallAnswerPayload) {
		sess := c.sessionFor(p.From)
		if sess == nil {
			c.logger.Debugw("discarding answer with no matching session", "from", p.From)
			return
		}
		if err := sess.HandleAnswer(p.Answer); err != nil {
			c.logger.Warnw("failed to apply answer", "from", p.From, "error", err)
		}
	})

	c.signaling.RemoteCandidates().Subscribe(func(p domain.ICECandidatePayload) {
		sess := c.sessionFor(p.From)
		if sess != nil {
			if err := sess.HandleRemoteCandidate(p.Candidate); err != nil {
				c.logger.Debugw("discarding candidate", "from", p.From, "error", err)
			}
			return
		}

		// Candidates can race ahead of Accept while the call is ringing.
		// Hold them for the pending caller; Accept hands them to the session
		// before the offer is applied, keeping arrival order.
		from, ok := c.gate.Pending()
		if !ok || from != p.From {
			return
		}

		c.mu.Lock()
		if c.active != nil && c.active.Remote() == p.From {
			// Accept won the race; the session buffers from here on.
			sess = c.active
			c.mu.Unlock()
			if err := sess.HandleRemoteCandidate(p.Candidate); err != nil {
				c.logger.Debugw("discarding candidate", "from", p.From, "error", err)
			}
			return
		}
		if c.preAnswerFrom != p.From {
			c.preAnswer = nil
			c.preAnswerFrom = p.From
		}
		c.preAnswer = append(c.preAnswer, p.Candidate)
		c.mu.Unlock()
	})

	c.signaling.CallDeclined().Subscribe(func(p domain.CallSignalPayload) {
		if sess := c.sessionFor(p.From); sess != nil {
			c.logger.Infow("call declined", "by", p.From)
			sess.HandleRemoteHangup()
		}
	})

	c.signaling.CallEnded().Subscribe(func(p domain.CallSignalPayload) {
		if c.gate.CancelByCaller(p.From) {
			c.dropPreAnswer()
			return
		}
		if sess := c.sessionFor(p.From); sess != nil {
			sess.HandleRemoteHangup()
		}
	})

	c.signaling.UserBusy().Subscribe(func(p domain.CallSignalPayload) {
		if sess := c.sessionFor(p.From); sess != nil {
			c.logger.Infow("remote peer is busy", "peer", p.From)
			sess.HandleRemoteHangup()
		}
	})

	c.signaling.CallFailed().Subscribe(func(p domain.CallFailedPayload) {
		c.mu.Lock()
		sess := c.active
		c.mu.Unlock()
		if sess != nil {
			c.logger.Warnw("call failed", "reason", p.Reason)
			sess.HandleRemoteHangup()
		}
	})

	c.gate.Expired().Subscribe(func(from domain.PeerID) {
		c.dropPreAnswer()
	})
}

func (c *Client) sessionFor(remote domain.PeerID) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.Remote() == remote {
		return c.active
	}
	return nil
}

func (c *Client) dropPreAnswer() {
	c.mu.Lock()
	c.preAnswer = nil
	c.preAnswerFrom = ""
	c.mu.Unlock()
}
