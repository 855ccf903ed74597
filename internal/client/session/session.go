package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voicebridge/internal/client/media"
	"voicebridge/internal/client/quality"
	"voicebridge/internal/core/domain"
	"voicebridge/pkg/events"
	"voicebridge/pkg/logger"
	"voicebridge/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config assembles one call session. Transport, Signaler and Logger are
// required; Source and Quality are optional.
type Config struct {
	Remote    domain.PeerID
	Role      domain.CallRole
	Transport Transport
	Signaler  Signaler
	Source    media.Source
	Quality   *quality.Monitor
	Logger    *zap.SugaredLogger
}

// Session drives one call from first offer to teardown. It owns the state
// machine, buffers remote ICE candidates that arrive before the remote
// description, and guarantees exactly one hangup notification per call.
//
// A session is single-use: once ended it rejects every operation with
// domain.ErrSessionEnded.
type Session struct {
	id        domain.CallID
	remote    domain.PeerID
	role      domain.CallRole
	transport Transport
	signaler  Signaler
	source    media.Source
	quality   *quality.Monitor
	logger    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     domain.CallState
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	sender    *webrtc.RTPSender

	states       *events.Emitter[domain.CallState]
	remoteTracks *events.Emitter[*webrtc.TrackRemote]
}

func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil || cfg.Signaler == nil {
		return nil, fmt.Errorf("session requires a transport and a signaler")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           domain.CallID(utils.GenerateCallID()),
		remote:       cfg.Remote,
		role:         cfg.Role,
		transport:    cfg.Transport,
		signaler:     cfg.Signaler,
		source:       cfg.Source,
		quality:      cfg.Quality,
		logger:       cfg.Logger,
		ctx:          ctx,
		cancel:       cancel,
		state:        domain.CallIdle,
		states:       events.NewEmitter[domain.CallState](),
		remoteTracks: events.NewEmitter[*webrtc.TrackRemote](),
	}

	// Local candidates go out as soon as they surface; the remote side is
	// responsible for buffering them until its remote description is set.
	s.transport.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if s.State() == domain.CallEnded {
			return
		}
		if err := s.signaler.SendICECandidate(s.remote, c); err != nil {
			s.logger.Warnw("failed to send ice candidate", "to", s.remote, "error", err)
		}
	})

	s.transport.OnConnectionStateChange(s.handleConnectionState)

	s.transport.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Infow("remote track received", "from", s.remote, "kind", track.Kind().String())
		s.remoteTracks.Emit(track)
	})

	return s, nil
}

// ID is the locally generated call identifier, used for log correlation.
func (s *Session) ID() domain.CallID { return s.id }

func (s *Session) Remote() domain.PeerID { return s.remote }

func (s *Session) Role() domain.CallRole { return s.role }

func (s *Session) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// States exposes the state transition stream.
func (s *Session) States() *events.Emitter[domain.CallState] { return s.states }

// RemoteTracks exposes inbound media tracks as they arrive.
func (s *Session) RemoteTracks() *events.Emitter[*webrtc.TrackRemote] { return s.remoteTracks }

// Start runs the caller side: attach local media, create and send the offer.
func (s *Session) Start(ctx context.Context) error {
	if s.role != domain.RoleCaller {
		return fmt.Errorf("%w: only the caller starts a session", domain.ErrNegotiationState)
	}
	if err := s.transition(domain.CallConnecting); err != nil {
		return err
	}

	if err := s.addLocalMedia(); err != nil {
		s.end(false)
		return err
	}

	offer, err := s.transport.CreateOffer(ctx)
	if err != nil {
		s.end(false)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.transport.SetLocalDescription(offer); err != nil {
		s.end(false)
		return fmt.Errorf("set local description: %w", err)
	}
	if err := s.signaler.SendCallRequest(s.remote, offer); err != nil {
		s.end(false)
		return fmt.Errorf("send call request: %w", err)
	}

	s.logger.Infow("call offer sent", "call_id", s.id, "to", s.remote)
	return nil
}

// Answer runs the callee side against an accepted incoming offer.
func (s *Session) Answer(ctx context.Context, req domain.IncomingCallRequest) error {
	if s.role != domain.RoleCallee {
		return fmt.Errorf("%w: only the callee answers", domain.ErrNegotiationState)
	}
	if err := s.transition(domain.CallConnecting); err != nil {
		return err
	}

	if err := s.addLocalMedia(); err != nil {
		s.end(false)
		return err
	}

	if err := s.transport.SetRemoteDescription(req.Offer); err != nil {
		s.end(false)
		return fmt.Errorf("set remote offer: %w", err)
	}
	s.flushCandidates()

	answer, err := s.transport.CreateAnswer(ctx)
	if err != nil {
		s.end(false)
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.transport.SetLocalDescription(answer); err != nil {
		s.end(false)
		return fmt.Errorf("set local description: %w", err)
	}
	if err := s.signaler.SendCallAnswer(s.remote, answer); err != nil {
		s.end(false)
		return fmt.Errorf("send call answer: %w", err)
	}

	s.logger.Infow("call answered", "call_id", s.id, "from", req.FromPeerID)
	return nil
}

// HandleAnswer applies the callee's answer on the caller side.
func (s *Session) HandleAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	switch {
	case s.state == domain.CallEnded:
		s.mu.Unlock()
		return domain.ErrSessionEnded
	case s.role != domain.RoleCaller:
		s.mu.Unlock()
		return fmt.Errorf("%w: answer received on callee side", domain.ErrNegotiationState)
	case s.state != domain.CallConnecting:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: answer received in state %s", domain.ErrNegotiationState, state)
	case s.remoteSet:
		s.mu.Unlock()
		return fmt.Errorf("%w: answer already applied", domain.ErrNegotiationState)
	}
	s.mu.Unlock()

	if err := s.transport.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	s.flushCandidates()
	return nil
}

// HandleRemoteCandidate applies a remote ICE candidate, buffering it in
// arrival order while the remote description is still missing.
func (s *Session) HandleRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if s.state == domain.CallEnded {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	if !s.remoteSet {
		s.pending = append(s.pending, candidate)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.transport.AddICECandidate(candidate)
}

// End hangs up locally: notifies the remote peer once and tears down the
// transport. Safe to call any number of times.
func (s *Session) End() {
	s.end(true)
}

// HandleRemoteHangup tears the session down without echoing a hangup back.
func (s *Session) HandleRemoteHangup() {
	s.end(false)
}

// flushCandidates marks the remote description as set and drains the buffer
// in the order candidates arrived.
func (s *Session) flushCandidates() {
	s.mu.Lock()
	s.remoteSet = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.transport.AddICECandidate(c); err != nil {
			s.logger.Warnw("failed to apply buffered candidate", "error", err)
		}
	}
}

func (s *Session) addLocalMedia() error {
	if s.source == nil {
		return nil
	}
	sender, err := s.transport.AddTrack(s.source.Track())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
	}
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
	return nil
}

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if err := s.transition(domain.CallConnected); err != nil {
			// connected fired after teardown; nothing left to do
			return
		}
		s.logger.Infow("call connected", "call_id", s.id, "remote", s.remote)
		s.startMedia()
		s.armQuality()

	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		if s.State() == domain.CallEnded {
			return
		}
		s.logger.Warnw("transport lost", "remote", s.remote, "state", state.String())
		s.end(true)

	case webrtc.PeerConnectionStateClosed:
		s.end(false)
	}
}

func (s *Session) startMedia() {
	if s.source == nil {
		return
	}
	go func() {
		err := s.source.Start(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorw("local media source failed", "error", err)
			s.End()
		}
	}()
}

func (s *Session) armQuality() {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if s.quality == nil || sender == nil {
		return
	}
	go s.quality.Watch(s.ctx, sender)
}

func (s *Session) transition(next domain.CallState) error {
	s.mu.Lock()
	if s.state == domain.CallEnded {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	if !s.state.CanTransition(next) {
		current := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrNegotiationState, current, next)
	}
	s.state = next
	s.mu.Unlock()

	s.states.Emit(next)
	return nil
}

func (s *Session) end(notify bool) {
	s.mu.Lock()
	if s.state == domain.CallEnded {
		s.mu.Unlock()
		return
	}
	s.state = domain.CallEnded
	s.mu.Unlock()

	s.cancel()

	if notify {
		if err := s.signaler.SendCallEnded(s.remote); err != nil {
			s.logger.Warnw("failed to send hangup", "to", s.remote, "error", err)
		}
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Debugw("transport close failed", "error", err)
	}
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Debugw("media source close failed", "error", err)
		}
	}

	s.logger.Infow("call ended", "call_id", s.id, "remote", s.remote)
	s.states.Emit(domain.CallEnded)
}
