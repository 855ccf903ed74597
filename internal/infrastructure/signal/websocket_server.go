package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"
	"voicebridge/internal/infrastructure/middleware"
	"voicebridge/internal/infrastructure/monitoring"
	"voicebridge/pkg/config"
	"voicebridge/pkg/tracing"
	"voicebridge/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketServer owns the persistent signaling connections: registration,
// the room operation dispatch, and handing negotiation messages to the relay.
type WebSocketServer struct {
	cfg      *config.Config
	upgrader websocket.Upgrader

	registry *PeerRegistry
	relay    *MessageRelay
	rooms    ports.RoomService
	metrics  *monitoring.Collector
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(
	cfg *config.Config,
	registry *PeerRegistry,
	relay *MessageRelay,
	rooms ports.RoomService,
	metrics *monitoring.Collector,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	s := &WebSocketServer{
		cfg:      cfg,
		registry: registry,
		relay:    relay,
		rooms:    rooms,
		metrics:  metrics,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// Room membership notifications fan out to whatever members the service
	// names, independent of which connection triggered the change.
	rooms.Events().Subscribe(s.handleRoomEvent)

	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request, assigns the peer its server-generated
// id and serves the connection until it drops.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	peerID := domain.PeerID(utils.GeneratePeerID())
	conn := newConn(peerID, ws, connOptions{
		pingInterval: s.cfg.Signal.PingInterval,
		pongTimeout:  s.cfg.Signal.PongTimeout,
		writeTimeout: s.cfg.Signal.WriteTimeout,
		readLimit:    s.cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		limiter:      middleware.NewMessageLimiter(s.cfg),
		logger:       s.logger,
	})

	if err := s.registry.Register(r.Context(), conn); err != nil {
		s.logger.Errorw("failed to register peer", "peer_id", peerID, "error", err)
		conn.Close()
		return
	}

	go conn.writePump()

	s.sendEvent(conn, domain.EventPeerID, domain.PeerIDPayload{ID: peerID})
	s.broadcastUsers(r.Context())
	s.metrics.SetPeersConnected(s.registry.Count())
	s.logger.Infow("peer connected", "peer_id", peerID, "remote_addr", r.RemoteAddr)

	conn.readPump(func(env domain.Envelope) {
		start := time.Now()
		s.dispatch(context.Background(), conn, env)
		s.metrics.ObserveMessageHandle(time.Since(start).Seconds())
	})

	s.disconnect(conn)
}

// disconnect runs the full teardown for a dropped connection: registry
// removal, implicit room leave and presence broadcast.
func (s *WebSocketServer) disconnect(conn *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.registry.Unregister(ctx, conn)

	if err := s.rooms.LeaveRoom(ctx, conn.ID()); err != nil {
		s.logger.Warnw("failed to leave room on disconnect", "peer_id", conn.ID(), "error", err)
	}

	s.broadcastUsers(ctx)
	s.metrics.SetPeersConnected(s.registry.Count())
	s.updateRoomGauge(ctx)
	s.logger.Infow("peer disconnected", "peer_id", conn.ID())
}

func (s *WebSocketServer) dispatch(ctx context.Context, conn *Conn, env domain.Envelope) {
	ctx, span := tracing.TraceSignalMessage(ctx, string(env.Type), string(conn.ID()))
	defer span.End()

	switch env.Type {
	case domain.EventCreateRoom:
		s.handleCreateRoom(ctx, conn, env)

	case domain.EventJoinRoom:
		s.handleJoinRoom(ctx, conn, env)

	case domain.EventLeaveRoom:
		s.handleLeaveRoom(ctx, conn)

	case domain.EventCallRequest, domain.EventCallAnswer, domain.EventICECandidate,
		domain.EventCallDeclined, domain.EventCallEnded, domain.EventUserBusy:
		if err := s.relay.Forward(conn.ID(), env); err != nil {
			reason := "delivery failed"
			if errors.Is(err, domain.ErrPeerOffline) {
				reason = "user offline"
			}
			s.logger.Infow("relay failed", "peer_id", conn.ID(), "type", env.Type, "error", err)
			s.sendEvent(conn, domain.EventCallFailed, domain.CallFailedPayload{Reason: reason})
		}

	default:
		s.logger.Warnw("unknown message type", "peer_id", conn.ID(), "type", env.Type)
	}
}

func (s *WebSocketServer) handleCreateRoom(ctx context.Context, conn *Conn, env domain.Envelope) {
	var p domain.CreateRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendEvent(conn, domain.EventRoomError, domain.RoomErrorPayload{Error: "invalid create-room payload"})
		return
	}

	room, err := s.rooms.CreateRoom(ctx, conn.ID(), p)
	if err != nil {
		s.logger.Infow("create room rejected", "peer_id", conn.ID(), "error", err)
		s.sendEvent(conn, domain.EventRoomError, domain.RoomErrorPayload{Error: err.Error()})
		return
	}

	s.metrics.RoomCreated()
	s.updateRoomGauge(ctx)
	s.sendEvent(conn, domain.EventRoomCreated, domain.RoomCreatedPayload{Room: room})
}

func (s *WebSocketServer) handleJoinRoom(ctx context.Context, conn *Conn, env domain.Envelope) {
	var p domain.JoinRoomPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendEvent(conn, domain.EventRoomError, domain.RoomErrorPayload{Error: "invalid join-room payload"})
		return
	}

	room, participant, err := s.rooms.JoinRoom(ctx, conn.ID(), p)
	if err != nil {
		s.logger.Infow("join room rejected", "peer_id", conn.ID(), "room_id", p.RoomID, "error", err)
		s.sendEvent(conn, domain.EventRoomError, domain.RoomErrorPayload{Error: err.Error()})
		return
	}

	s.sendEvent(conn, domain.EventRoomJoined, domain.RoomJoinedPayload{Room: room, Participant: participant})
}

func (s *WebSocketServer) handleLeaveRoom(ctx context.Context, conn *Conn) {
	if err := s.rooms.LeaveRoom(ctx, conn.ID()); err != nil {
		s.sendEvent(conn, domain.EventRoomError, domain.RoomErrorPayload{Error: err.Error()})
		return
	}

	s.updateRoomGauge(ctx)
	s.sendEvent(conn, domain.EventRoomLeft, nil)
}

// handleRoomEvent translates a membership notification into the wire event
// and delivers it to every named recipient still connected.
func (s *WebSocketServer) handleRoomEvent(ev domain.RoomEvent) {
	var (
		env domain.Envelope
		err error
	)

	switch ev.Type {
	case domain.RoomEventParticipantJoined:
		env, err = domain.NewEnvelope(domain.EventParticipantJoined, domain.ParticipantJoinedPayload{Participant: ev.Participant})
	case domain.RoomEventParticipantLeft:
		env, err = domain.NewEnvelope(domain.EventParticipantLeft, domain.ParticipantLeftPayload{PeerID: ev.PeerID})
	case domain.RoomEventUpdated:
		env, err = domain.NewEnvelope(domain.EventRoomUpdated, domain.RoomUpdatedPayload{Room: ev.Room})
	case domain.RoomEventDeleted:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.updateRoomGauge(ctx)
		cancel()
		return
	default:
		return
	}
	if err != nil {
		s.logger.Errorw("failed to encode room event", "type", ev.Type, "room_id", ev.RoomID, "error", err)
		return
	}

	for _, id := range ev.Recipients {
		conn, ok := s.registry.Lookup(id)
		if !ok {
			continue
		}
		if err := conn.Send(env); err != nil {
			s.logger.Warnw("failed to deliver room event", "peer_id", id, "type", env.Type, "error", err)
		}
	}
}

// broadcastUsers pushes the current online peer list to every connection.
func (s *WebSocketServer) broadcastUsers(ctx context.Context) {
	peers, err := s.registry.Peers(ctx)
	if err != nil {
		s.logger.Warnw("failed to list online peers", "error", err)
		return
	}

	env, err := domain.NewEnvelope(domain.EventUsersUpdated, domain.UsersUpdatedPayload{Peers: peers})
	if err != nil {
		s.logger.Errorw("failed to encode users-updated", "error", err)
		return
	}

	for _, conn := range s.registry.Conns() {
		if err := conn.Send(env); err != nil {
			s.logger.Debugw("failed to deliver users-updated", "peer_id", conn.ID(), "error", err)
		}
	}
}

func (s *WebSocketServer) updateRoomGauge(ctx context.Context) {
	count, err := s.rooms.RoomCount(ctx)
	if err != nil {
		s.logger.Warnw("failed to count rooms", "error", err)
		return
	}
	s.metrics.SetRoomsActive(count)
}

func (s *WebSocketServer) sendEvent(conn *Conn, typ domain.EventType, payload interface{}) {
	env, err := domain.NewEnvelope(typ, payload)
	if err != nil {
		s.logger.Errorw("failed to encode event", "type", typ, "error", err)
		return
	}
	if err := conn.Send(env); err != nil {
		s.logger.Debugw("failed to send event", "peer_id", conn.ID(), "type", typ, "error", err)
	}
}
