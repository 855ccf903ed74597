package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"
	"voicebridge/pkg/events"
	"voicebridge/pkg/utils"
	"voicebridge/pkg/validation"

	"go.uber.org/zap"
)

// RoomServiceConfig carries the room policy knobs.
type RoomServiceConfig struct {
	DefaultMaxParticipants int
	MaxParticipantsLimit   int
}

type roomService struct {
	rooms  ports.RoomRepository
	links  *JoinLinkSigner
	cfg    RoomServiceConfig
	events *events.Emitter[domain.RoomEvent]
	logger *zap.SugaredLogger

	// mu serializes every membership mutation so join/leave/disconnect
	// never interleave on the same room.
	mu sync.Mutex
}

func NewRoomService(
	rooms ports.RoomRepository,
	links *JoinLinkSigner,
	cfg RoomServiceConfig,
	logger *zap.SugaredLogger,
) ports.RoomService {
	if cfg.DefaultMaxParticipants < 2 {
		cfg.DefaultMaxParticipants = 4
	}
	return &roomService{
		rooms:  rooms,
		links:  links,
		cfg:    cfg,
		events: events.NewEmitter[domain.RoomEvent](),
		logger: logger,
	}
}

func (s *roomService) Events() *events.Emitter[domain.RoomEvent] {
	return s.events
}

func (s *roomService) CreateRoom(ctx context.Context, hostID domain.PeerID, req domain.CreateRoomPayload) (*domain.Room, error) {
	if err := validation.ValidateRoomName(req.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidateDisplayName(req.ParticipantName); err != nil {
		return nil, err
	}
	if req.SourceLanguage != "" {
		if err := validation.ValidateLanguage(req.SourceLanguage); err != nil {
			return nil, err
		}
	}
	if req.TargetLanguage != "" {
		if err := validation.ValidateLanguage(req.TargetLanguage); err != nil {
			return nil, err
		}
	}

	maxParticipants := req.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = s.cfg.DefaultMaxParticipants
	}
	if err := validation.ValidateMaxParticipants(maxParticipants, s.cfg.MaxParticipantsLimit); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// One room per peer: creating while still a member of another room is
	// an implicit leave.
	if err := s.leaveLocked(ctx, hostID); err != nil {
		return nil, err
	}

	now := time.Now()
	room := &domain.Room{
		ID:     domain.RoomID(utils.GenerateRoomID()),
		Name:   strings.TrimSpace(req.Name),
		HostID: hostID,
		Participants: []*domain.Participant{{
			ID:          hostID,
			DisplayName: strings.TrimSpace(req.ParticipantName),
			IsHost:      true,
			Language:    req.SourceLanguage,
			JoinedAt:    now,
		}},
		LanguageSettings: domain.LanguageSettings{
			SourceLanguage: req.SourceLanguage,
			TargetLanguage: req.TargetLanguage,
		},
		MaxParticipants: maxParticipants,
		IsPublic:        req.IsPublic,
		CreatedAt:       now,
	}

	link, err := s.links.Sign(room.ID)
	if err != nil {
		return nil, err
	}
	room.JoinLink = link

	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Infow("room created",
		"room_id", room.ID,
		"host_id", hostID,
		"max_participants", room.MaxParticipants,
		"public", room.IsPublic,
	)
	return room.Clone(), nil
}

func (s *roomService) JoinRoom(ctx context.Context, peerID domain.PeerID, req domain.JoinRoomPayload) (*domain.Room, *domain.Participant, error) {
	if err := validation.ValidateDisplayName(req.ParticipantName); err != nil {
		return nil, nil, err
	}

	roomID := req.RoomID
	if roomID == "" {
		if req.JoinLink == "" {
			return nil, nil, domain.ErrRoomNotFound
		}
		id, err := s.links.Verify(req.JoinLink)
		if err != nil {
			return nil, nil, err
		}
		roomID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A peer occupies at most one room; joining a second room is rejected
	// rather than silently allowed.
	if _, err := s.rooms.GetByPeer(ctx, peerID); err == nil {
		return nil, nil, domain.ErrAlreadyInRoom
	} else if !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, nil, err
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room.Full() {
		return nil, nil, domain.ErrRoomFull
	}

	language := req.Language
	if language == "" {
		language = room.LanguageSettings.TargetLanguage
	}

	participant := &domain.Participant{
		ID:          peerID,
		DisplayName: strings.TrimSpace(req.ParticipantName),
		IsHost:      false,
		Language:    language,
		JoinedAt:    time.Now(),
	}
	room.Participants = append(room.Participants, participant)

	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, nil, err
	}

	s.logger.Infow("participant joined",
		"room_id", room.ID,
		"peer_id", peerID,
		"participants", len(room.Participants),
	)

	others := make([]domain.PeerID, 0, len(room.Participants)-1)
	for _, p := range room.Participants {
		if p.ID != peerID {
			others = append(others, p.ID)
		}
	}
	pc := *participant
	s.events.Emit(domain.RoomEvent{
		Type:        domain.RoomEventParticipantJoined,
		RoomID:      room.ID,
		Room:        room.Clone(),
		Participant: &pc,
		PeerID:      peerID,
		Recipients:  others,
	})

	return room.Clone(), participant, nil
}

func (s *roomService) LeaveRoom(ctx context.Context, peerID domain.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveLocked(ctx, peerID)
}

// leaveLocked removes peerID from its room, replaying host failover and
// empty-room deletion. Must be called with s.mu held. No-op when the peer
// occupies no room.
func (s *roomService) leaveLocked(ctx context.Context, peerID domain.PeerID) error {
	room, err := s.rooms.GetByPeer(ctx, peerID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	removed, hostChanged := room.RemoveParticipant(peerID)
	if removed == nil {
		return nil
	}

	remaining := room.PeerIDs()

	// participant-left reaches the remaining members before any deletion.
	s.events.Emit(domain.RoomEvent{
		Type:       domain.RoomEventParticipantLeft,
		RoomID:     room.ID,
		PeerID:     peerID,
		Room:       room.Clone(),
		Recipients: remaining,
	})

	if len(room.Participants) == 0 {
		if err := s.rooms.Delete(ctx, room.ID); err != nil {
			return err
		}
		s.logger.Infow("room deleted", "room_id", room.ID)
		s.events.Emit(domain.RoomEvent{
			Type:   domain.RoomEventDeleted,
			RoomID: room.ID,
		})
		return nil
	}

	if err := s.rooms.Update(ctx, room); err != nil {
		return err
	}

	if hostChanged {
		s.logger.Infow("host transferred",
			"room_id", room.ID,
			"new_host", room.HostID,
		)
		s.events.Emit(domain.RoomEvent{
			Type:       domain.RoomEventUpdated,
			RoomID:     room.ID,
			Room:       room.Clone(),
			Recipients: remaining,
		})
	}
	return nil
}

func (s *roomService) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		if !room.IsPublic {
			continue
		}
		summaries = append(summaries, room.Summary())
	}
	return summaries, nil
}

func (s *roomService) RoomCount(ctx context.Context) (int, error) {
	return s.rooms.Count(ctx)
}
