package memory

import (
	"context"
	"testing"
	"time"

	"voicebridge/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoom(id domain.RoomID, peers ...domain.PeerID) *domain.Room {
	room := &domain.Room{
		ID:              id,
		Name:            "test",
		MaxParticipants: 4,
		CreatedAt:       time.Now(),
	}
	for i, p := range peers {
		room.Participants = append(room.Participants, &domain.Participant{
			ID:       p,
			IsHost:   i == 0,
			JoinedAt: time.Now(),
		})
		if i == 0 {
			room.HostID = p
		}
	}
	return room
}

func TestMemoryRoomRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRoom("room_a", "p1")))
	assert.Error(t, repo.Create(ctx, testRoom("room_a", "p1")), "duplicate id rejected")

	got, err := repo.GetByID(ctx, "room_a")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room_a"), got.ID)

	_, err = repo.GetByID(ctx, "room_missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMemoryRoomRepository_GetByPeer(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRoom("room_a", "p1", "p2")))

	got, err := repo.GetByPeer(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room_a"), got.ID)

	_, err = repo.GetByPeer(ctx, "stranger")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMemoryRoomRepository_UpdateReindexes(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRoom("room_a", "p1", "p2")))

	// p2 left, p3 joined.
	require.NoError(t, repo.Update(ctx, testRoom("room_a", "p1", "p3")))

	_, err := repo.GetByPeer(ctx, "p2")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	got, err := repo.GetByPeer(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room_a"), got.ID)

	assert.ErrorIs(t, repo.Update(ctx, testRoom("room_b", "x")), domain.ErrRoomNotFound)
}

func TestMemoryRoomRepository_Delete(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRoom("room_a", "p1")))
	require.NoError(t, repo.Delete(ctx, "room_a"))

	_, err := repo.GetByID(ctx, "room_a")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = repo.GetByPeer(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "room_a"), domain.ErrRoomNotFound)
}

func TestMemoryRoomRepository_ReturnsClones(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRoom("room_a", "p1")))

	got, err := repo.GetByID(ctx, "room_a")
	require.NoError(t, err)
	got.Name = "mutated"
	got.Participants[0].DisplayName = "mutated"

	fresh, err := repo.GetByID(ctx, "room_a")
	require.NoError(t, err)
	assert.Equal(t, "test", fresh.Name)
	assert.Empty(t, fresh.Participants[0].DisplayName)
}

func TestMemoryRoomRepository_ListAndCount(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRoom("room_a", "p1")))
	require.NoError(t, repo.Create(ctx, testRoom("room_b", "p2")))

	rooms, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
