package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const roomPrefix = "voicebridge:room:"
const roomIndexKey = "voicebridge:rooms"
const peerRoomPrefix = "voicebridge:peer-room:"

type RedisRoomRepository struct {
	client *redis.Client
}

func NewRedisRoomRepository(client *redis.Client) ports.RoomRepository {
	return &RedisRoomRepository{client: client}
}

func roomKey(id domain.RoomID) string {
	return roomPrefix + string(id)
}

func peerRoomKey(id domain.PeerID) string {
	return peerRoomPrefix + string(id)
}

func (r *RedisRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	ok, err := r.client.SetNX(ctx, roomKey(room.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set room in Redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("room already exists: %s", room.ID)
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, roomIndexKey, string(room.ID))
	for _, p := range room.Participants {
		pipe.Set(ctx, peerRoomKey(p.ID), string(room.ID), 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	data, err := r.client.Get(ctx, roomKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	var room domain.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

func (r *RedisRoomRepository) GetByPeer(ctx context.Context, peerID domain.PeerID) (*domain.Room, error) {
	roomID, err := r.client.Get(ctx, peerRoomKey(peerID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve peer room from Redis: %w", err)
	}
	return r.GetByID(ctx, domain.RoomID(roomID))
}

func (r *RedisRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	old, err := r.GetByID(ctx, room.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, p := range old.Participants {
		pipe.Del(ctx, peerRoomKey(p.ID))
	}
	pipe.Set(ctx, roomKey(room.ID), data, 0)
	for _, p := range room.Participants {
		pipe.Set(ctx, peerRoomKey(p.ID), string(room.ID), 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRoomRepository) Delete(ctx context.Context, id domain.RoomID) error {
	room, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, p := range room.Participants {
		pipe.Del(ctx, peerRoomKey(p.ID))
	}
	pipe.Del(ctx, roomKey(id))
	pipe.SRem(ctx, roomIndexKey, string(id))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRoomRepository) ListActive(ctx context.Context) ([]*domain.Room, error) {
	ids, err := r.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms from Redis: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(ids))
	for _, id := range ids {
		room, err := r.GetByID(ctx, domain.RoomID(id))
		if err == domain.ErrRoomNotFound {
			// Index can lag behind deletion; self-heal.
			r.client.SRem(ctx, roomIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r *RedisRoomRepository) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, roomIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rooms in Redis: %w", err)
	}
	return int(n), nil
}
