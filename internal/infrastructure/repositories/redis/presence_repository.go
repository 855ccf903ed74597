package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const presenceKey = "voicebridge:peers"

type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) ports.PresenceRepository {
	return &RedisPresenceRepository{client: client}
}

func (r *RedisPresenceRepository) Add(ctx context.Context, peer *domain.Peer) error {
	score := float64(peer.RegisteredAt.UnixNano())
	if peer.RegisteredAt.IsZero() {
		score = float64(time.Now().UnixNano())
	}
	return r.client.ZAdd(ctx, presenceKey, redis.Z{
		Score:  score,
		Member: string(peer.ID),
	}).Err()
}

func (r *RedisPresenceRepository) Remove(ctx context.Context, id domain.PeerID) error {
	removed, err := r.client.ZRem(ctx, presenceKey, string(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove peer from Redis: %w", err)
	}
	if removed == 0 {
		return domain.ErrPeerNotFound
	}
	return nil
}

func (r *RedisPresenceRepository) List(ctx context.Context) ([]domain.PeerID, error) {
	members, err := r.client.ZRange(ctx, presenceKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list peers from Redis: %w", err)
	}

	ids := make([]domain.PeerID, 0, len(members))
	for _, m := range members {
		ids = append(ids, domain.PeerID(m))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *RedisPresenceRepository) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, presenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count peers in Redis: %w", err)
	}
	return int(n), nil
}
