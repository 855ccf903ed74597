package repositories

import (
	"voicebridge/internal/core/ports"
	"voicebridge/internal/infrastructure/repositories/memory"
	redisrepo "voicebridge/internal/infrastructure/repositories/redis"
	"voicebridge/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory. If Redis is enabled
// but unreachable, it falls back to memory repositories rather than failing
// startup.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateRoomRepository creates a room repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoomRepository(f.redisClient)
	}
	return memory.NewMemoryRoomRepository()
}

// CreatePresenceRepository creates a presence repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreatePresenceRepository() ports.PresenceRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisPresenceRepository(f.redisClient)
	}
	return memory.NewMemoryPresenceRepository()
}

// Close closes the Redis connection if used
func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}
