package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

const generationLockPrefix = "menu:generation:lock:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGenerationLock is a per-patient mutex shared by all service replicas.
// The TTL bounds how long a crashed run can block the patient.
type RedisGenerationLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses the URL and verifies the connection
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("Successfully connected to Redis at %s", opts.Addr)
	return client, nil
}

// NewRedisGenerationLock creates a lock with the given expiry
func NewRedisGenerationLock(client *redis.Client, ttl time.Duration) *RedisGenerationLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisGenerationLock{client: client, ttl: ttl}
}

// Acquire takes the patient's lock or returns domain.ErrGenerationLocked
func (l *RedisGenerationLock) Acquire(ctx context.Context, patientID uuid.UUID) (func(context.Context) error, error) {
	key := generationLockPrefix + patientID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrGenerationLocked
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release generation lock: %w", err)
		}
		return nil
	}
	return release, nil
}

var _ ports.GenerationLock = (*RedisGenerationLock)(nil)
