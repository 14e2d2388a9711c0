// Package presence mirrors the gateway's derived presence state into Redis
// so the REST layer can answer online/offline queries without holding a
// websocket connection. The mirror is an outbound copy only; the gateway's
// own presence truth lives in the connection registry.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey = "online_users"

	// An online entry refreshes on every transition; a stale gateway crash
	// ages out instead of pinning users online forever.
	onlineStatusTTL  = 5 * time.Minute
	offlineStatusTTL = 24 * time.Hour
)

// Repository is the presence mirror contract.
type Repository interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	OnlineUsers(ctx context.Context) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type redisRepository struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisRepository(client *redis.Client, logger *slog.Logger) Repository {
	return &redisRepository{
		client: client,
		logger: logger.With("component", "presence_repository"),
	}
}

func statusKey(userID string) string {
	return fmt.Sprintf("user:%s:status", userID)
}

func (r *redisRepository) SetOnline(ctx context.Context, userID string) error {
	pipe := r.client.Pipeline()

	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, statusKey(userID), map[string]any{
		"status":     "online",
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, statusKey(userID), onlineStatusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("failed to set user online", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (r *redisRepository) SetOffline(ctx context.Context, userID string) error {
	pipe := r.client.Pipeline()

	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, statusKey(userID), map[string]any{
		"status":    "offline",
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, statusKey(userID), offlineStatusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("failed to set user offline", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (r *redisRepository) OnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, onlineUsersKey).Result()
}

func (r *redisRepository) IsOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.SIsMember(ctx, onlineUsersKey, userID).Result()
}
