package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceRecorder marks active sessions in Redis so ops tooling and other
// instances can see which join codes are live. Markers are best-effort: a
// failed write never blocks the registry.
// Keys: session:code:{joinCode} -> session id
type PresenceRecorder struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceRecorder(client *redis.Client, ttl time.Duration) *PresenceRecorder {
	return &PresenceRecorder{client: client, ttl: ttl}
}

func (p *PresenceRecorder) SessionCreated(sessionID, joinCode string) {
	_ = p.client.Set(context.Background(), p.key(joinCode), sessionID, p.ttl).Err()
}

func (p *PresenceRecorder) SessionEvicted(sessionID, joinCode string) {
	_ = p.client.Del(context.Background(), p.key(joinCode)).Err()
}

func (p *PresenceRecorder) key(joinCode string) string {
	return "session:code:" + joinCode
}
