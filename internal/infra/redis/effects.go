package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// EffectsProvider reads power-up tokens the progression service armed in
// Redis. GETDEL makes consumption atomic: a token alters at most one answer
// even when a player double-submits across connections.
// Keys: effect:{playerID} -> effect name, with a TTL owned by the granter.
type EffectsProvider struct {
	client *redis.Client
}

func NewEffectsProvider(client *redis.Client) *EffectsProvider {
	return &EffectsProvider{client: client}
}

func (p *EffectsProvider) ConsumeActiveEffect(ctx context.Context, playerID string) (domain.Effect, error) {
	raw, err := p.client.GetDel(ctx, p.key(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.EffectNone, nil
		}
		return domain.EffectNone, fmt.Errorf("consume effect: %w", err)
	}
	switch effect := domain.Effect(raw); effect {
	case domain.EffectDoublePoints, domain.EffectStreakSaver:
		return effect, nil
	default:
		return domain.EffectNone, nil
	}
}

// Grant arms an effect for a player; used by tests and seed tooling.
func (p *EffectsProvider) Grant(ctx context.Context, playerID string, effect domain.Effect, ttl time.Duration) error {
	return p.client.Set(ctx, p.key(playerID), string(effect), ttl).Err()
}

func (p *EffectsProvider) key(playerID string) string {
	return "effect:" + playerID
}
