package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// EffectsProvider is an in-memory stand-in for the progression service. Each
// granted effect token is consumed at most once: the first lookup removes it.
type EffectsProvider struct {
	mu      sync.Mutex
	pending map[string]domain.Effect
}

func NewEffectsProvider() *EffectsProvider {
	return &EffectsProvider{pending: make(map[string]domain.Effect)}
}

// Grant arms an effect for the player's next scored answer.
func (p *EffectsProvider) Grant(playerID string, effect domain.Effect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[playerID] = effect
}

// ConsumeActiveEffect returns and removes the player's pending effect, if any.
func (p *EffectsProvider) ConsumeActiveEffect(_ context.Context, playerID string) (domain.Effect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	effect, ok := p.pending[playerID]
	if !ok {
		return domain.EffectNone, nil
	}
	delete(p.pending, playerID)
	return effect, nil
}
