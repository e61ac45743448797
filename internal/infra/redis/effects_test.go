package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-session-service/internal/domain"
)

func TestEffectsConsumeIsAtomic(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	effects := NewEffectsProvider(newClient(mr))
	ctx := context.Background()

	if err := effects.Grant(ctx, "p1", domain.EffectDoublePoints, time.Minute); err != nil {
		t.Fatalf("grant: %v", err)
	}

	got, err := effects.ConsumeActiveEffect(ctx, "p1")
	if err != nil || got != domain.EffectDoublePoints {
		t.Fatalf("first consume: got %q, %v", got, err)
	}

	// GETDEL removed the key; a second consume finds nothing.
	again, err := effects.ConsumeActiveEffect(ctx, "p1")
	if err != nil || again != domain.EffectNone {
		t.Fatalf("second consume must be empty: got %q, %v", again, err)
	}
	if mr.Exists("effect:p1") {
		t.Fatalf("effect key must be deleted on consume")
	}
}

func TestEffectsUnknownValueIgnored(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	mr.Set("effect:p1", "TRIPLE_POINTS")

	effects := NewEffectsProvider(newClient(mr))
	got, err := effects.ConsumeActiveEffect(context.Background(), "p1")
	if err != nil || got != domain.EffectNone {
		t.Fatalf("unrecognized token must map to no effect: got %q, %v", got, err)
	}
}

func TestEffectsExpireWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	effects := NewEffectsProvider(newClient(mr))
	ctx := context.Background()

	if err := effects.Grant(ctx, "p1", domain.EffectStreakSaver, time.Minute); err != nil {
		t.Fatalf("grant: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := effects.ConsumeActiveEffect(ctx, "p1")
	if err != nil || got != domain.EffectNone {
		t.Fatalf("expired token must be gone: got %q, %v", got, err)
	}
}
