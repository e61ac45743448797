package game

import "quiz-session-service/internal/domain"

// Scoring arithmetic is integer-only. Ratios are carried in permille (1/1000)
// and every division truncates, so two independent runs over the same inputs
// emit bit-identical totals on any platform.
const permille = 1000

// DefaultPoints is used when a question carries no configured point value.
const DefaultPoints = 100

// ScoringPolicy maps one answer's inputs to points awarded and the streak delta.
// It is pure: no I/O, no clock, no randomness.
type ScoringPolicy struct {
	// StreakBonusPermille is the multiplier increment per streak level,
	// e.g. 100 means +0.1x per consecutive correct answer.
	StreakBonusPermille int
	// StreakCap bounds the streak levels counted toward the multiplier.
	StreakCap int
}

// Outcome is the result of scoring a single answer.
type Outcome struct {
	Correct bool
	Awarded int
	// Streak is the player's streak after this answer is applied.
	Streak int
	Effect domain.Effect
}

// Score computes the outcome for one answer.
//
//   - base = question points when correct, else 0
//   - time bonus = base * 0.5 * (limit-elapsed)/limit, truncated, correct only
//   - multiplier = 1 + min(streak, cap) * bonus-per-level, applied to base+bonus
//   - DOUBLE_POINTS doubles the final total
//   - STREAK_SAVER preserves the streak on an incorrect answer
//
// streak is the player's streak entering the question. elapsed is clamped to
// [0, limit].
func (p ScoringPolicy) Score(correct bool, elapsedMs, timeLimitMs int64, streak int, basePoints int, effect domain.Effect) Outcome {
	if basePoints <= 0 {
		basePoints = DefaultPoints
	}

	if !correct {
		out := Outcome{Correct: false, Awarded: 0, Streak: 0}
		if effect == domain.EffectStreakSaver {
			out.Streak = streak
			out.Effect = domain.EffectStreakSaver
		}
		return out
	}

	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if timeLimitMs > 0 && elapsedMs > timeLimitMs {
		elapsedMs = timeLimitMs
	}

	base := int64(basePoints)
	var bonus int64
	if timeLimitMs > 0 {
		// base * 0.5 * (limit-elapsed)/limit with truncating division.
		bonus = base * 500 * (timeLimitMs - elapsedMs) / timeLimitMs / permille
	}

	level := streak
	if level > p.StreakCap {
		level = p.StreakCap
	}
	multiplier := int64(permille + level*p.StreakBonusPermille)

	total := (base + bonus) * multiplier / permille

	out := Outcome{Correct: true, Streak: streak + 1}
	if effect == domain.EffectDoublePoints {
		total *= 2
		out.Effect = domain.EffectDoublePoints
	}
	out.Awarded = int(total)
	return out
}
