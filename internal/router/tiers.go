// Package router decides which backend tier serves a user message: a
// deterministic pattern layer first, an assisted model layer when the
// first is unsure, with sticky per-conversation state and periodic
// auto-calibration of patterns and thresholds.
package router

import "github.com/nextlevelbuilder/goswarm/internal/store"

// Token estimate buckets, one per tier.
const (
	TokensSimple    = 50
	TokensMedium    = 200
	TokensCoding    = 800
	TokensComplex   = 1000
	TokensReasoning = 2000
)

// DefaultThresholds are the per-tier confidence floors below which the
// assisted layer is consulted.
var DefaultThresholds = map[store.Tier]float64{
	store.TierSimple:    0.0,
	store.TierMedium:    0.5,
	store.TierComplex:   0.85,
	store.TierCoding:    0.90,
	store.TierReasoning: 0.97,
}

// EstimatedTokens returns the token bucket for a tier.
func EstimatedTokens(t store.Tier) int {
	switch t {
	case store.TierSimple:
		return TokensSimple
	case store.TierMedium:
		return TokensMedium
	case store.TierCoding:
		return TokensCoding
	case store.TierComplex:
		return TokensComplex
	case store.TierReasoning:
		return TokensReasoning
	}
	return TokensMedium
}

// QuantizeTokens snaps an arbitrary estimate to the nearest bucket.
func QuantizeTokens(n int) int {
	buckets := []int{TokensSimple, TokensMedium, TokensCoding, TokensComplex, TokensReasoning}
	best := buckets[0]
	for _, b := range buckets[1:] {
		if abs(n-b) < abs(n-best) {
			best = b
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
