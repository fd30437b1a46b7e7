package router

import (
	"testing"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

func seedPatterns(t *testing.T) []compiledPattern {
	t.Helper()
	return compilePatterns(DefaultPatterns())
}

func TestClassifyClient_PatternWins(t *testing.T) {
	patterns := seedPatterns(t)
	tests := []struct {
		name    string
		content string
		tier    store.Tier
		minConf float64
	}{
		{"greeting", "hello there", store.TierSimple, 0.95},
		{"code fence", "review this:\n```\nx := 1\n```", store.TierCoding, 0.85},
		{"write code", "write a function to parse JSON", store.TierCoding, 0.85},
		{"architecture", "design a system for multi-region failover", store.TierComplex, 0.75},
		{"proof", "prove this invariant holds by induction", store.TierReasoning, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyClient(patterns, tt.content)
			if got.Tier != tt.tier {
				t.Errorf("tier = %q, want %q", got.Tier, tt.tier)
			}
			if got.Confidence < tt.minConf {
				t.Errorf("confidence = %.2f, want >= %.2f", got.Confidence, tt.minConf)
			}
			if got.Pattern == "" {
				t.Error("expected a winning pattern")
			}
		})
	}
}

func TestClassifyClient_TopConfidenceWins(t *testing.T) {
	patterns := seedPatterns(t)
	// Matches both the greeting pattern (0.95 simple) and the explain
	// pattern (0.7 medium); the higher-confidence pattern must win.
	got := classifyClient(patterns, "hello, explain this please")
	if got.Tier != store.TierSimple {
		t.Errorf("tier = %q, want simple (higher-confidence pattern)", got.Tier)
	}
}

func TestClassifyClient_FeatureFallback(t *testing.T) {
	got := classifyClient(nil, "the quarterly report needs restructuring before Friday")
	if got.Pattern != "" {
		t.Errorf("expected no pattern, got %q", got.Pattern)
	}
	if got.Tier == "" || got.Confidence <= 0 {
		t.Errorf("feature fallback gave no verdict: %+v", got)
	}
}

func TestClassifyFromFeatures(t *testing.T) {
	tests := []struct {
		name string
		f    Features
		want store.Tier
	}{
		{"code", Features{CodePresence: 0.8}, store.TierCoding},
		{"simple", Features{SimpleIndicators: 0.9, TechnicalTerms: 0.1}, store.TierSimple},
		{"complex", Features{TechnicalTerms: 0.8, WordCount: 60}, store.TierComplex},
		{"medium technical", Features{TechnicalTerms: 0.4}, store.TierMedium},
		{"social", Features{SocialInteraction: 0.8}, store.TierSimple},
		{"default", Features{}, store.TierMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, conf := classifyFromFeatures(tt.f)
			if tier != tt.want {
				t.Errorf("tier = %q, want %q", tier, tt.want)
			}
			if conf <= 0 || conf > 1 {
				t.Errorf("confidence %.2f out of range", conf)
			}
		})
	}
}
