package router

import (
	"testing"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

func elevatedState(tier store.Tier) *stickyState {
	s := &stickyState{}
	s.push(tier)
	s.tier = tier
	return s
}

func TestResolveSticky_HoldsWithoutDowngradeSignals(t *testing.T) {
	state := elevatedState(store.TierComplex)
	// Short but technical follow-up: only one downgrade signal at most.
	f := Features{WordCount: 8, TechnicalTerms: 0.4}

	final, held := resolveSticky(state, store.TierMedium, f)
	if !held || final != store.TierComplex {
		t.Errorf("resolveSticky = (%q, %v), want (complex, held)", final, held)
	}
}

func TestResolveSticky_DowngradesWithTwoSignals(t *testing.T) {
	state := elevatedState(store.TierComplex)
	// Short, no technical terms, explicit simple marker: three signals.
	f := Features{WordCount: 5, TechnicalTerms: 0.0, SimpleMarkers: []string{"btw"}}

	final, held := resolveSticky(state, store.TierSimple, f)
	if held || final != store.TierSimple {
		t.Errorf("resolveSticky = (%q, %v), want (simple, not held)", final, held)
	}
}

func TestResolveSticky_UpgradesPassThrough(t *testing.T) {
	state := elevatedState(store.TierCoding)
	final, held := resolveSticky(state, store.TierReasoning, Features{})
	if held || final != store.TierReasoning {
		t.Errorf("resolveSticky = (%q, %v), want (reasoning, not held)", final, held)
	}
}

func TestResolveSticky_NoElevationNoHold(t *testing.T) {
	state := &stickyState{}
	state.push(store.TierSimple)
	state.tier = store.TierSimple

	final, held := resolveSticky(state, store.TierMedium, Features{})
	if held || final != store.TierMedium {
		t.Errorf("resolveSticky = (%q, %v), want (medium, not held)", final, held)
	}
}

func TestStickyState_WindowBounded(t *testing.T) {
	s := &stickyState{}
	for i := 0; i < stickyWindow+3; i++ {
		s.push(store.TierSimple)
	}
	if len(s.recent) != stickyWindow {
		t.Errorf("recent window = %d entries, want %d", len(s.recent), stickyWindow)
	}
	// Elevation ages out of the window.
	s = &stickyState{}
	s.push(store.TierComplex)
	for i := 0; i < stickyWindow; i++ {
		s.push(store.TierSimple)
	}
	if s.recentlyElevated() {
		t.Error("elevated tier should have aged out of the window")
	}
}

func TestDowngradeSignals(t *testing.T) {
	tests := []struct {
		name string
		f    Features
		want int
	}{
		{"none", Features{WordCount: 40, TechnicalTerms: 0.5}, 0},
		{"short only", Features{WordCount: 10}, 1},
		{"short and simple", Features{WordCount: 10, SimpleIndicators: 0.8}, 2},
		{"all three", Features{WordCount: 5, SimpleIndicators: 0.9, SimpleMarkers: []string{"btw"}}, 3},
		{"technical cancels", Features{WordCount: 5, SimpleIndicators: 0.9, TechnicalTerms: 0.2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := downgradeSignals(tt.f); got != tt.want {
				t.Errorf("downgradeSignals = %d, want %d", got, tt.want)
			}
		})
	}
}
