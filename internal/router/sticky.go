package router

import "github.com/nextlevelbuilder/goswarm/internal/store"

// stickyWindow is how many recent decisions the downgrade rule inspects.
const stickyWindow = 5

// stickyState is the router's per-conversation tier memory.
type stickyState struct {
	tier   store.Tier   // held tier, empty until first non-interrupt decision
	recent []store.Tier // final tiers of the last stickyWindow decisions
}

func (s *stickyState) push(t store.Tier) {
	s.recent = append(s.recent, t)
	if len(s.recent) > stickyWindow {
		s.recent = s.recent[len(s.recent)-stickyWindow:]
	}
}

func (s *stickyState) recentlyElevated() bool {
	for _, t := range s.recent {
		if t.Elevated() {
			return true
		}
	}
	return false
}

// tierRank orders tiers by cost. Downgrades move to a lower rank.
func tierRank(t store.Tier) int {
	switch t {
	case store.TierSimple:
		return 0
	case store.TierMedium:
		return 1
	case store.TierCoding:
		return 2
	case store.TierComplex:
		return 3
	case store.TierReasoning:
		return 4
	}
	return 1
}

// downgradeSignals counts how many of the three downgrade conditions hold.
// At least two must be true to leave an elevated sticky tier.
func downgradeSignals(f Features) int {
	n := 0
	noTech := f.TechnicalTerms < 0.1
	if f.WordCount < 20 && noTech {
		n++
	}
	if f.SimpleIndicators > 0.7 && noTech {
		n++
	}
	if len(f.SimpleMarkers) > 0 {
		n++
	}
	return n
}

// resolveSticky reconciles the candidate tier with the conversation's
// sticky state. It returns the final tier and whether the elevated tier
// was held against the candidate.
func resolveSticky(state *stickyState, candidate store.Tier, f Features) (store.Tier, bool) {
	if !state.recentlyElevated() {
		return candidate, false
	}
	if tierRank(candidate) >= tierRank(state.tier) {
		return candidate, false
	}
	if downgradeSignals(f) >= 2 {
		return candidate, false
	}
	return state.tier, true
}
