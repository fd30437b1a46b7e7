package router

import (
	"fmt"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// ClientResult is layer 1's verdict plus the full feature bundle.
type ClientResult struct {
	Tier       store.Tier
	Confidence float64
	Pattern    string // winning regex, empty if the verdict came from features
	Features   Features
}

// classifyClient runs the deterministic layer: feature extraction plus an
// ordered scan of the routing patterns. The top-scoring match wins; with no
// match the verdict falls back to feature heuristics.
func classifyClient(patterns []compiledPattern, content string) ClientResult {
	f := Extract(content)
	res := ClientResult{Features: f}

	for _, p := range patterns {
		if !p.re.MatchString(content) {
			continue
		}
		if p.Confidence > res.Confidence {
			res.Tier = p.Tier
			res.Confidence = p.Confidence
			res.Pattern = p.Pattern
		}
	}
	if res.Tier != "" {
		return res
	}

	res.Tier, res.Confidence = classifyFromFeatures(f)
	return res
}

// classifyFromFeatures is the patternless fallback heuristic.
func classifyFromFeatures(f Features) (store.Tier, float64) {
	switch {
	case f.CodePresence >= 0.5:
		return store.TierCoding, 0.6 + 0.2*f.CodePresence
	case f.SimpleIndicators >= 0.7 && f.TechnicalTerms < 0.3:
		return store.TierSimple, 0.6 + 0.3*f.SimpleIndicators
	case f.TechnicalTerms >= 0.7 && f.WordCount > 40:
		return store.TierComplex, 0.55
	case f.TechnicalTerms >= 0.3:
		return store.TierMedium, 0.55
	case f.SocialInteraction >= 0.5:
		return store.TierSimple, 0.7
	}
	return store.TierMedium, 0.4
}

// contextSummary renders the compact hint block the assisted layer receives
// alongside the content.
func contextSummary(f Features) string {
	neg := "none"
	if f.HasNegation {
		neg = fmt.Sprintf("%v", f.NegationPhrases)
	}
	urgency := "none"
	if len(f.UrgencyMarkers) > 0 {
		urgency = fmt.Sprintf("%v", f.UrgencyMarkers)
	}
	code := "no"
	if f.CodePresence >= 0.5 {
		code = "yes"
	}
	return fmt.Sprintf("action=%s negations=%s code_blocks=%s question=%s urgency=%s",
		f.Action, neg, code, f.Question, urgency)
}
