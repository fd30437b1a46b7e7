package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// MaxPatterns caps the pattern set after calibration ranking.
const MaxPatterns = 100

// Effectiveness weights. Success rate dominates; usage volume keeps
// rarely-exercised patterns from outranking proven ones.
const (
	effSuccessWeight = 0.7
	effUsageWeight   = 0.3
	effUsageFull     = 50 // times_used at which the usage term saturates
)

// Effectiveness ranks a pattern by success rate and usage volume.
func Effectiveness(p store.RoutingPattern) float64 {
	usage := float64(p.TimesUsed) / effUsageFull
	if usage > 1 {
		usage = 1
	}
	return effSuccessWeight*p.SuccessRate() + effUsageWeight*usage
}

// compiledPattern pairs a routing pattern with its compiled regex.
type compiledPattern struct {
	store.RoutingPattern
	re *regexp.Regexp
}

func compilePatterns(patterns []store.RoutingPattern) []compiledPattern {
	out := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue // bad patterns are skipped, not fatal
		}
		out = append(out, compiledPattern{RoutingPattern: p, re: re})
	}
	return out
}

// DefaultPatterns is the manual seed set.
func DefaultPatterns() []store.RoutingPattern {
	seed := []struct {
		pattern    string
		tier       store.Tier
		confidence float64
		action     string
	}{
		{`(?i)\b(hi|hello|hey|thanks|thank you|good (morning|evening|night)|bye)\b`, store.TierSimple, 0.95, ""},
		{`(?i)\b(what time|what day|what date|how are you)\b`, store.TierSimple, 0.95, ""},
		{`(?i)^(yes|no|ok|okay|sure|cool|got it)[.!]?$`, store.TierSimple, 0.9, ""},
		{`(?i)\b(explain|what is|what's|describe|tell me about)\b`, store.TierMedium, 0.7, "explain"},
		{`(?i)\b(compare|difference between|pros and cons)\b`, store.TierMedium, 0.7, "analyze"},
		{"```", store.TierCoding, 0.85, "write"},
		{`(?i)\b(write|implement|refactor|debug|fix) .*(code|function|class|script|bug|test)\b`, store.TierCoding, 0.85, "write"},
		{`(?i)\b(stack trace|segfault|panic:|exception|compile error)\b`, store.TierCoding, 0.8, "fix"},
		{`(?i)\b(architect(ure)?|design a system|scalab|multi-step|migration plan)\b`, store.TierComplex, 0.75, "analyze"},
		{`(?i)\b(prove|proof|theorem|derive|formal(ly)?|induction)\b`, store.TierReasoning, 0.8, "analyze"},
	}
	out := make([]store.RoutingPattern, len(seed))
	for i, s := range seed {
		out[i] = store.RoutingPattern{
			Pattern:    s.pattern,
			Tier:       s.tier,
			Confidence: s.confidence,
			Source:     store.PatternManual,
			ActionType: s.action,
		}
	}
	return out
}

// patternsFile is the on-disk shape of routing_patterns.json.
type patternsFile struct {
	Version              int                      `json:"version"`
	Patterns             []store.RoutingPattern   `json:"patterns"`
	Thresholds           map[store.Tier]float64   `json:"thresholds,omitempty"`
	LastCalibration      time.Time                `json:"last_calibration"`
	TotalClassifications int                      `json:"total_classifications"`
	PatternStats         map[string]patternStats  `json:"pattern_stats,omitempty"`
}

type patternStats struct {
	TimesUsed    int `json:"times_used"`
	TimesMatched int `json:"times_matched"`
	TimesCorrect int `json:"times_correct"`
}

// statsFile is the on-disk shape of routing_stats.json.
type statsFile struct {
	Classifications []store.ClassificationRecord `json:"classifications"`
	LastCalibration time.Time                    `json:"last_calibration"`
	TotalCount      int                          `json:"total_count"`
}

// loadPatternsFile reads the patterns document; a missing file yields the
// default seed set.
func loadPatternsFile(path string) (patternsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return patternsFile{Version: 1, Patterns: DefaultPatterns()}, nil
		}
		return patternsFile{}, fmt.Errorf("read patterns: %w", err)
	}
	var pf patternsFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return patternsFile{}, fmt.Errorf("parse patterns: %w", err)
	}
	if len(pf.Patterns) == 0 {
		pf.Patterns = DefaultPatterns()
	}
	return pf, nil
}

// writePatternsFile snapshots the previous file to .bak, then atomically
// replaces it with the new document.
func writePatternsFile(path string, pf patternsFile) error {
	if _, err := os.Stat(path); err == nil {
		prev, err := os.ReadFile(path)
		if err == nil {
			_ = os.WriteFile(path+".bak", prev, 0644)
		}
	}
	return writeJSONAtomic(path, pf)
}

func loadStatsFile(path string) (statsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return statsFile{}, nil
		}
		return statsFile{}, fmt.Errorf("read stats: %w", err)
	}
	var sf statsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return statsFile{}, fmt.Errorf("parse stats: %w", err)
	}
	return sf, nil
}

func writeStatsFile(path string, sf statsFile) error {
	return writeJSONAtomic(path, sf)
}

// writeJSONAtomic writes via a temp file and rename so a crash never
// leaves a torn document.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
