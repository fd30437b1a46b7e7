package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// newPatternConfidence is the starting confidence of auto-generated patterns.
const newPatternConfidence = 0.7

// minMismatchBucket is how many records a (client,assist) mismatch pair needs
// before it is analysed.
const minMismatchBucket = 5

// minTierMismatches is how many mismatches a tier needs before new patterns
// are generated for it.
const minTierMismatches = 3

// minThresholdSamples is how many records a tier needs before its threshold
// is re-tuned.
const minThresholdSamples = 20

// thresholdGrids are the candidate confidence thresholds tried per tier.
var thresholdGrids = map[store.Tier][]float64{
	store.TierSimple:    {0.0},
	store.TierMedium:    {0.3, 0.4, 0.5, 0.6, 0.7},
	store.TierCoding:    {0.7, 0.75, 0.8, 0.85, 0.9},
	store.TierComplex:   {0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95},
	store.TierReasoning: {0.85, 0.9, 0.95, 0.97},
}

// CalibrationReport summarises one calibration run.
type CalibrationReport struct {
	Ran             bool                   `json:"ran"`
	Reason          string                 `json:"reason,omitempty"`
	SampleSize      int                    `json:"sample_size"`
	Accuracy        float64                `json:"accuracy"`
	Mismatches      int                    `json:"mismatches"`
	NewPatterns     []string               `json:"new_patterns,omitempty"`
	DroppedPatterns int                    `json:"dropped_patterns"`
	Thresholds      map[store.Tier]float64 `json:"thresholds,omitempty"`
	RanAt           time.Time              `json:"ran_at"`
}

// MaybeCalibrate runs a calibration when the interval has elapsed and enough
// new records have accumulated. Otherwise it returns a no-op report with the
// gate reason.
func (r *Router) MaybeCalibrate() (CalibrationReport, error) {
	r.mu.Lock()
	sinceLast := time.Since(r.lastCalibration)
	newRecords := r.newSinceCalibration
	r.mu.Unlock()

	if sinceLast < r.cfg.CalibrationInterval {
		return CalibrationReport{Reason: fmt.Sprintf("last calibration %s ago, interval %s",
			sinceLast.Round(time.Minute), r.cfg.CalibrationInterval)}, nil
	}
	if newRecords < r.cfg.CalibrationMinRecords {
		return CalibrationReport{Reason: fmt.Sprintf("only %d new records, need %d",
			newRecords, r.cfg.CalibrationMinRecords)}, nil
	}
	return r.Calibrate()
}

// Calibrate replays the feedback window against the pattern set:
// it measures accuracy, mines mismatch clusters for new patterns, updates
// per-pattern replay stats, ranks by effectiveness, and re-tunes per-tier
// thresholds. The updated document is snapshotted and written atomically.
func (r *Router) Calibrate() (CalibrationReport, error) {
	r.mu.Lock()
	records := append([]store.ClassificationRecord(nil), r.records...)
	patterns := make([]store.RoutingPattern, len(r.patterns))
	for i, p := range r.patterns {
		patterns[i] = p.RoutingPattern
	}
	thresholds := make(map[store.Tier]float64, len(r.thresholds))
	for t, v := range r.thresholds {
		thresholds[t] = v
	}
	totalCount := r.totalCount
	r.mu.Unlock()

	report := CalibrationReport{Ran: true, SampleSize: len(records), RanAt: time.Now()}
	if len(records) == 0 {
		report.Ran = false
		report.Reason = "no classification records"
		return report, nil
	}

	// Step 1: layer-1 accuracy against final tiers.
	correct := 0
	var mismatches []store.ClassificationRecord
	for _, rec := range records {
		if rec.ClientTier == rec.FinalTier {
			correct++
		} else {
			mismatches = append(mismatches, rec)
		}
	}
	report.Accuracy = float64(correct) / float64(len(records))
	report.Mismatches = len(mismatches)

	// Steps 2–3: bucket mismatches by (client,final) pair and mine the
	// dominant action plus frequent n-grams into new patterns.
	generated := minePatterns(mismatches, patterns)
	patterns = append(patterns, generated...)
	for _, p := range generated {
		report.NewPatterns = append(report.NewPatterns, p.Pattern)
	}

	// Step 4: replay the window to refresh per-pattern stats.
	patterns = replayStats(patterns, records)

	// Step 5: rank by effectiveness, keep the best MaxPatterns. Manual seed
	// patterns that never matched yet are kept over unproven generated ones.
	before := len(patterns)
	patterns = rankPatterns(patterns, r.cfg.MaxPatterns)
	report.DroppedPatterns = before - len(patterns)

	// Step 6: threshold sweep per tier.
	changed := tuneThresholds(records, thresholds)
	if len(changed) > 0 {
		report.Thresholds = changed
	}

	// Step 7: snapshot and write.
	pf := patternsFile{
		Version:              1,
		Patterns:             patterns,
		Thresholds:           thresholds,
		LastCalibration:      report.RanAt,
		TotalClassifications: totalCount,
	}
	if err := writePatternsFile(r.cfg.patternsPath(), pf); err != nil {
		return report, fmt.Errorf("write calibrated patterns: %w", err)
	}

	r.mu.Lock()
	r.patterns = compilePatterns(patterns)
	r.thresholds = thresholds
	r.lastCalibration = report.RanAt
	r.newSinceCalibration = 0
	r.mu.Unlock()

	r.logger.Info("routing calibration complete",
		"samples", report.SampleSize,
		"accuracy", fmt.Sprintf("%.3f", report.Accuracy),
		"new_patterns", len(report.NewPatterns),
		"dropped", report.DroppedPatterns,
		"thresholds_changed", len(report.Thresholds))

	if err := r.flushStats(); err != nil {
		r.logger.Warn("router: stats flush after calibration failed", "error", err)
	}
	return report, nil
}

// mismatchBucket groups the records where layer 1 said one tier and the
// final decision was another.
type mismatchBucket struct {
	client  store.Tier
	final   store.Tier
	records []store.ClassificationRecord
}

// minePatterns turns large mismatch buckets into candidate patterns targeting
// the final (correct) tier. Duplicate regexes are skipped.
func minePatterns(mismatches []store.ClassificationRecord, existing []store.RoutingPattern) []store.RoutingPattern {
	buckets := map[string]*mismatchBucket{}
	perTier := map[store.Tier]int{}
	for _, rec := range mismatches {
		key := string(rec.ClientTier) + "->" + string(rec.FinalTier)
		b, ok := buckets[key]
		if !ok {
			b = &mismatchBucket{client: rec.ClientTier, final: rec.FinalTier}
			buckets[key] = b
		}
		b.records = append(b.records, rec)
		perTier[rec.FinalTier]++
	}

	seen := map[string]bool{}
	for _, p := range existing {
		seen[p.Pattern] = true
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []store.RoutingPattern
	for _, k := range keys {
		b := buckets[k]
		if len(b.records) < minMismatchBucket || perTier[b.final] < minTierMismatches {
			continue
		}
		action := dominantAction(b.records)
		for _, gram := range topNGrams(b.records, 3) {
			pattern := `(?i)\b` + regexp.QuoteMeta(gram) + `\b`
			if seen[pattern] {
				continue
			}
			seen[pattern] = true
			out = append(out, store.RoutingPattern{
				Pattern:    pattern,
				Tier:       b.final,
				Confidence: newPatternConfidence,
				Source:     store.PatternAutoCalibration,
				ActionType: action,
				Examples:   examplesFrom(b.records, 3),
			})
		}
	}
	return out
}

// dominantAction picks the most common action type in a bucket.
func dominantAction(records []store.ClassificationRecord) string {
	counts := map[string]int{}
	for _, rec := range records {
		counts[rec.ActionType]++
	}
	best, bestN := "", 0
	for a, n := range counts {
		if n > bestN {
			best, bestN = a, n
		}
	}
	if best == string(ActionGeneral) {
		return ""
	}
	return best
}

// topNGrams returns the most frequent word bigrams and trigrams across the
// bucket's content previews, highest count first.
func topNGrams(records []store.ClassificationRecord, limit int) []string {
	counts := map[string]int{}
	for _, rec := range records {
		words := tokenize(rec.ContentPreview)
		for n := 2; n <= 3; n++ {
			for i := 0; i+n <= len(words); i++ {
				gram := strings.Join(words[i:i+n], " ")
				counts[gram]++
			}
		}
	}
	type entry struct {
		gram  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for g, c := range counts {
		if c < 2 {
			continue // a one-off phrase is noise, not a pattern
		}
		entries = append(entries, entry{g, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].gram < entries[j].gram
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.gram
	}
	return out
}

var wordRe = regexp.MustCompile(`[a-z0-9']+`)

func tokenize(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

func examplesFrom(records []store.ClassificationRecord, limit int) []string {
	out := make([]string, 0, limit)
	for _, rec := range records {
		out = append(out, rec.ContentPreview)
		if len(out) == limit {
			break
		}
	}
	return out
}

// replayStats recomputes each pattern's match/correct/used counters against
// the feedback window. times_used counts the records where the pattern was
// the top-confidence match.
func replayStats(patterns []store.RoutingPattern, records []store.ClassificationRecord) []store.RoutingPattern {
	compiled := compilePatterns(patterns)
	out := make([]store.RoutingPattern, 0, len(compiled))

	stats := make([]store.RoutingPattern, len(compiled))
	for i, p := range compiled {
		stats[i] = p.RoutingPattern
		stats[i].TimesMatched = 0
		stats[i].TimesCorrect = 0
		stats[i].TimesUsed = 0
	}

	for _, rec := range records {
		winner, winnerConf := -1, 0.0
		for i, p := range compiled {
			if !p.re.MatchString(rec.ContentPreview) {
				continue
			}
			stats[i].TimesMatched++
			if p.Tier == rec.FinalTier {
				stats[i].TimesCorrect++
			}
			if p.Confidence > winnerConf {
				winner, winnerConf = i, p.Confidence
			}
		}
		if winner >= 0 {
			stats[winner].TimesUsed++
		}
	}

	out = append(out, stats...)
	return out
}

// rankPatterns keeps the top max patterns by effectiveness. Patterns that
// never matched keep their slot ahead of proven-bad ones only when manual.
func rankPatterns(patterns []store.RoutingPattern, max int) []store.RoutingPattern {
	if len(patterns) <= max {
		return patterns
	}
	sorted := append([]store.RoutingPattern(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ei, ej := rankScore(sorted[i]), rankScore(sorted[j])
		if ei != ej {
			return ei > ej
		}
		// Manual seeds outrank generated patterns at equal score.
		return sorted[i].Source == store.PatternManual && sorted[j].Source != store.PatternManual
	})
	return sorted[:max]
}

// rankScore is Effectiveness with unmatched manual patterns held at a
// floor so a fresh window cannot evict the seed set.
func rankScore(p store.RoutingPattern) float64 {
	if p.TimesMatched == 0 && p.Source == store.PatternManual {
		return 0.35
	}
	return Effectiveness(p)
}

// tuneThresholds sweeps each tier's candidate grid and adopts the threshold
// maximising 0.8*accuracy + 0.2*coverage. Returns the tiers that changed.
func tuneThresholds(records []store.ClassificationRecord, thresholds map[store.Tier]float64) map[store.Tier]float64 {
	byTier := map[store.Tier][]store.ClassificationRecord{}
	for _, rec := range records {
		byTier[rec.ClientTier] = append(byTier[rec.ClientTier], rec)
	}

	changed := map[store.Tier]float64{}
	for tier, grid := range thresholdGrids {
		sample := byTier[tier]
		if len(sample) < minThresholdSamples {
			continue
		}
		best, bestScore := thresholds[tier], -1.0
		for _, cand := range grid {
			score := thresholdScore(sample, cand)
			if score > bestScore {
				best, bestScore = cand, score
			}
		}
		if best != thresholds[tier] {
			thresholds[tier] = best
			changed[tier] = best
		}
	}
	return changed
}

// thresholdScore evaluates a candidate threshold over a tier's records:
// records at or above the threshold would have been accepted at layer 1,
// and are correct when the client tier matched the final tier.
func thresholdScore(sample []store.ClassificationRecord, threshold float64) float64 {
	accepted, correct := 0, 0
	for _, rec := range sample {
		if rec.ClientConfidence < threshold {
			continue
		}
		accepted++
		if rec.ClientTier == rec.FinalTier {
			correct++
		}
	}
	if accepted == 0 {
		return 0
	}
	accuracy := float64(correct) / float64(accepted)
	coverage := float64(accepted) / 100
	if coverage > 1 {
		coverage = 1
	}
	return 0.8*accuracy + 0.2*coverage
}
