package router

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goswarm/internal/providers"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

const (
	// DefaultFeedbackLimit bounds the rolling classification record window.
	DefaultFeedbackLimit = 1000
	// DefaultCalibrationInterval gates periodic auto-calibration.
	DefaultCalibrationInterval = 24 * time.Hour
	// DefaultCalibrationMinRecords is the minimum number of new records
	// since the last calibration before another may run.
	DefaultCalibrationMinRecords = 50

	// statsFlushEvery is how many new records trigger a stats file write.
	statsFlushEvery = 50
)

// Config configures a Router.
type Config struct {
	// DataDir holds routing_patterns.json and routing_stats.json.
	DataDir string

	// Models maps each tier to the backend model it resolves to.
	Models map[store.Tier]string

	// AssistTimeout is the per-attempt deadline for layer 2 (default 500ms).
	AssistTimeout time.Duration

	// AssistRPS rate-limits remote assisted calls (default 10/s).
	AssistRPS float64

	CalibrationInterval   time.Duration
	CalibrationMinRecords int
	MaxPatterns           int
	FeedbackLimit         int
}

func (c *Config) applyDefaults() {
	if c.AssistTimeout <= 0 {
		c.AssistTimeout = DefaultAssistTimeout
	}
	if c.AssistRPS <= 0 {
		c.AssistRPS = 10
	}
	if c.CalibrationInterval <= 0 {
		c.CalibrationInterval = DefaultCalibrationInterval
	}
	if c.CalibrationMinRecords <= 0 {
		c.CalibrationMinRecords = DefaultCalibrationMinRecords
	}
	if c.MaxPatterns <= 0 {
		c.MaxPatterns = MaxPatterns
	}
	if c.FeedbackLimit <= 0 {
		c.FeedbackLimit = DefaultFeedbackLimit
	}
}

// Router is the two-layer tier classifier with sticky conversation state,
// feedback capture, and auto-calibration.
type Router struct {
	mu sync.Mutex

	cfg        Config
	patterns   []compiledPattern
	thresholds map[store.Tier]float64
	assist     *assistant
	sticky     map[string]*stickyState

	records             []store.ClassificationRecord
	totalCount          int
	newSinceCalibration int
	newSinceFlush       int
	lastCalibration     time.Time

	logger *slog.Logger
	tracer trace.Tracer
}

// New loads the pattern and stats files (seeding defaults when absent) and
// builds the router. onDevice may be nil; primary/secondary may be nil when
// no remote provider is configured.
func New(cfg Config, onDevice providers.OnDeviceModel, primary, secondary providers.ChatClient, logger *slog.Logger) (*Router, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	pf, err := loadPatternsFile(cfg.patternsPath())
	if err != nil {
		return nil, err
	}
	sf, err := loadStatsFile(cfg.statsPath())
	if err != nil {
		return nil, err
	}

	thresholds := make(map[store.Tier]float64, len(DefaultThresholds))
	for t, v := range DefaultThresholds {
		thresholds[t] = v
	}
	for t, v := range pf.Thresholds {
		thresholds[t] = v
	}

	r := &Router{
		cfg:             cfg,
		patterns:        compilePatterns(pf.Patterns),
		thresholds:      thresholds,
		assist:          newAssistant(onDevice, primary, secondary, cfg.AssistTimeout, cfg.AssistRPS),
		sticky:          make(map[string]*stickyState),
		records:         sf.Classifications,
		totalCount:      sf.TotalCount,
		lastCalibration: pf.LastCalibration,
		logger:          logger,
		tracer:          otel.Tracer("goswarm/router"),
	}
	return r, nil
}

func (c Config) patternsPath() string { return filepath.Join(c.DataDir, "routing_patterns.json") }
func (c Config) statsPath() string    { return filepath.Join(c.DataDir, "routing_stats.json") }

// Route classifies one message in the context of its conversation.
func (r *Router) Route(ctx context.Context, conversationID, content string) store.RoutingDecision {
	ctx, span := r.tracer.Start(ctx, "router.route")
	defer span.End()

	r.mu.Lock()
	client := classifyClient(r.patterns, content)
	threshold := r.thresholds[client.Tier]
	r.mu.Unlock()

	f := client.Features
	rec := store.ClassificationRecord{
		ContentPreview:   preview(content),
		ClientTier:       client.Tier,
		ClientConfidence: client.Confidence,
		FinalTier:        client.Tier,
		Layer:            store.LayerClient,
		ActionType:       string(f.Action),
		HasNegation:      f.HasNegation,
		NegationPhrases:  f.NegationPhrases,
		CodePresence:     f.CodePresence,
		SimpleIndicators: f.SimpleIndicators,
		TechnicalTerms:   f.TechnicalTerms,
		SocialScore:      f.SocialInteraction,
		Timestamp:        time.Now(),
	}

	// Cost interrupt: unambiguous simple messages always route simple and
	// never mutate sticky state.
	if client.Tier == store.TierSimple && client.Confidence >= 0.90 {
		dec := r.buildDecision(store.TierSimple, client.Confidence, store.LayerClient,
			"unambiguous simple message (interrupt)", EstimatedTokens(store.TierSimple), false, nil)
		span.SetAttributes(attribute.String("tier", string(dec.Tier)), attribute.String("layer", "client"))
		r.capture(rec)
		return dec
	}

	var (
		candidateTier store.Tier
		confidence    float64
		layer         store.RoutingLayer
		reasoning     string
		tokens        int
		needsTools    bool
		meta          map[string]any
	)

	if client.Confidence >= threshold {
		candidateTier = client.Tier
		confidence = client.Confidence
		layer = store.LayerClient
		tokens = EstimatedTokens(client.Tier)
		if client.Pattern != "" {
			reasoning = fmt.Sprintf("pattern match %q", client.Pattern)
		} else {
			reasoning = "feature heuristic"
		}
	} else {
		assist := r.assist.classify(ctx, content, f)
		candidateTier = assist.Tier
		confidence = assist.Confidence
		layer = assist.Layer
		reasoning = assist.Reasoning
		tokens = assist.EstimatedTokens
		needsTools = assist.NeedsTools
		rec.AssistTier = assist.Tier
		rec.AssistConfidence = assist.Confidence
		rec.Layer = assist.Layer
		if assist.Err != nil {
			meta = map[string]any{"assist_error": assist.Err.Error()}
		}
	}

	r.mu.Lock()
	state, ok := r.sticky[conversationID]
	if !ok {
		state = &stickyState{}
		r.sticky[conversationID] = state
	}
	final, held := resolveSticky(state, candidateTier, f)
	state.push(final)
	state.tier = final
	r.mu.Unlock()

	if held {
		reasoning = fmt.Sprintf("holding elevated tier %s (candidate %s lacked downgrade signals); %s",
			final, candidateTier, reasoning)
		tokens = EstimatedTokens(final)
	}

	rec.FinalTier = final
	r.capture(rec)

	span.SetAttributes(
		attribute.String("tier", string(final)),
		attribute.String("layer", string(layer)),
		attribute.Float64("confidence", confidence),
	)
	return r.buildDecision(final, confidence, layer, reasoning, tokens, needsTools, meta)
}

func (r *Router) buildDecision(tier store.Tier, confidence float64, layer store.RoutingLayer,
	reasoning string, tokens int, needsTools bool, meta map[string]any) store.RoutingDecision {
	r.mu.Lock()
	model := r.cfg.Models[tier]
	r.mu.Unlock()
	return store.RoutingDecision{
		Tier:            tier,
		Model:           model,
		Confidence:      confidence,
		Layer:           layer,
		Reasoning:       reasoning,
		EstimatedTokens: tokens,
		NeedsTools:      needsTools,
		Metadata:        meta,
	}
}

// StickyTier exposes the current sticky tier for a conversation.
func (r *Router) StickyTier(conversationID string) (store.Tier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sticky[conversationID]
	if !ok || state.tier == "" {
		return "", false
	}
	return state.tier, true
}

// Threshold returns the current confidence threshold for a tier.
func (r *Router) Threshold(tier store.Tier) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thresholds[tier]
}

// capture appends a feedback record to the rolling window and flushes the
// stats file periodically.
func (r *Router) capture(rec store.ClassificationRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	if len(r.records) > r.cfg.FeedbackLimit {
		r.records = r.records[len(r.records)-r.cfg.FeedbackLimit:]
	}
	r.totalCount++
	r.newSinceCalibration++
	r.newSinceFlush++
	flush := r.newSinceFlush >= statsFlushEvery
	if flush {
		r.newSinceFlush = 0
	}
	r.mu.Unlock()

	if flush {
		if err := r.flushStats(); err != nil {
			r.logger.Warn("router: stats flush failed", "error", err)
		}
	}
}

// flushStats persists the rolling window to routing_stats.json.
func (r *Router) flushStats() error {
	r.mu.Lock()
	sf := statsFile{
		Classifications: append([]store.ClassificationRecord(nil), r.records...),
		LastCalibration: r.lastCalibration,
		TotalCount:      r.totalCount,
	}
	path := r.cfg.statsPath()
	r.mu.Unlock()
	return writeStatsFile(path, sf)
}

// Close flushes pending state to disk.
func (r *Router) Close() error {
	return r.flushStats()
}

func preview(content string) string {
	const max = 200
	if len(content) > max {
		return content[:max]
	}
	return content
}
