package router

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goswarm/internal/providers"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// fakeChat returns a canned verdict or an error.
type fakeChat struct {
	name  string
	reply string
	err   error
	calls int
}

func (f *fakeChat) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResponse{Content: f.reply}, nil
}

func (f *fakeChat) Name() string { return f.name }

func newTestRouter(t *testing.T, primary, secondary providers.ChatClient) *Router {
	t.Helper()
	r, err := New(Config{
		DataDir: t.TempDir(),
		Models: map[store.Tier]string{
			store.TierSimple:    "mini",
			store.TierMedium:    "base",
			store.TierCoding:    "coder",
			store.TierComplex:   "large",
			store.TierReasoning: "reasoner",
		},
	}, nil, primary, secondary, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRoute_CostInterruptSkipsSticky(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	dec := r.Route(context.Background(), "conv1", "thanks, bye!")
	if dec.Tier != store.TierSimple {
		t.Fatalf("tier = %q, want simple", dec.Tier)
	}
	if dec.Confidence < 0.90 {
		t.Errorf("confidence = %.2f, want >= 0.90", dec.Confidence)
	}
	if dec.Layer != store.LayerClient {
		t.Errorf("layer = %q, want client", dec.Layer)
	}
	if dec.Model != "mini" {
		t.Errorf("model = %q, want mini", dec.Model)
	}
	if _, ok := r.StickyTier("conv1"); ok {
		t.Error("cost interrupt must not create sticky state")
	}
}

func TestRoute_PatternAboveThreshold(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	dec := r.Route(context.Background(), "conv1", "explain the tradeoff here in more depth")
	if dec.Tier != store.TierMedium {
		t.Fatalf("tier = %q, want medium", dec.Tier)
	}
	if dec.Layer != store.LayerClient {
		t.Errorf("layer = %q, want client (0.7 meets the medium threshold)", dec.Layer)
	}
	if dec.EstimatedTokens != TokensMedium {
		t.Errorf("tokens = %d, want %d", dec.EstimatedTokens, TokensMedium)
	}
}

func TestRoute_AssistConsultedBelowThreshold(t *testing.T) {
	primary := &fakeChat{
		name:  "primary",
		reply: `{"tier":"complex","confidence":0.9,"reasoning":"multi-system design","estimated_tokens":1000}`,
	}
	r := newTestRouter(t, primary, nil)

	dec := r.Route(context.Background(), "conv1",
		"design a system architecture that can survive a full region outage")
	if primary.calls == 0 {
		t.Fatal("assist layer was not consulted")
	}
	if dec.Tier != store.TierComplex {
		t.Errorf("tier = %q, want complex", dec.Tier)
	}
	if dec.Layer != store.LayerLLM {
		t.Errorf("layer = %q, want llm", dec.Layer)
	}
	if dec.Model != "large" {
		t.Errorf("model = %q, want large", dec.Model)
	}
}

func TestRoute_AssistFallbackChain(t *testing.T) {
	primary := &fakeChat{name: "primary", err: errors.New("unreachable")}
	secondary := &fakeChat{
		name:  "secondary",
		reply: `{"tier":"complex","confidence":0.85,"reasoning":"fallback served","estimated_tokens":1000}`,
	}
	r := newTestRouter(t, primary, secondary)

	dec := r.Route(context.Background(), "conv1",
		"design a system architecture that can survive a full region outage")
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls primary=%d secondary=%d, want 1 and 1", primary.calls, secondary.calls)
	}
	if dec.Tier != store.TierComplex {
		t.Errorf("tier = %q, want complex from the secondary", dec.Tier)
	}
}

func TestRoute_AssistDefaultOnTotalFailure(t *testing.T) {
	primary := &fakeChat{name: "primary", err: errors.New("down")}
	secondary := &fakeChat{name: "secondary", err: errors.New("also down")}
	r := newTestRouter(t, primary, secondary)

	dec := r.Route(context.Background(), "conv1",
		"design a system architecture that can survive a full region outage")
	if dec.Tier != store.TierMedium {
		t.Errorf("tier = %q, want medium default", dec.Tier)
	}
	if dec.Confidence != 0.5 {
		t.Errorf("confidence = %.2f, want 0.5", dec.Confidence)
	}
	if dec.Metadata == nil || dec.Metadata["assist_error"] == nil {
		t.Error("expected assist_error metadata")
	}
}

func TestRoute_StickyHoldsElevatedTier(t *testing.T) {
	primary := &fakeChat{
		name:  "primary",
		reply: `{"tier":"complex","confidence":0.9,"reasoning":"design work","estimated_tokens":1000}`,
	}
	r := newTestRouter(t, primary, nil)
	ctx := context.Background()

	first := r.Route(ctx, "conv1", "design a system architecture that can survive a full region outage")
	if first.Tier != store.TierComplex {
		t.Fatalf("setup: first tier = %q, want complex", first.Tier)
	}
	if tier, ok := r.StickyTier("conv1"); !ok || tier != store.TierComplex {
		t.Fatalf("sticky tier = (%q, %v), want complex", tier, ok)
	}

	// Short follow-up mentioning a technical term: not enough downgrade
	// signals, so the elevated tier holds. The assist verdict here says
	// medium; sticky overrides it.
	primary.reply = `{"tier":"medium","confidence":0.8,"reasoning":"short follow-up","estimated_tokens":200}`
	second := r.Route(ctx, "conv1", "and the cache layer?")
	if second.Tier != store.TierComplex {
		t.Errorf("follow-up tier = %q, want complex held", second.Tier)
	}
	if second.EstimatedTokens != TokensComplex {
		t.Errorf("held decision tokens = %d, want %d", second.EstimatedTokens, TokensComplex)
	}

	// A new conversation is unaffected.
	if _, ok := r.StickyTier("conv2"); ok {
		t.Error("unrelated conversation has sticky state")
	}
}

func TestRoute_StickyDowngradeWithSignals(t *testing.T) {
	primary := &fakeChat{
		name:  "primary",
		reply: `{"tier":"complex","confidence":0.9,"reasoning":"design work","estimated_tokens":1000}`,
	}
	r := newTestRouter(t, primary, nil)
	ctx := context.Background()

	r.Route(ctx, "conv1", "design a system architecture that can survive a full region outage")

	// "btw" marker + short + non-technical: enough signals to leave the
	// elevated tier. The message avoids the cost interrupt by scoring
	// below 0.90 at layer 1.
	primary.reply = `{"tier":"medium","confidence":0.6,"reasoning":"casual","estimated_tokens":200}`
	dec := r.Route(ctx, "conv1", "btw totally unrelated, remind me tomorrow")
	if dec.Tier == store.TierComplex {
		t.Errorf("tier = %q, expected downgrade away from complex", dec.Tier)
	}
}

func TestThresholdDefaults(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	if got := r.Threshold(store.TierCoding); got != 0.90 {
		t.Errorf("coding threshold = %.2f, want 0.90", got)
	}
	if got := r.Threshold(store.TierSimple); got != 0.0 {
		t.Errorf("simple threshold = %.2f, want 0.0", got)
	}
}

func TestCloseFlushesStats(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{DataDir: dir, Models: map[store.Tier]string{}}, nil, nil, nil, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Route(context.Background(), "conv1", "hello!")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "routing_stats.json")); err != nil {
		t.Errorf("stats file not written: %v", err)
	}
}
