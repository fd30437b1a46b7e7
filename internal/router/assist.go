package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goswarm/internal/providers"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// DefaultAssistTimeout is the hard per-attempt deadline for assisted
// classification calls.
const DefaultAssistTimeout = 500 * time.Millisecond

// assistVerdict is the structured output the assisted layer must produce.
type assistVerdict struct {
	Tier            string  `json:"tier"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	EstimatedTokens int     `json:"estimated_tokens"`
	NeedsTools      bool    `json:"needs_tools"`
}

// AssistResult is the normalised layer-2 verdict.
type AssistResult struct {
	Tier            store.Tier
	Confidence      float64
	Reasoning       string
	EstimatedTokens int
	NeedsTools      bool
	Layer           store.RoutingLayer
	Err             error // set when every attempt failed and the default applied
}

// assistant owns the fallback chain: on-device model, then primary remote,
// then secondary remote. Remote calls pass through a rate limiter so a chat
// flood cannot stampede the provider.
type assistant struct {
	onDevice  providers.OnDeviceModel // nil when no local binding exists
	primary   providers.ChatClient
	secondary providers.ChatClient
	timeout   time.Duration
	limiter   *rate.Limiter
}

func newAssistant(onDevice providers.OnDeviceModel, primary, secondary providers.ChatClient, timeout time.Duration, rps float64) *assistant {
	if timeout <= 0 {
		timeout = DefaultAssistTimeout
	}
	if rps <= 0 {
		rps = 10
	}
	return &assistant{
		onDevice:  onDevice,
		primary:   primary,
		secondary: secondary,
		timeout:   timeout,
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

const assistSystemPrompt = `You are a routing classifier. Reply with only a JSON object:
{"tier":"simple|medium|complex|coding|reasoning","confidence":0.0,"reasoning":"…","estimated_tokens":200,"needs_tools":false}`

// classify runs the fallback chain. The chain is bounded at three attempts;
// when all fail the result is the medium-tier default with Err set.
func (a *assistant) classify(ctx context.Context, content string, f Features) AssistResult {
	prompt := fmt.Sprintf("Message:\n%s\n\nContext: %s", content, contextSummary(f))

	var lastErr error
	if a.onDevice != nil {
		if ok, _ := a.onDevice.Availability(); ok {
			res, err := a.classifyOnDevice(ctx, prompt, f)
			if err == nil {
				return res
			}
			lastErr = err
		}
	}
	for _, client := range []providers.ChatClient{a.primary, a.secondary} {
		if client == nil {
			continue
		}
		res, err := a.classifyRemote(ctx, client, prompt, f)
		if err == nil {
			return res
		}
		lastErr = err
	}

	return AssistResult{
		Tier:            store.TierMedium,
		Confidence:      0.5,
		Reasoning:       "defaulted on error",
		EstimatedTokens: TokensMedium,
		Layer:           store.LayerLLM,
		Err:             lastErr,
	}
}

func (a *assistant) classifyOnDevice(ctx context.Context, prompt string, f Features) (AssistResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.onDevice.Respond(callCtx, assistSystemPrompt+"\n\n"+prompt)
	if err != nil {
		return AssistResult{}, fmt.Errorf("on-device classify: %w", err)
	}
	return parseVerdict(text, store.LayerLocal, f)
}

func (a *assistant) classifyRemote(ctx context.Context, client providers.ChatClient, prompt string, f Features) (AssistResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return AssistResult{}, fmt.Errorf("rate limit: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	resp, err := client.Chat(callCtx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: assistSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   200,
		Temperature: 0.1,
	})
	if err != nil {
		return AssistResult{}, fmt.Errorf("%s classify: %w", client.Name(), err)
	}
	return parseVerdict(resp.Content, store.LayerLLM, f)
}

// parseVerdict decodes the model's JSON verdict, quantises the token
// estimate, and applies the context-consistency rules.
func parseVerdict(text string, layer store.RoutingLayer, f Features) (AssistResult, error) {
	jsonStr := extractJSON(text)
	var v assistVerdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return AssistResult{}, fmt.Errorf("parse verdict: %w", err)
	}
	tier := store.Tier(strings.ToLower(strings.TrimSpace(v.Tier)))
	if !tier.Valid() {
		return AssistResult{}, fmt.Errorf("parse verdict: unknown tier %q", v.Tier)
	}
	res := AssistResult{
		Tier:            tier,
		Confidence:      clamp01(v.Confidence),
		Reasoning:       v.Reasoning,
		EstimatedTokens: QuantizeTokens(v.EstimatedTokens),
		NeedsTools:      v.NeedsTools,
		Layer:           layer,
	}
	return applyConsistencyRules(res, f), nil
}

// applyConsistencyRules reconciles the assisted verdict with the
// deterministic features:
//   - action=explain but tier=coding downgrades to medium
//   - action=write with code signals upgrades medium to coding
//   - negations cool off very high confidence
func applyConsistencyRules(res AssistResult, f Features) AssistResult {
	const bump = 0.1
	switch {
	case f.Action == ActionExplain && res.Tier == store.TierCoding:
		res.Tier = store.TierMedium
		res.Confidence = min(res.Confidence+bump, 0.95)
		res.EstimatedTokens = TokensMedium
		res.Reasoning += " [adjusted: explain intent, downgraded coding→medium]"
	case f.Action == ActionWrite && res.Tier == store.TierMedium && f.CodePresence >= 0.3:
		res.Tier = store.TierCoding
		res.Confidence = min(res.Confidence+bump, 0.95)
		res.EstimatedTokens = TokensCoding
		res.Reasoning += " [adjusted: write intent with code signals, upgraded medium→coding]"
	}
	if f.HasNegation && res.Confidence > 0.9 {
		res.Confidence *= 0.95
	}
	return res
}

// extractJSON pulls the first {...} object out of a model reply that may
// wrap it in prose or a code fence.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
