package store

import "time"

// Tier is the cost/latency class assigned to a message. It controls which
// backend model serves the request.
type Tier string

const (
	TierSimple    Tier = "simple"
	TierMedium    Tier = "medium"
	TierComplex   Tier = "complex"
	TierCoding    Tier = "coding"
	TierReasoning Tier = "reasoning"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierSimple, TierMedium, TierComplex, TierCoding, TierReasoning:
		return true
	}
	return false
}

// Elevated reports whether t is one of the expensive tiers that sticky
// routing preserves across a conversation.
func (t Tier) Elevated() bool {
	return t == TierComplex || t == TierReasoning
}

// RoutingLayer identifies which classifier layer produced a decision.
type RoutingLayer string

const (
	LayerClient RoutingLayer = "client" // deterministic layer 1
	LayerLocal  RoutingLayer = "local"  // on-device model
	LayerLLM    RoutingLayer = "llm"    // remote model
)

// RoutingDecision is the router's verdict for one message.
type RoutingDecision struct {
	Tier            Tier           `json:"tier"`
	Model           string         `json:"model"`
	Confidence      float64        `json:"confidence"`
	Layer           RoutingLayer   `json:"layer"`
	Reasoning       string         `json:"reasoning"`
	EstimatedTokens int            `json:"estimated_tokens"` // one of 50, 200, 800, 1000, 2000
	NeedsTools      bool           `json:"needs_tools"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// PatternSource records how a routing pattern came to exist.
type PatternSource string

const (
	PatternManual          PatternSource = "manual"
	PatternAutoCalibration PatternSource = "auto_calibration"
)

// RoutingPattern is one regex rule of the deterministic classifier.
type RoutingPattern struct {
	Pattern      string        `json:"pattern"`
	Tier         Tier          `json:"tier"`
	Confidence   float64       `json:"confidence"`
	TimesUsed    int           `json:"times_used"`
	TimesMatched int           `json:"times_matched"`
	TimesCorrect int           `json:"times_correct"`
	Examples     []string      `json:"examples,omitempty"`
	Source       PatternSource `json:"source"`
	ActionType   string        `json:"action_type,omitempty"`
}

// SuccessRate is the fraction of matches that agreed with the final tier.
func (p RoutingPattern) SuccessRate() float64 {
	if p.TimesMatched == 0 {
		return 0
	}
	return float64(p.TimesCorrect) / float64(p.TimesMatched)
}

// ClassificationRecord is one feedback row captured for every routed message.
type ClassificationRecord struct {
	ContentPreview   string    `json:"content_preview"`
	ClientTier       Tier      `json:"client_tier"`
	ClientConfidence float64   `json:"client_confidence"`
	AssistTier       Tier      `json:"assist_tier,omitempty"`
	AssistConfidence float64   `json:"assist_confidence,omitempty"`
	FinalTier        Tier      `json:"final_tier"`
	Layer            RoutingLayer `json:"layer"`
	ActionType       string    `json:"action_type"`
	HasNegation      bool      `json:"has_negation"`
	NegationPhrases  []string  `json:"negation_phrases,omitempty"`
	CodePresence     float64   `json:"code_presence"`
	SimpleIndicators float64   `json:"simple_indicators"`
	TechnicalTerms   float64   `json:"technical_terms"`
	SocialScore      float64   `json:"social_score"`
	Timestamp        time.Time `json:"timestamp"`
}
