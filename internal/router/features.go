package router

import (
	"regexp"
	"strings"
)

// ActionType is the coarse intent extracted from a message.
type ActionType string

const (
	ActionWrite   ActionType = "write"
	ActionExplain ActionType = "explain"
	ActionAnalyze ActionType = "analyze"
	ActionFix     ActionType = "fix"
	ActionGeneral ActionType = "general"
)

// QuestionType is the grammatical shape of a question, if any.
type QuestionType string

const (
	QuestionYesNo QuestionType = "yes_no"
	QuestionWh    QuestionType = "wh_question"
	QuestionOpen  QuestionType = "open"
)

// Features is the deterministic score bundle layer 1 extracts from a
// message. All scores are in [0,1].
type Features struct {
	CodePresence      float64
	SimpleIndicators  float64
	TechnicalTerms    float64
	SocialInteraction float64
	HasNegation       bool
	NegationPhrases   []string
	Action            ActionType
	Question          QuestionType
	UrgencyMarkers    []string
	SimpleMarkers     []string
	WordCount         int
}

// The marker lists are closed sets; the literal strings are the contract,
// not examples.
var (
	simpleMarkers  = []string{"quick question", "by the way", "btw", "real quick", "just wondering"}
	urgencyMarkers = []string{"urgent", "asap", "immediately", "right now", "critical"}

	negationPhrases = []string{"don't", "do not", "doesn't", "does not", "won't", "will not",
		"can't", "cannot", "isn't", "is not", "never", "without", "not "}

	socialPhrases = []string{"hello", "hi ", "hey", "thanks", "thank you", "good morning",
		"good evening", "good night", "how are you", "nice to meet", "bye", "see you",
		"please", "appreciate"}

	simplePhrases = []string{"what time", "what day", "what date", "who is", "where is",
		"yes", "no", "ok", "okay", "cool", "sure", "got it", "sounds good"}

	technicalTerms = []string{"api", "database", "sql", "algorithm", "function", "class",
		"compile", "deploy", "kubernetes", "docker", "server", "endpoint", "cache",
		"concurrency", "goroutine", "thread", "mutex", "regex", "schema", "index",
		"latency", "throughput", "protocol", "encryption", "authentication", "refactor",
		"repository", "microservice", "queue", "kafka", "http", "json", "yaml",
		"stack trace", "segfault", "null pointer", "memory leak", "race condition"}

	codeBlockRe  = regexp.MustCompile("```")
	inlineCodeRe = regexp.MustCompile("`[^`]+`")
	codeTokenRe  = regexp.MustCompile(`\b(func|def|class|import|return|struct|interface|var|const|if err != nil|=>|->|::)\b`)
	errorLineRe  = regexp.MustCompile(`(?i)(error:|exception|traceback|panic:|undefined|cannot find)`)

	writeRe   = regexp.MustCompile(`(?i)\b(write|create|implement|build|generate|make me|add a|code up)\b`)
	explainRe = regexp.MustCompile(`(?i)\b(explain|what is|what's|describe|how does|how do|tell me about|meaning of)\b`)
	analyzeRe = regexp.MustCompile(`(?i)\b(analy[sz]e|compare|evaluate|review|assess|trade-?offs?|pros and cons)\b`)
	fixRe     = regexp.MustCompile(`(?i)\b(fix|debug|broken|not working|fails?|crash|wrong|issue with)\b`)

	yesNoRe = regexp.MustCompile(`(?i)^\s*(is|are|was|were|can|could|do|does|did|will|would|should|has|have|am)\b`)
	whRe    = regexp.MustCompile(`(?i)^\s*(what|why|how|when|where|who|which)\b`)
)

// Extract computes the deterministic feature bundle for content.
func Extract(content string) Features {
	lower := strings.ToLower(content)
	words := strings.Fields(content)

	f := Features{
		WordCount: len(words),
		Action:    detectAction(lower),
		Question:  detectQuestion(content),
	}
	f.CodePresence = codePresence(content, lower)
	f.TechnicalTerms = ratioScore(countContains(lower, technicalTerms), 3)
	f.SocialInteraction = ratioScore(countContains(lower, socialPhrases), 2)
	f.SimpleIndicators = simpleScore(lower, f)

	for _, n := range negationPhrases {
		if strings.Contains(lower, n) {
			f.HasNegation = true
			f.NegationPhrases = append(f.NegationPhrases, strings.TrimSpace(n))
		}
	}
	for _, m := range simpleMarkers {
		if strings.Contains(lower, m) {
			f.SimpleMarkers = append(f.SimpleMarkers, m)
		}
	}
	for _, m := range urgencyMarkers {
		if strings.Contains(lower, m) {
			f.UrgencyMarkers = append(f.UrgencyMarkers, m)
		}
	}
	return f
}

func detectAction(lower string) ActionType {
	// Fix beats write: "fix the create user endpoint" is a fix.
	switch {
	case fixRe.MatchString(lower):
		return ActionFix
	case writeRe.MatchString(lower):
		return ActionWrite
	case analyzeRe.MatchString(lower):
		return ActionAnalyze
	case explainRe.MatchString(lower):
		return ActionExplain
	}
	return ActionGeneral
}

func detectQuestion(content string) QuestionType {
	switch {
	case whRe.MatchString(content):
		return QuestionWh
	case yesNoRe.MatchString(content):
		return QuestionYesNo
	}
	return QuestionOpen
}

func codePresence(content, lower string) float64 {
	score := 0.0
	if codeBlockRe.MatchString(content) {
		score += 0.6
	}
	if inlineCodeRe.MatchString(content) {
		score += 0.2
	}
	if codeTokenRe.MatchString(content) {
		score += 0.2
	}
	if errorLineRe.MatchString(lower) {
		score += 0.2
	}
	return clamp01(score)
}

func simpleScore(lower string, f Features) float64 {
	score := 0.0
	if f.WordCount > 0 && f.WordCount < 12 {
		score += 0.4
	}
	score += 0.3 * ratioScore(countContains(lower, simplePhrases), 1)
	score += 0.4 * f.SocialInteraction
	score -= 0.5 * f.TechnicalTerms
	score -= 0.5 * f.CodePresence
	return clamp01(score)
}

func countContains(haystack string, needles []string) int {
	n := 0
	for _, s := range needles {
		if strings.Contains(haystack, s) {
			n++
		}
	}
	return n
}

// ratioScore maps a count onto [0,1], saturating at full.
func ratioScore(count, full int) float64 {
	if full <= 0 {
		return 0
	}
	return clamp01(float64(count) / float64(full))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
