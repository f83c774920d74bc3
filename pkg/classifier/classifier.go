// Package classifier decides whether a prompt is casual chat or a task
// for the agent loop. Classification is pure: no I/O, no state, the same
// prompt always yields the same result.
package classifier

import (
	"regexp"
	"strings"

	"github.com/nexagent/nexagent/pkg/config"
)

// Kind is the classification outcome.
type Kind string

const (
	KindChat  Kind = "chat"
	KindAgent Kind = "agent"
)

// Result carries the decision and both raw scores for observability.
type Result struct {
	Kind       Kind    `json:"kind"`
	ChatScore  float64 `json:"chat_score"`
	AgentScore float64 `json:"agent_score"`
}

// chatPatterns are conversational shapes with their score contribution.
var chatPatterns = []struct {
	re     *regexp.Regexp
	weight float64
}{
	{regexp.MustCompile(`(?i)^\s*(hi|hiya|hello|hey|howdy|good (morning|afternoon|evening))\b`), 0.6},
	{regexp.MustCompile(`(?i)^\s*(thanks|thank you|thx|bye|goodbye|see you|cheers)\b`), 0.6},
	{regexp.MustCompile(`(?i)\b(who|what) are you\b|\bwhich (model|llm)\b|\byour name\b`), 0.6},
	{regexp.MustCompile(`(?i)^\s*(what is|what's)\s+[\d\s+\-*/().]+\??\s*$`), 0.6},
	{regexp.MustCompile(`^\s*\d+\s*[+\-*/]\s*\d+\s*$`), 0.6},
	{regexp.MustCompile(`(?i)\bhow are you\b|\bwhat'?s up\b`), 0.5},
	{regexp.MustCompile(`\?\s*$`), 0.2},
}

var urlRe = regexp.MustCompile(`(?i)\bhttps?://\S+`)

// uiEchoRe strips the trivial UI prompt a client may prepend when the user
// replies to the "next step" nudge.
var uiEchoRe = regexp.MustCompile(`(?i)^\s*what would you like to do next\??\s*`)

// Classifier scores prompts against configured keyword banks.
type Classifier struct {
	cfg config.ClassifierConfig
}

func New(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify scores the prompt and applies the thresholds: chat wins at
// chat_threshold, agent at agent_threshold, and short prompts without
// agentic vocabulary default to chat.
func (c *Classifier) Classify(prompt string) Result {
	prompt = uiEchoRe.ReplaceAllString(prompt, "")
	lower := strings.ToLower(prompt)

	chatScore := 0.0
	for _, p := range chatPatterns {
		if p.re.MatchString(prompt) {
			chatScore += p.weight
		}
	}
	chatScore = clamp(chatScore)

	agentScore := 0.0
	for _, kw := range c.cfg.AgentKeywords {
		if containsWord(lower, kw) {
			agentScore += 0.15
		}
	}
	for _, sw := range c.cfg.StepWords {
		if containsWord(lower, sw) {
			agentScore += 0.10
		}
	}
	if urlRe.MatchString(prompt) {
		agentScore += 0.20
	}
	agentScore = clamp(agentScore)

	res := Result{ChatScore: chatScore, AgentScore: agentScore}
	switch {
	case chatScore >= c.cfg.ChatThreshold:
		res.Kind = KindChat
	case agentScore >= c.cfg.AgentThreshold:
		res.Kind = KindAgent
	default:
		res.Kind = c.shortPromptHeuristic(lower)
	}
	return res
}

// shortPromptHeuristic breaks ties: short prompts are chat unless they use
// agentic vocabulary; long prompts are tasks.
func (c *Classifier) shortPromptHeuristic(lower string) Kind {
	if len(strings.Fields(lower)) > c.cfg.ShortPromptTokens {
		return KindAgent
	}
	for _, kw := range c.cfg.AgentKeywords {
		if containsWord(lower, kw) {
			return KindAgent
		}
	}
	for _, sw := range c.cfg.StepWords {
		if containsWord(lower, sw) {
			return KindAgent
		}
	}
	return KindChat
}

// containsWord matches kw as a whole word (or phrase) in text.
func containsWord(text, kw string) bool {
	kw = strings.ToLower(kw)
	idx := 0
	for {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
