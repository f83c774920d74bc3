// Package responder answers trivial prompts directly, without involving
// the LLM: greetings, farewells, identity questions, small arithmetic, and
// a configurable bank of canned answers.
package responder

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/nexagent/nexagent/pkg/config"
)

var (
	greetingRe = regexp.MustCompile(`(?i)^\s*(hi|hiya|hello|hey|howdy|good (morning|afternoon|evening))(\s+there)?[\s!.,?]*$`)
	farewellRe = regexp.MustCompile(`(?i)^\s*(thanks|thank you|thx|bye|goodbye|see you|cheers|appreciate it)\b`)
	identityRe = regexp.MustCompile(`(?i)\b(who|what) are you\b|\bwhich (model|llm)\b|\bwhat('?s| is) your name\b`)

	bareExprRe   = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?(?:\s*[+\-*/]\s*\d+(?:\.\d+)?)+)\s*$`)
	whatIsExprRe = regexp.MustCompile(`(?i)^\s*what(?:'s| is)\s+(\d+(?:\.\d+)?(?:\s*[+\-*/]\s*\d+(?:\.\d+)?)+)\s*\??\s*$`)
)

// Responder holds the response pools.
type Responder struct {
	cfg  config.ResponderConfig
	pick func(n int) int
}

func New(cfg config.ResponderConfig) *Responder {
	return &Responder{cfg: cfg, pick: rand.Intn}
}

// TryAnswer returns a direct answer and true when the prompt falls in a
// handled category. False means the caller should involve the model.
func (r *Responder) TryAnswer(prompt string) (string, bool) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", false
	}

	if greetingRe.MatchString(trimmed) {
		return r.fromPool(r.cfg.Greetings), true
	}
	if farewellRe.MatchString(trimmed) && len(strings.Fields(trimmed)) <= 6 {
		return r.fromPool(r.cfg.Farewells), true
	}
	if identityRe.MatchString(trimmed) {
		return r.cfg.Identity, true
	}
	if expr := matchArithmetic(trimmed); expr != "" {
		if answer, ok := evalExpr(expr); ok {
			return "The result of " + compactExpr(expr) + " is " + answer + ".", true
		}
		// Overflow or division by zero: pretend we never understood it.
		return "", false
	}
	if answer := r.matchStub(trimmed); answer != "" {
		return answer, true
	}
	return "", false
}

func (r *Responder) fromPool(pool []string) string {
	if len(pool) == 0 {
		return r.cfg.Identity
	}
	return pool[r.pick(len(pool))]
}

// matchStub scans the configured canned answers; keys match as
// case-insensitive substrings.
func (r *Responder) matchStub(prompt string) string {
	lower := strings.ToLower(prompt)
	for key, answer := range r.cfg.Stubs {
		if strings.Contains(lower, strings.ToLower(key)) {
			return answer
		}
	}
	return ""
}

func matchArithmetic(prompt string) string {
	if m := bareExprRe.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	if m := whatIsExprRe.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	return ""
}

func compactExpr(expr string) string {
	return strings.Join(strings.Fields(expr), "")
}
