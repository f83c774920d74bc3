package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nexagent/nexagent/pkg/config"
)

var (
	digitRe  = regexp.MustCompile(`\d`)
	quotedRe = regexp.MustCompile(`"[^"]+"|'[^']+'`)
)

// CheckRequiredInput scans the prompt for purchase/search intent that lacks
// the specifics needed to act (no quantity, no named item). When it fires,
// the loop is skipped and the returned question goes straight back to the
// user.
func CheckRequiredInput(cfg config.AgentConfig, prompt string) (string, bool) {
	lower := strings.ToLower(prompt)

	matched := ""
	for _, kw := range cfg.IntentKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = kw
			break
		}
	}
	if matched == "" {
		return "", false
	}

	if digitRe.MatchString(prompt) || quotedRe.MatchString(prompt) {
		return "", false
	}

	// Intent verb with nothing after it ("order", "buy some") or only
	// filler words: ask rather than guess.
	rest := afterKeyword(lower, strings.ToLower(matched))
	if countSubstantiveWords(rest) >= 2 {
		return "", false
	}

	return fmt.Sprintf(
		"I can help with that, but I need more detail first. What exactly would you like me to %s? Please include the specific item and, if relevant, the quantity.",
		matched), true
}

func afterKeyword(lower, kw string) string {
	idx := strings.Index(lower, kw)
	if idx < 0 {
		return lower
	}
	return lower[idx+len(kw):]
}

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "some": true, "me": true,
	"for": true, "please": true, "it": true, "them": true, "online": true,
	"now": true, "to": true, "of": true,
}

func countSubstantiveWords(s string) int {
	n := 0
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,!?")
		if w != "" && !fillerWords[w] {
			n++
		}
	}
	return n
}
