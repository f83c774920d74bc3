package agent

import (
	"strings"

	"github.com/nexagent/nexagent/pkg/config"
)

// Per-category step bonuses.
const (
	webBonus        = 5
	webBonusCap     = 25
	connectorBonus  = 3
	connectorCap    = 30
	dataVerbBonus   = 4
	dataVerbCap     = 20
	comprehensive   = 30
	longPromptBonus = 10
	hugePromptBonus = 15

	longPromptChars = 200
	hugePromptChars = 500
)

// StepBudget computes the iteration allowance for one user prompt. Richer
// prompts get more steps; the ceiling bounds runaway loops regardless.
func StepBudget(cfg config.AgentConfig, prompt string) int {
	lower := strings.ToLower(prompt)
	budget := cfg.BaseSteps

	budget += cappedTally(lower, cfg.WebKeywords, webBonus, webBonusCap)
	budget += cappedTally(lower, cfg.ConnectorKeywords, connectorBonus, connectorCap)
	budget += cappedTally(lower, cfg.DataVerbs, dataVerbBonus, dataVerbCap)

	for _, ind := range cfg.ComprehensiveIndicators {
		if strings.Contains(lower, strings.ToLower(ind)) {
			budget += comprehensive
			break
		}
	}

	if len(prompt) > longPromptChars {
		budget += longPromptBonus
	}
	if len(prompt) > hugePromptChars {
		budget += hugePromptBonus
	}

	if budget > cfg.StepCeiling {
		budget = cfg.StepCeiling
	}
	return budget
}

func cappedTally(lower string, keywords []string, bonus, limit int) int {
	total := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			total += bonus
			if total >= limit {
				return limit
			}
		}
	}
	return total
}
