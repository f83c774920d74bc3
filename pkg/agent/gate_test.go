package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexagent/nexagent/pkg/config"
)

func TestCheckRequiredInput(t *testing.T) {
	cfg := config.Defaults().Agent

	question, gated := CheckRequiredInput(cfg, "please order for me")
	require.True(t, gated)
	assert.Contains(t, question, "order")

	_, gated = CheckRequiredInput(cfg, "buy some")
	assert.True(t, gated)
}

func TestCheckRequiredInput_SpecificsPass(t *testing.T) {
	cfg := config.Defaults().Agent

	for _, prompt := range []string{
		"order 2 mechanical keyboards",
		`buy "The Go Programming Language" from the usual shop`,
		"search for affordable standing desks under consideration",
		"tell me a joke",
	} {
		_, gated := CheckRequiredInput(cfg, prompt)
		assert.False(t, gated, prompt)
	}
}

func TestFormatFinal(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "just an answer", "just an answer"},
		{
			"final output section",
			"thinking notes\n\n## Final Output\nThe summary.\n",
			"The summary.",
		},
		{
			"final output stops at next header",
			"## Final Output\nResult here.\n## Appendix\nignore",
			"Result here.",
		},
		{
			"triple newline keeps last block",
			"draft one\n\n\ndraft two\n\n\nfinal text",
			"final text",
		},
		{
			"empty final section falls through",
			"body text\n## Final Output\n\n\n",
			"body text\n## Final Output",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFinal(tt.content))
		})
	}
}
