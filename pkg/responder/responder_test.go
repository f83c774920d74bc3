package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexagent/nexagent/pkg/config"
)

func newTestResponder() *Responder {
	r := New(config.Defaults().Responder)
	r.pick = func(int) int { return 0 } // deterministic pool choice
	return r
}

func TestTryAnswer_Greeting(t *testing.T) {
	r := newTestResponder()
	for _, prompt := range []string{"hello", "Hi there!", "good morning", "Hey."} {
		answer, ok := r.TryAnswer(prompt)
		require.True(t, ok, prompt)
		assert.Equal(t, config.Defaults().Responder.Greetings[0], answer)
	}
}

func TestTryAnswer_GreetingWithTaskIsUnhandled(t *testing.T) {
	r := newTestResponder()
	_, ok := r.TryAnswer("hello, please scrape this site for me")
	assert.False(t, ok)
}

func TestTryAnswer_Farewell(t *testing.T) {
	r := newTestResponder()
	answer, ok := r.TryAnswer("thanks a lot!")
	require.True(t, ok)
	assert.Equal(t, config.Defaults().Responder.Farewells[0], answer)

	// A long prompt that merely starts with thanks is not a farewell.
	_, ok = r.TryAnswer("thanks, now please go and download every quarterly report")
	assert.False(t, ok)
}

func TestTryAnswer_Identity(t *testing.T) {
	r := newTestResponder()
	for _, prompt := range []string{"who are you?", "what are you", "which model is this"} {
		answer, ok := r.TryAnswer(prompt)
		require.True(t, ok, prompt)
		assert.Equal(t, config.Defaults().Responder.Identity, answer)
	}
}

func TestTryAnswer_Arithmetic(t *testing.T) {
	r := newTestResponder()

	tests := []struct {
		prompt string
		want   string
	}{
		{"5+5", "The result of 5+5 is 10."},
		{" 12 * 4 ", "The result of 12*4 is 48."},
		{"what is 100 - 58?", "The result of 100-58 is 42."},
		{"What's 7/2", "The result of 7/2 is 3.5."},
		{"what is 2+3*4", "The result of 2+3*4 is 14."},
	}
	for _, tt := range tests {
		answer, ok := r.TryAnswer(tt.prompt)
		require.True(t, ok, tt.prompt)
		assert.Equal(t, tt.want, answer)
	}
}

func TestTryAnswer_ArithmeticEdgeCases(t *testing.T) {
	r := newTestResponder()

	// Division by zero is unhandled, not an error.
	_, ok := r.TryAnswer("5/0")
	assert.False(t, ok)

	// Overflow is unhandled.
	_, ok = r.TryAnswer("999999999999999 * 999999999999999")
	assert.False(t, ok)

	// Identifiers never reach the evaluator.
	_, ok = r.TryAnswer("what is x + 1")
	assert.False(t, ok)
}

func TestTryAnswer_Stubs(t *testing.T) {
	cfg := config.Defaults().Responder
	cfg.Stubs = map[string]string{"who is ada lovelace": "Ada Lovelace was a 19th-century mathematician."}
	r := New(cfg)

	answer, ok := r.TryAnswer("Who is Ada Lovelace?")
	require.True(t, ok)
	assert.Contains(t, answer, "mathematician")
}

func TestTryAnswer_Unhandled(t *testing.T) {
	r := newTestResponder()
	for _, prompt := range []string{
		"",
		"summarize the latest climate report",
		"what is the capital of France",
	} {
		_, ok := r.TryAnswer(prompt)
		assert.False(t, ok, prompt)
	}
}

func TestEvalExpr(t *testing.T) {
	tests := []struct {
		expr string
		want string
		ok   bool
	}{
		{"1+2", "3", true},
		{"10-4-3", "3", true},
		{"2*3+4", "10", true},
		{"8/4/2", "1", true},
		{"1.5+1.5", "3", true},
		{"1/0", "", false},
		{"1+", "", false},
		{"(1+2)", "", false},
		{"1+x", "", false},
	}
	for _, tt := range tests {
		got, ok := evalExpr(tt.expr)
		assert.Equal(t, tt.ok, ok, tt.expr)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.expr)
		}
	}
}
