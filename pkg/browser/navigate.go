package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	coverageTarget = 0.7
	maxPages       = 10
)

// navKeywords mark elements that usually lead deeper into the content.
var navKeywords = []string{
	"details", "more", "next", "continue", "view", "read",
	"about", "info", "learn", "documentation", "docs",
}

// searchFieldNames are input names that are almost certainly a search box.
var searchFieldNames = []string{"q", "query", "search", "s"}

// Collect drives agentic navigation: starting from target, it follows the
// most promising links, forms, and buttons until the collected text covers
// the query or a budget runs out. Returns the aggregated page text.
func (p *Pipeline) Collect(ctx context.Context, target, query string) (string, []Attempt, error) {
	tokens := queryTokens(query)

	proxy := p.proxies.Next()
	lease, err := p.pool.Acquire(p.primary, proxy, p.uaPool.Next())
	if err != nil {
		return "", nil, err
	}
	defer lease.Release()
	sess := lease.Session()

	actx, cancel := context.WithTimeout(ctx, p.navTimeout)
	page, err := sess.NavigateExtract(actx, target)
	cancel()
	if err != nil || p.blockedContent(page.Text) != "" {
		// Entry page is hostile; run the full ladder for it and settle
		// for single-page output.
		out, attempts, ferr := p.Fetch(ctx, target)
		if ferr != nil {
			return "", attempts, ferr
		}
		return out, attempts, nil
	}

	visited := map[string]bool{page.URL: true, target: true}
	collected := []*Page{page}
	depth := 0
	maxSteps := 3 * p.maxDepth
	var attempts []Attempt
	attempts = append(attempts, Attempt{Tier: 1, Method: "navigate", Driver: p.primary.Name()})

	for step := 0; step < maxSteps; step++ {
		cov := coverage(tokens, collectedText(collected))
		if cov > coverageTarget && depth > 0 {
			slog.Debug("Navigation coverage reached", "url", page.URL, "coverage", cov, "depth", depth)
			break
		}
		if depth >= p.maxDepth || len(collected) >= maxPages {
			break
		}

		el, ok := pickAction(page.Elements, tokens, visited)
		if !ok {
			break
		}
		if err := p.pause(ctx); err != nil {
			break
		}

		actx, cancel := context.WithTimeout(ctx, p.navTimeout)
		err := p.executeAction(actx, sess, el, query)
		cancel()
		if err != nil {
			slog.Debug("Navigation action failed", "kind", el.Kind, "text", el.Text, "error", err)
			// Drop the element from consideration and try the next best.
			visited[el.Target] = true
			continue
		}

		next, err := sess.Extract(ctx)
		if err != nil {
			break
		}
		if !visited[next.URL] {
			visited[next.URL] = true
			collected = append(collected, next)
		}
		page = next
		depth++
		attempts = append(attempts, Attempt{
			Tier: len(attempts) + 1, Method: "navigate_step", Driver: p.primary.Name(),
		})
	}

	return renderCollected(query, collected), attempts, nil
}

func (p *Pipeline) executeAction(ctx context.Context, sess Session, el Element, query string) error {
	switch el.Kind {
	case ElementLink:
		return sess.Click(ctx, el)
	case ElementInput:
		return sess.FillSubmit(ctx, el, query)
	case ElementButton:
		if err := sess.Click(ctx, el); err != nil {
			return sess.Scroll(ctx)
		}
		return nil
	default:
		return sess.Scroll(ctx)
	}
}

// pickAction scores every interactive element by query-token presence and
// navigation keywords and returns the best unvisited one.
func pickAction(els []Element, tokens []string, visited map[string]bool) (Element, bool) {
	best := Element{}
	bestScore := 0
	for _, el := range els {
		if el.Kind == ElementLink && (el.Target == "" || visited[el.Target]) {
			continue
		}
		score := scoreElement(el, tokens)
		if score > bestScore {
			best = el
			bestScore = score
		}
	}
	return best, bestScore > 0
}

func scoreElement(el Element, tokens []string) int {
	label := strings.ToLower(el.Text)
	score := 0
	for _, tok := range tokens {
		if strings.Contains(label, tok) {
			score += 2
		}
	}
	for _, kw := range navKeywords {
		if strings.Contains(label, kw) {
			score++
		}
	}
	if el.Kind == ElementInput {
		for _, name := range searchFieldNames {
			if label == name || strings.Contains(label, "search") {
				score += 3
				break
			}
		}
	}
	return score
}

// queryTokens splits the query into scoring tokens, dropping short filler
// words that would match everywhere.
func queryTokens(query string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,!?\"'()")
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// coverage is the fraction of query tokens present in the collected text.
func coverage(tokens []string, text string) float64 {
	if len(tokens) == 0 {
		return 1.0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func collectedText(pages []*Page) string {
	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(p.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

const pageExcerptLimit = 4000

func renderCollected(query string, pages []*Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Collected %d page(s) for %q:\n\n", len(pages), query)
	for _, p := range pages {
		title := p.Title
		if title == "" {
			title = p.URL
		}
		fmt.Fprintf(&sb, "## %s (%s)\n", title, p.URL)
		text := p.Text
		if len(text) > pageExcerptLimit {
			text = text[:pageExcerptLimit] + "\n... (truncated)"
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
