package agent

import "strings"

const finalOutputHeader = "## Final Output"

// FormatFinal reduces a raw assistant message to the part shown to the
// user. A "## Final Output" section wins; otherwise the last
// triple-newline-separated block; otherwise the whole message. The
// unredacted text stays in the timeline.
func FormatFinal(content string) string {
	if idx := strings.Index(content, finalOutputHeader); idx >= 0 {
		section := content[idx+len(finalOutputHeader):]
		// Stop at the next same-level header, if any.
		if next := strings.Index(section, "\n## "); next >= 0 {
			section = section[:next]
		}
		if trimmed := strings.TrimSpace(section); trimmed != "" {
			return trimmed
		}
	}

	if strings.Contains(content, "\n\n\n") {
		blocks := strings.Split(content, "\n\n\n")
		for i := len(blocks) - 1; i >= 0; i-- {
			if trimmed := strings.TrimSpace(blocks[i]); trimmed != "" {
				return trimmed
			}
		}
	}

	return strings.TrimSpace(content)
}
