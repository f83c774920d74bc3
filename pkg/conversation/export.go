package conversation

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/services"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatPDF      = "pdf"
)

// PDFRenderer converts rendered markdown into a PDF file. Implementations
// shell out to an external renderer; nil means none is installed.
type PDFRenderer interface {
	Render(markdown []byte, outPath string) error
}

// ExportResult reports where the output landed. Warning is set when the
// requested format could not be produced and a markdown fallback was
// written instead.
type ExportResult struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	Warning string `json:"warning,omitempty"`
}

var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Table))

// GenerateOutput renders the conversation into outputs/ in the requested
// format. A failing PDF renderer degrades to the markdown path with a
// warning instead of failing the call.
func (m *Manager) GenerateOutput(id, format string, pdf PDFRenderer) (*ExportResult, error) {
	switch format {
	case FormatMarkdown, FormatHTML, FormatPDF:
	default:
		return nil, services.NewValidationError("format",
			fmt.Sprintf("must be one of %s, %s, %s", FormatMarkdown, FormatHTML, FormatPDF))
	}

	meta, err := m.Metadata(id)
	if err != nil {
		return nil, err
	}
	messages, err := m.Messages(id)
	if err != nil {
		return nil, err
	}

	markdown := renderMarkdown(meta, messages)
	stamp := time.Now().UTC().Format("20060102-150405")
	outDir := filepath.Join(m.dir(id), outputsDir)

	m.mu.Lock()
	defer m.mu.Unlock()

	mdPath := filepath.Join(outDir, "conversation-"+stamp+".md")
	if err := writeFileAtomic(mdPath, markdown); err != nil {
		return nil, err
	}
	if err := m.touch(id, nil); err != nil {
		return nil, err
	}

	switch format {
	case FormatMarkdown:
		return &ExportResult{Path: mdPath, Format: FormatMarkdown}, nil

	case FormatHTML:
		var buf bytes.Buffer
		if err := htmlRenderer.Convert(markdown, &buf); err != nil {
			return nil, fmt.Errorf("failed to render HTML: %w", err)
		}
		htmlPath := filepath.Join(outDir, "conversation-"+stamp+".html")
		if err := writeFileAtomic(htmlPath, buf.Bytes()); err != nil {
			return nil, err
		}
		return &ExportResult{Path: htmlPath, Format: FormatHTML}, nil

	default: // FormatPDF
		if pdf == nil {
			return &ExportResult{
				Path: mdPath, Format: FormatMarkdown,
				Warning: "no PDF renderer configured; wrote markdown instead",
			}, nil
		}
		pdfPath := filepath.Join(outDir, "conversation-"+stamp+".pdf")
		if err := pdf.Render(markdown, pdfPath); err != nil {
			slog.Warn("PDF rendering failed, falling back to markdown",
				"conversation_id", id, "error", err)
			return &ExportResult{
				Path: mdPath, Format: FormatMarkdown,
				Warning: fmt.Sprintf("PDF rendering failed (%v); wrote markdown instead", err),
			}, nil
		}
		return &ExportResult{Path: pdfPath, Format: FormatPDF}, nil
	}
}

// renderMarkdown builds the export document: title, role-stamped
// transcript, and a fenced block per material.
func renderMarkdown(meta *models.ConversationMetadata, messages []models.Message) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", meta.Title)

	sb.WriteString("## Conversation\n\n")
	for _, msg := range messages {
		ts := time.UnixMilli(msg.TimestampMS).UTC().Format(time.RFC3339)
		fmt.Fprintf(&sb, "**%s** (%s):\n\n%s\n\n", msg.Role, ts, msg.Content)
	}

	if len(meta.Materials) > 0 {
		sb.WriteString("## Materials\n\n")
		for _, mat := range meta.Materials {
			fmt.Fprintf(&sb, "### %s\n\n", mat.Name)
			if mat.SourceURL != "" {
				fmt.Fprintf(&sb, "Source: %s\n\n", mat.SourceURL)
			}
			content, err := os.ReadFile(mat.Path)
			if err != nil {
				fmt.Fprintf(&sb, "_unavailable: %v_\n\n", err)
				continue
			}
			fmt.Fprintf(&sb, "```\n%s\n```\n\n", strings.TrimRight(string(content), "\n"))
		}
	}
	return []byte(sb.String())
}
