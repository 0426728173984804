package summarizer

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarkdownFormatter renders a Summary as Markdown.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(summary *Summary) (string, error) {
	var sb strings.Builder

	sb.WriteString("# Stream Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n", summary.GeneratedAt.Format("2006-01-02 15:04:05")))

	for _, file := range summary.Files {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", file.Path))

		if file.Error != "" {
			sb.WriteString(fmt.Sprintf("**Error:** %s\n", file.Error))
			continue
		}

		sb.WriteString(fmt.Sprintf("- Format: %s\n", orDash(file.Format)))
		sb.WriteString(fmt.Sprintf("- Duration: %s\n", formatDuration(file.DurationMs)))
		if file.Selected >= 0 {
			sb.WriteString(fmt.Sprintf("- Selected: #%d", file.Selected))
			if file.Decoder != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", file.Decoder))
			}
			sb.WriteString("\n")
		} else {
			sb.WriteString("- Selected: none\n")
		}

		sb.WriteString("\n| # | Type | Codec | Size | Pixel format | Bit rate | Frame rate | Default |\n")
		sb.WriteString("|---|------|-------|------|--------------|----------|------------|---------|\n")
		for _, s := range file.Streams {
			marker := ""
			if s.Index == file.Selected {
				marker = " *"
			}
			size := "-"
			if s.Width > 0 && s.Height > 0 {
				size = fmt.Sprintf("%dx%d", s.Width, s.Height)
			}
			sb.WriteString(fmt.Sprintf("| %d%s | %s | %s | %s | %s | %s | %s | %t |\n",
				s.Index, marker, s.MediaType, s.Codec, size,
				orDash(s.PixelFormat), formatBitRate(s.BitRate), orDash(s.FrameRate), s.Default))
		}

		if p := file.Playback; p != nil {
			sb.WriteString("\n### Playback\n\n")
			sb.WriteString("| Metric | Value |\n")
			sb.WriteString("|--------|-------|\n")
			sb.WriteString(fmt.Sprintf("| Steps | %d |\n", p.Steps))
			sb.WriteString(fmt.Sprintf("| Access units read | %d |\n", p.UnitsRead))
			sb.WriteString(fmt.Sprintf("| Frames delivered | %d |\n", p.FramesDelivered))
			sb.WriteString(fmt.Sprintf("| Frames flushed | %d |\n", p.FramesFlushed))
			sb.WriteString(fmt.Sprintf("| Decode errors | %d |\n", p.DecodeErrors))
			sb.WriteString(fmt.Sprintf("| Sink errors | %d |\n", p.SinkErrors))
			sb.WriteString(fmt.Sprintf("| Loops | %d |\n", p.Loops))
		}
	}

	return sb.String(), nil
}

// YAMLFormatter renders a Summary as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAMLFormatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Format implements Formatter.
func (f *YAMLFormatter) Format(summary *Summary) (string, error) {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(data), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "unknown"
	}
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%.2f s", float64(ms)/1000)
}

func formatBitRate(bps int64) string {
	switch {
	case bps <= 0:
		return "-"
	case bps >= 1000*1000:
		return fmt.Sprintf("%.2f Mb/s", float64(bps)/(1000*1000))
	case bps >= 1000:
		return fmt.Sprintf("%.1f kb/s", float64(bps)/1000)
	default:
		return fmt.Sprintf("%d b/s", bps)
	}
}

var (
	_ Formatter = (*MarkdownFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
)
