// Package export renders journal entries to markdown.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/extrophi/voicejournal/internal/store"
)

// RenderMarkdown formats one journal entry: recording metadata, the
// transcript (segment timestamps included when present) and any reflective
// dialogue.
func RenderMarkdown(entry store.Entry, chat []store.ChatMessage) string {
	var b strings.Builder

	rec := entry.Recording
	fmt.Fprintf(&b, "# Journal entry - %s\n\n", rec.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Recording: `%s`\n", rec.Filepath)
	fmt.Fprintf(&b, "- Duration: %s\n", msToClock(rec.DurationMS))
	if entry.Transcript != nil {
		tr := entry.Transcript
		fmt.Fprintf(&b, "- Engine: `%s`\n", tr.PluginName)
		if tr.Language != "" {
			fmt.Fprintf(&b, "- Language: %s\n", tr.Language)
		}
		if tr.Confidence > 0 {
			fmt.Fprintf(&b, "- Confidence: %.2f\n", tr.Confidence)
		}
	}
	b.WriteString("\n---\n\n")

	if entry.Transcript == nil {
		b.WriteString("_No transcript._\n")
		return b.String()
	}

	b.WriteString("## Transcript\n\n")
	b.WriteString(strings.TrimSpace(entry.Transcript.Text))
	b.WriteString("\n")

	if len(chat) > 0 {
		b.WriteString("\n## Reflection\n\n")
		for _, m := range chat {
			role := "You"
			if m.Role == "assistant" {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "**%s** (%s):\n\n%s\n\n", role, m.CreatedAt.Format("15:04"), strings.TrimSpace(m.Content))
		}
	}
	return b.String()
}

// msToClock formats a millisecond duration as mm:ss or hh:mm:ss.
func msToClock(ms uint64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
