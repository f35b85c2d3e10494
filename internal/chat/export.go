package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/diogo/chatbox/internal/models"
)

// ExportFormat represents the format for exporting a transcript
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
)

// FormatForPath picks JSON for .json files and markdown otherwise
func FormatForPath(path string) ExportFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ExportFormatJSON
	}
	return ExportFormatMarkdown
}

// Export writes the conversation to w
func (w *Widget) Export(out io.Writer, format ExportFormat) error {
	messages := w.Messages()
	switch format {
	case ExportFormatJSON:
		return exportJSON(out, messages)
	case ExportFormatMarkdown, "":
		_, err := io.WriteString(out, exportMarkdown(messages))
		return err
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func exportMarkdown(messages []models.Message) string {
	var sb strings.Builder

	sb.WriteString("# Chat transcript\n\n")
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n\n---\n\n", len(messages)))

	for i, msg := range messages {
		role := "User"
		if msg.Role == models.RoleAssistant {
			role = "Assistant"
		}

		sb.WriteString("## ")
		sb.WriteString(role)
		if !msg.CreatedAt.IsZero() {
			sb.WriteString(" (")
			sb.WriteString(msg.CreatedAt.Format("15:04:05"))
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")

		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if i < len(messages)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

func exportJSON(out io.Writer, messages []models.Message) error {
	type exportMessage struct {
		ID        string    `json:"id"`
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		Failed    bool      `json:"failed,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}
	type export struct {
		ExportedAt time.Time       `json:"exported_at"`
		Messages   []exportMessage `json:"messages"`
	}

	doc := export{
		ExportedAt: time.Now(),
		Messages:   make([]exportMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		doc.Messages = append(doc.Messages, exportMessage{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Failed:    msg.Failed,
			Timestamp: msg.CreatedAt,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
