// Package markdown renders ticket and comment bodies to HTML for
// diagnostic and summary surfaces using goldmark.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

var renderer = goldmark.New()

// Render converts a markdown comment or ticket body to HTML.
func Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// DiagnosticComment renders the system comment posted when the Worktree
// Manager classifies a git failure, giving the operator a readable
// summary of the condition and a pointer at remediation.
func DiagnosticComment(kind, operation, message string) string {
	return fmt.Sprintf("**%s** during `%s`\n\n%s\n", kind, operation, message)
}
