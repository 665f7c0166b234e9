package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultAction = "OK"

// PrintConfirmation writes a short action badge followed by content.
func PrintConfirmation(w io.Writer, badge lipgloss.Style, action, content string) {
	if action == "" {
		action = defaultAction
	}
	header := badge.MarginRight(1).SetString(strings.ToUpper(action))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center, header.String(), content))
}
