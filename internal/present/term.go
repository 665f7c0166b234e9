package present

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

var (
	isInputTTY  = sync.OnceValue(func() bool { return IsTerminal(os.Stdin) })
	isOutputTTY = sync.OnceValue(func() bool { return IsTerminal(os.Stdout) })
)

// IsInputTTY reports whether stdin is a TTY.
func IsInputTTY() bool { return isInputTTY() }

// IsOutputTTY reports whether stdout is a TTY.
func IsOutputTTY() bool { return isOutputTTY() }

var (
	stdoutRenderer = sync.OnceValue(lipgloss.DefaultRenderer)
	stderrRenderer = sync.OnceValue(func() *lipgloss.Renderer {
		return lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))
	})
	stdoutStyles = sync.OnceValue(func() Styles { return MakeStyles(StdoutRenderer()) })
	stderrStyles = sync.OnceValue(func() Styles { return MakeStyles(StderrRenderer()) })
)

// StdoutRenderer returns a lipgloss renderer bound to stdout.
func StdoutRenderer() *lipgloss.Renderer { return stdoutRenderer() }

// StderrRenderer returns a lipgloss renderer bound to stderr. The chat UI
// draws on stderr so stdout stays free for piping.
func StderrRenderer() *lipgloss.Renderer { return stderrRenderer() }

// StdoutStyles returns shared styles bound to stdout.
func StdoutStyles() Styles { return stdoutStyles() }

// StderrStyles returns shared styles bound to stderr.
func StderrStyles() Styles { return stderrStyles() }
