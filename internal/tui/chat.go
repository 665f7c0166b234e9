// Package tui is the terminal frontend: a Bubble Tea chat REPL that talks to
// the API over HTTP.
package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/multiagent/internal/api"
	"github.com/dotcommander/multiagent/internal/client"
	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/present"
)

type chatState int

const (
	chatInputState chatState = iota
	chatWaitingState
)

// Chatter sends one chat request to the API.
type Chatter interface {
	Chat(ctx context.Context, req api.ChatRequest) (string, error)
}

// Options are the per-session request settings.
type Options struct {
	Model       string
	System      string
	AllowSearch bool
	WordWrap    int
}

// Chat is the Bubble Tea model for the chat REPL.
type Chat struct {
	state    chatState
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	glam     *glamour.TermRenderer
	renderer *lipgloss.Renderer
	styles   present.Styles

	client Chatter
	opts   Options
	ctx    context.Context

	transcript   bytes.Buffer
	lastAnswer   string
	lastAnswerAt time.Time
	flash        string

	seq          int
	activeCancel context.CancelFunc
	waitingSince time.Time

	copyFn func(string) error
	now    func() time.Time

	width  int
	height int
}

// NewChat creates the chat model.
func NewChat(ctx context.Context, r *lipgloss.Renderer, c Chatter, opts Options) *Chat {
	glam, _ := present.NewMarkdownRenderer(opts.WordWrap)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask anything, /exit to quit"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	styles := present.MakeStyles(r)
	ti.PromptStyle = styles.Prompt
	sp.Style = styles.Status

	return &Chat{
		state:    chatInputState,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		glam:     glam,
		renderer: r,
		styles:   styles,
		client:   c,
		opts:     opts,
		ctx:      ctx,
		copyFn:   clipboard.WriteAll,
		now:      time.Now,
	}
}

type chatSubmitMsg struct {
	prompt string
}

type chatAnswerMsg struct {
	seq    int
	answer string
}

type chatErrMsg struct {
	seq int
	err error
}

// Init implements tea.Model.
func (c *Chat) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.resizeViewport()
		c.refreshViewport()
		return c, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if c.state == chatWaitingState {
				c.cancelActive()
				c.flash = "Request cancelled."
				c.state = chatInputState
				return c, nil
			}
			return c, tea.Quit
		case "ctrl+s":
			c.opts.AllowSearch = !c.opts.AllowSearch
			c.flash = "Web search " + onOff(c.opts.AllowSearch) + "."
			return c, nil
		case "ctrl+y":
			if c.lastAnswer == "" {
				c.flash = "Nothing to copy yet."
				return c, nil
			}
			if err := c.copyFn(c.lastAnswer); err != nil {
				c.flash = "Copy failed: " + err.Error()
				return c, nil
			}
			c.flash = "Copied last answer."
			return c, nil
		case "enter":
			if c.state != chatInputState {
				return c, nil
			}
			text := strings.TrimSpace(c.input.Value())
			if text == "" {
				return c, nil
			}
			if text == "/exit" || text == "/quit" {
				return c, tea.Quit
			}
			c.input.SetValue("")
			return c, func() tea.Msg { return chatSubmitMsg{prompt: text} }
		}

	case chatSubmitMsg:
		fmt.Fprintf(&c.transcript, "> %s\n\n", msg.prompt)
		c.flash = ""
		c.state = chatWaitingState
		c.waitingSince = c.now()
		c.refreshViewport()
		return c, tea.Batch(c.askCmd(msg.prompt), c.spinner.Tick)

	case chatAnswerMsg:
		if msg.seq != c.seq || c.state != chatWaitingState {
			return c, nil
		}
		c.finishTurn()
		c.lastAnswer = msg.answer
		c.lastAnswerAt = c.now()
		fmt.Fprintf(&c.transcript, "%s\n\n", msg.answer)
		c.refreshViewport()
		return c, nil

	case chatErrMsg:
		if msg.seq != c.seq || c.state != chatWaitingState {
			return c, nil
		}
		c.finishTurn()
		fmt.Fprintf(&c.transcript, "**Error:** %s\n\n", describeError(msg.err))
		c.refreshViewport()
		return c, nil

	case spinner.TickMsg:
		if c.state != chatWaitingState {
			return c, nil
		}
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd
	}

	var cmds []tea.Cmd
	if c.state == chatInputState {
		var cmd tea.Cmd
		c.input, cmd = c.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return c, tea.Batch(cmds...)
}

// View implements tea.Model.
func (c *Chat) View() string {
	if c.width == 0 || c.height == 0 {
		return ""
	}

	title := present.MakeGradientText(c.styles.AppName, config.ServiceName)
	divider := c.styles.Comment.Render(strings.Repeat("─", max(c.width, 1)))

	var prompt string
	if c.state == chatWaitingState {
		prompt = c.spinner.View() + " " + c.waitingStatus(c.now())
	} else {
		prompt = c.input.View()
	}

	return strings.Join([]string{title, c.viewport.View(), divider, prompt, c.footer()}, "\n")
}

// AllowSearch reports whether the next request enables web search.
func (c *Chat) AllowSearch() bool {
	return c.opts.AllowSearch
}

// LastAnswer returns the most recent agent answer.
func (c *Chat) LastAnswer() string {
	return c.lastAnswer
}

func (c *Chat) askCmd(prompt string) tea.Cmd {
	c.cancelActive()
	c.seq++
	seq := c.seq

	ctx, cancel := context.WithCancel(c.ctx)
	c.activeCancel = cancel

	req := api.ChatRequest{
		ModelName:    c.opts.Model,
		SystemPrompt: c.opts.System,
		Messages:     []string{prompt},
		AllowSearch:  c.opts.AllowSearch,
	}
	chatter := c.client
	return func() tea.Msg {
		if chatter == nil {
			return chatErrMsg{seq: seq, err: errors.New("no API client configured")}
		}
		answer, err := chatter.Chat(ctx, req)
		if err != nil {
			return chatErrMsg{seq: seq, err: err}
		}
		return chatAnswerMsg{seq: seq, answer: answer}
	}
}

func (c *Chat) finishTurn() {
	c.cancelActive()
	c.state = chatInputState
	c.waitingSince = time.Time{}
}

func (c *Chat) cancelActive() {
	if c.activeCancel != nil {
		c.activeCancel()
		c.activeCancel = nil
	}
}

func (c *Chat) footer() string {
	parts := []string{
		"model " + c.opts.Model,
		"search " + onOff(c.opts.AllowSearch) + " (ctrl+s)",
	}
	if !c.lastAnswerAt.IsZero() {
		parts = append(parts, "answered "+timeago.Of(c.lastAnswerAt), "ctrl+y copy")
	}
	line := c.styles.Comment.Render(strings.Join(parts, " · "))
	if c.flash != "" {
		line += "  " + c.styles.Status.Render(c.flash)
	}
	return line
}

func (c *Chat) waitingStatus(now time.Time) string {
	if c.waitingSince.IsZero() {
		return c.styles.Comment.Render("Waiting for response...")
	}
	elapsed := max(now.Sub(c.waitingSince), 0)
	return c.styles.Comment.Render("Waiting for response... [" + formatElapsedClock(elapsed) + "]")
}

func (c *Chat) refreshViewport() {
	if c.transcript.Len() == 0 {
		return
	}
	rendered := present.RenderMarkdown(c.glam, c.transcript.String())
	if c.width > 0 {
		rendered = c.renderer.NewStyle().MaxWidth(c.width).Render(rendered)
	}
	c.viewport.SetContent(rendered)
	c.viewport.GotoBottom()
}

// title, divider, prompt and footer.
const chromeLines = 4

func (c *Chat) resizeViewport() {
	c.viewport.Width = max(c.width, 1)
	c.viewport.Height = max(c.height-chromeLines, 1)
}

func describeError(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s (HTTP %d)", apiErr.Detail, apiErr.StatusCode)
	}
	return err.Error()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatElapsedClock(d time.Duration) string {
	totalSeconds := int(d / time.Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
