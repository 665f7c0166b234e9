package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/dotcommander/multiagent/internal/client"
	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/present"
	"github.com/dotcommander/multiagent/internal/tui"
)

func newUICmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the interactive chat against a running API",
		Long:  "Start an interactive chat REPL. Type /exit or press Ctrl+C to quit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.runUI(cmd.Context())
		},
	}
	initUIFlags(cmd, &rt.cfg)
	return cmd
}

func initUIFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, present.StdoutStyles().FlagDesc.Render(helpText["api-url"]))
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, present.StdoutStyles().FlagDesc.Render(helpText["model"]))
	flags.StringVarP(&cfg.System, "system", "s", cfg.System, present.StdoutStyles().FlagDesc.Render(helpText["system"]))
	flags.BoolVarP(&cfg.EditSystem, "edit-system", "e", false, present.StdoutStyles().FlagDesc.Render(helpText["edit-system"]))
	flags.BoolVar(&cfg.AllowSearch, "search", cfg.AllowSearch, present.StdoutStyles().FlagDesc.Render(helpText["search"]))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, present.StdoutStyles().FlagDesc.Render(helpText["word-wrap"]))
	flags.SortFlags = false

	_ = cmd.RegisterFlagCompletionFunc("model", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, m := range cfg.AllowedModels {
			if strings.HasPrefix(m, toComplete) {
				out = append(out, m)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

func (rt *runtime) runUI(ctx context.Context) error {
	system, err := config.LoadPrompt(ctx, rt.cfg.System)
	if err != nil {
		return errs.Wrap(err, "Could not load the system prompt.")
	}

	if rt.cfg.EditSystem && present.IsInputTTY() {
		system, err = systemFromEditor(system)
		if err != nil {
			return errs.Wrap(err, "Could not edit the system prompt.")
		}
	}

	model, err := rt.pickModel()
	if err != nil {
		return err
	}

	chat := tui.NewChat(ctx, present.StderrRenderer(), client.New(rt.cfg.APIURL), tui.Options{
		Model:       model,
		System:      strings.TrimSpace(system),
		AllowSearch: rt.cfg.AllowSearch,
		WordWrap:    rt.cfg.WordWrap,
	})

	p := tea.NewProgram(chat, tea.WithAltScreen(), tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errs.Wrap(err, "Couldn't start chat program.")
	}

	if answer := chat.LastAnswer(); answer != "" && !present.IsOutputTTY() {
		fmt.Println(answer)
	}
	return nil
}

// pickModel returns the configured model, asking on a TTY when none is set.
func (rt *runtime) pickModel() (string, error) {
	if rt.cfg.Model != "" {
		return rt.cfg.Model, nil
	}
	if len(rt.cfg.AllowedModels) == 1 || !present.IsInputTTY() {
		return rt.cfg.AllowedModels[0], nil
	}

	opts := make([]huh.Option[string], 0, len(rt.cfg.AllowedModels))
	for _, m := range rt.cfg.AllowedModels {
		opts = append(opts, huh.NewOption(m, m))
	}
	model := rt.cfg.AllowedModels[0]
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the model:").
				Options(opts...).
				Value(&model),
		),
	).WithTheme(huh.ThemeCharm()).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errs.Error{Err: err, Reason: "User canceled."}
		}
		return "", errs.Error{Err: err, Reason: "Prompt failed."}
	}
	return model, nil
}

func systemFromEditor(initial string) (string, error) {
	f, err := os.CreateTemp("", "system-*.md")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()
	if _, err := f.WriteString(initial); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("could not write temporary file: %w", err)
	}
	_ = f.Close()

	c, err := editor.Cmd("multiagent", f.Name())
	if err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stderr = os.Stderr
	c.Stdout = os.Stdout
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	prompt, err := os.ReadFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	return string(prompt), nil
}
