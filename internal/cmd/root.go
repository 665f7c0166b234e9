package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/caarlos0/go-shellwords"
	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"

	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/logging"
	"github.com/dotcommander/multiagent/internal/present"
	"github.com/dotcommander/multiagent/internal/supervisor"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
}

// NewRootCmd constructs the Cobra root command. Run without a subcommand it
// supervises the API and the UI.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           "multiagent",
		Short:         "Chat with an LLM agent that can search the web.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		Example:       randomExample(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if err := rt.setupLogging(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.runSupervisor(ctx)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newAPICmd(rt))
	rootCmd.AddCommand(newUICmd(rt))
	rootCmd.AddCommand(newHealthCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.Var(newDurationFlag(cfg.GracePeriod, &cfg.GracePeriod), "grace", present.StdoutStyles().FlagDesc.Render(helpText["grace"]))
	flags.Var(newDurationFlag(cfg.ShutdownTimeout, &cfg.ShutdownTimeout), "shutdown-timeout", present.StdoutStyles().FlagDesc.Render(helpText["shutdown-timeout"]))
	flags.StringVar(&cfg.BackendCmd, "backend-cmd", cfg.BackendCmd, present.StdoutStyles().FlagDesc.Render(helpText["backend-cmd"]))
	flags.StringVar(&cfg.FrontendCmd, "frontend-cmd", cfg.FrontendCmd, present.StdoutStyles().FlagDesc.Render(helpText["frontend-cmd"]))
	initLogFlags(cmd, cfg)
	flags.SortFlags = false
}

func initLogFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, present.StdoutStyles().FlagDesc.Render(helpText["log-level"]))
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, present.StdoutStyles().FlagDesc.Render(helpText["log-format"]))
}

func (rt *runtime) setupLogging() error {
	if err := logging.Setup(rt.cfg.LogLevel, rt.cfg.LogFormat, os.Stderr); err != nil {
		return errs.Wrap(err, "Could not set up logging.")
	}
	return nil
}

func (rt *runtime) runSupervisor(ctx context.Context) error {
	cfg, err := rt.supervisorConfig()
	if err != nil {
		return err
	}

	out, closeOut, err := backendOutput()
	if err != nil {
		return err
	}
	defer closeOut()
	cfg.BackendOutput = out

	if err := supervisor.New(cfg).Run(ctx); err != nil {
		if errors.Is(err, supervisor.ErrBackendExited) {
			return errs.Error{Err: err, Reason: "The API service exited during startup."}
		}
		return err
	}
	return nil
}

func (rt *runtime) supervisorConfig() (supervisor.Config, error) {
	self, err := os.Executable()
	if err != nil {
		return supervisor.Config{}, errs.Wrap(err, "Could not locate the multiagent executable.")
	}

	backend, err := commandLine(rt.cfg.BackendCmd, []string{
		self, "api", "--host", rt.cfg.Host, "--port", strconv.Itoa(rt.cfg.Port),
	})
	if err != nil {
		return supervisor.Config{}, err
	}
	frontend, err := commandLine(rt.cfg.FrontendCmd, []string{
		self, "ui", "--api-url", rt.cfg.APIURL,
	})
	if err != nil {
		return supervisor.Config{}, err
	}

	return supervisor.Config{
		Backend:         backend,
		Frontend:        frontend,
		GracePeriod:     rt.cfg.GracePeriod,
		ShutdownTimeout: rt.cfg.ShutdownTimeout,
		ProjectRoot:     rt.cfg.ProjectRoot,
		SearchPathEnv:   rt.cfg.SearchPathEnv,
	}, nil
}

// commandLine splits line with shell quoting rules, or returns fallback when
// line is blank.
func commandLine(line string, fallback []string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return fallback, nil
	}
	args, err := shellwords.Parse(line)
	if err != nil {
		return nil, errs.Wrap(err, fmt.Sprintf("Could not parse command %q.", line))
	}
	if len(args) == 0 {
		return fallback, nil
	}
	return args, nil
}

// backendOutput keeps API logs off the terminal while the UI owns it.
func backendOutput() (io.Writer, func(), error) {
	if !present.IsTerminal(os.Stderr) {
		return os.Stderr, func() {}, nil
	}
	path := filepath.Join(os.TempDir(), "multiagent-api.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, errs.Wrap(err, "Could not open the API log file.")
	}
	logging.For("cmd").Info().Str("path", path).Msg("Writing API logs to file")
	return f, func() { _ = f.Close() }, nil
}
