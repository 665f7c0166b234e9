package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/multiagent/internal/agent"
	"github.com/dotcommander/multiagent/internal/api"
	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/present"
)

func newAPICmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the chat API",
		Long:  "Serve GET /health and POST /chat until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if err := rt.setupLogging(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := agent.New(&rt.cfg, nil)
			return api.New(&rt.cfg, svc).Run(ctx)
		},
	}
	initAPIFlags(cmd, &rt.cfg)
	return cmd
}

func initAPIFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, present.StdoutStyles().FlagDesc.Render(helpText["host"]))
	flags.IntVar(&cfg.Port, "port", cfg.Port, present.StdoutStyles().FlagDesc.Render(helpText["port"]))
	flags.BoolVar(&cfg.ExposeTraces, "expose-traces", cfg.ExposeTraces, present.StdoutStyles().FlagDesc.Render(helpText["expose-traces"]))
	flags.Var(newDurationFlag(cfg.RequestTimeout, &cfg.RequestTimeout), "request-timeout", present.StdoutStyles().FlagDesc.Render(helpText["request-timeout"]))
	initLogFlags(cmd, cfg)
	flags.SortFlags = false
}
