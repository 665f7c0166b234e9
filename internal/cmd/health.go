package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/multiagent/internal/client"
	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/present"
)

const healthTimeout = 5 * time.Second

func newHealthCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			h, err := client.New(rt.cfg.APIURL).Health(ctx)
			if err != nil {
				return errs.Wrap(err, fmt.Sprintf("API at %s is not reachable.", rt.cfg.APIURL))
			}
			styles := present.StdoutStyles()
			if h.Status != "healthy" {
				present.PrintConfirmation(os.Stdout, styles.Unhealthy, h.Status, h.Service)
				return errs.Error{Reason: fmt.Sprintf("API at %s reports %q.", rt.cfg.APIURL, h.Status)}
			}
			present.PrintConfirmation(os.Stdout, styles.Healthy, h.Status, h.Service)
			return nil
		},
	}
	cmd.Flags().StringVar(&rt.cfg.APIURL, "api-url", rt.cfg.APIURL, present.StdoutStyles().FlagDesc.Render(helpText["api-url"]))
	return cmd
}
