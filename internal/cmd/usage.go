package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/multiagent/internal/present"
)

func useLine(cmd *cobra.Command) string {
	appName := filepath.Base(os.Args[0])
	if present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		appName = present.MakeGradientText(present.StdoutStyles().AppName, appName)
	}

	args := "[OPTIONS]"
	if cmd.HasAvailableSubCommands() {
		args = "[COMMAND] [OPTIONS]"
	} else if cmd.HasParent() {
		args = cmd.Name() + " " + args
	}
	return fmt.Sprintf("%s %s", appName, present.StdoutStyles().CliArgs.Render(args))
}

func usageFunc(cmd *cobra.Command) error {
	styles := present.StdoutStyles()
	fmt.Printf("Usage:\n  %s\n\n", useLine(cmd))

	if cmd.HasAvailableSubCommands() {
		fmt.Println("Commands:")
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			fmt.Printf("  %-44s %s\n", styles.Flag.Render(sub.Name()), styles.FlagDesc.Render(sub.Short))
		}
		fmt.Println()
	}

	fmt.Println("Options:")
	cmd.Flags().VisitAll(func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			fmt.Printf(
				"  %-44s %s\n",
				styles.Flag.Render("--"+f.Name),
				styles.FlagDesc.Render(f.Usage),
			)
		} else {
			fmt.Printf(
				"  %s%s %-40s %s\n",
				styles.Flag.Render("-"+f.Shorthand),
				styles.FlagComma,
				styles.Flag.Render("--"+f.Name),
				styles.FlagDesc.Render(f.Usage),
			)
		}
	})
	if cmd.HasExample() {
		fmt.Printf(
			"\nExample:\n  %s\n  %s\n",
			styles.Comment.Render("# "+cmd.Example),
			cheapHighlighting(styles, examples[cmd.Example]),
		)
	}

	return nil
}
