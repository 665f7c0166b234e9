package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/present"
)

func handleError(err error) {
	styles := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		args := []any{
			fmt.Sprintf(
				"Check out %s %s",
				styles.InlineCode.Render("multiagent -h"),
				styles.Comment.Render("for help."),
			),
			fmt.Sprintf(ferr.ReasonFormat(), styles.InlineCode.Render(ferr.Flag())),
		}
		fmt.Fprintf(os.Stderr, format+"%s\n\n", args...)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		formatArgs := []any{styles.ErrPadding.Render(styles.ErrorHeader.String(), merr.ReasonText())}
		if merr.Err != nil && !errors.Is(merr.Err, huh.ErrUserAborted) {
			format += "%s\n\n"
			formatArgs = append(formatArgs, styles.ErrPadding.Render(styles.ErrorDetails.Render(merr.Err.Error())))
		}
		fmt.Fprintf(os.Stderr, format, formatArgs...)
		return
	}

	fmt.Fprintf(os.Stderr, format, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
}
