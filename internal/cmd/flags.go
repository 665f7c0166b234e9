package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/duration"
)

var helpText = map[string]string{
	"grace":            "Time the backend gets to come up before the UI starts",
	"shutdown-timeout": "Time each service gets to exit before it is killed",
	"backend-cmd":      "Command line of the backend service",
	"frontend-cmd":     "Command line of the frontend service",
	"log-level":        "Log level: trace, debug, info, warn or error",
	"log-format":       "Log format: auto, console or json",
	"host":             "Interface the API listens on",
	"port":             "Port the API listens on",
	"expose-traces":    "Append diagnostic traces to 500 responses",
	"request-timeout":  "Upper bound for a single agent call",
	"api-url":          "Base URL of the API",
	"model":            "Model to chat with",
	"system":           "System prompt: text, file:// path or http(s) URL",
	"edit-system":      "Write the system prompt in $EDITOR",
	"search":           "Let the agent search the web",
	"word-wrap":        "Wrap answers at this width",
}

type durationFlag time.Duration

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	if err != nil {
		return err //nolint:wrapcheck
	}
	*d = durationFlag(v)
	return nil
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}

var invalidArgumentRe = regexp.MustCompile(`invalid argument ".*" for "(.*)" flag: .*`)

func newFlagParseError(err error) flagParseError {
	var reason, flag string
	s := err.Error()
	switch {
	case strings.HasPrefix(s, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		if fields := strings.Fields(s); len(fields) > 0 {
			flag = fields[len(fields)-1]
		}
	case strings.HasPrefix(s, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = strings.TrimPrefix(s, "unknown flag: ")
	case strings.HasPrefix(s, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		if fields := strings.Fields(s); len(fields) > 0 {
			flag = fields[len(fields)-1]
		}
	case strings.HasPrefix(s, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		if parts := invalidArgumentRe.FindStringSubmatch(s); len(parts) > 1 {
			flag = parts[1]
		}
	default:
		reason = s
	}
	return flagParseError{err: err, reason: reason, flag: flag}
}

type flagParseError struct {
	err    error
	reason string
	flag   string
}

func (f flagParseError) Error() string {
	return f.err.Error()
}

func (f flagParseError) ReasonFormat() string {
	return f.reason
}

func (f flagParseError) Flag() string {
	return f.flag
}
