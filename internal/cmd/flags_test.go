package cmd

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/multiagent/internal/config"
	"github.com/dotcommander/multiagent/internal/errs"
)

var flagParseErrorTests = []struct {
	in     string
	flag   string
	reason string
}{
	{
		"unknown flag: --nope",
		"--nope",
		"Flag %s is missing.",
	},
	{
		"flag needs an argument: --api-url",
		"--api-url",
		"Flag %s needs an argument.",
	},
	{
		"flag needs an argument: 'm' in -m",
		"-m",
		"Flag %s needs an argument.",
	},
	{
		"unknown shorthand flag: 'z' in -z",
		"-z",
		"Short flag %s is missing.",
	},
	{
		`invalid argument "20dd" for "--grace" flag: time: unknown unit "dd" in duration "20dd"`,
		"--grace",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "nope" for "--port" flag: strconv.ParseInt: parsing "nope": invalid syntax`,
		"--port",
		"Flag %s have an invalid argument.",
	},
}

func TestFlagParseError(t *testing.T) {
	for _, tf := range flagParseErrorTests {
		t.Run(tf.in, func(t *testing.T) {
			err := newFlagParseError(errors.New(tf.in))
			require.Equal(t, tf.flag, err.Flag())
			require.Equal(t, tf.reason, err.ReasonFormat())
			require.Equal(t, tf.in, err.Error())
		})
	}
}

func TestDurationFlags(t *testing.T) {
	cmd := NewRootCmd(BuildInfo{}, config.Default(), nil)

	require.Equal(t, "3s", cmd.Flag("grace").Value.String())
	require.NoError(t, cmd.ParseFlags([]string{"--grace", "1m", "--shutdown-timeout", "1d"}))
	require.Equal(t, "1m0s", cmd.Flag("grace").Value.String())
	require.Equal(t, (24 * time.Hour).String(), cmd.Flag("shutdown-timeout").Value.String())
	require.Equal(t, "duration", cmd.Flag("grace").Value.Type())

	require.Error(t, cmd.ParseFlags([]string{"--grace", "soon"}))
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCmd(BuildInfo{}, config.Default(), nil)

	api, _, err := cmd.Find([]string{"api"})
	require.NoError(t, err)
	require.NoError(t, api.ParseFlags([]string{"--port", "8080", "--request-timeout", "30s"}))
	require.Equal(t, "8080", api.Flag("port").Value.String())
	require.Equal(t, "30s", api.Flag("request-timeout").Value.String())

	ui, _, err := cmd.Find([]string{"ui"})
	require.NoError(t, err)
	require.NoError(t, ui.ParseFlags([]string{"-m", "llama-3.1-8b-instant", "--search"}))
	require.Equal(t, "llama-3.1-8b-instant", ui.Flag("model").Value.String())
	require.Equal(t, "true", ui.Flag("search").Value.String())
}

func TestCommandLine(t *testing.T) {
	fallback := []string{"self", "api"}
	for name, tc := range map[string]struct {
		line string
		want []string
	}{
		"blank":  {line: "  ", want: fallback},
		"simple": {line: "bin/api --port 1", want: []string{"bin/api", "--port", "1"}},
		"quoted": {line: `python -m "app main"`, want: []string{"python", "-m", "app main"}},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := commandLine(tc.line, fallback)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := commandLine(`echo "unterminated`, fallback)
	var e errs.Error
	require.ErrorAs(t, err, &e)
}

func TestSupervisorConfigDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.ProjectRoot = t.TempDir()
	rt := &runtime{cfg: cfg}

	sc, err := rt.supervisorConfig()
	require.NoError(t, err)

	self, err := os.Executable()
	require.NoError(t, err)
	require.Equal(t, []string{self, "api", "--host", "127.0.0.1", "--port", "9999"}, sc.Backend)
	require.Equal(t, []string{self, "ui", "--api-url", "http://127.0.0.1:9999"}, sc.Frontend)
	require.Equal(t, 3*time.Second, sc.GracePeriod)
	require.Equal(t, cfg.ProjectRoot, sc.ProjectRoot)
	require.Equal(t, "PATH", sc.SearchPathEnv)
}

func TestHealthCommand(t *testing.T) {
	for name, tc := range map[string]struct {
		body    string
		wantErr bool
	}{
		"healthy":   {body: `{"status":"healthy","service":"Multi AI Agent"}`},
		"unhealthy": {body: `{"status":"degraded","service":"Multi AI Agent"}`, wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			cmd := NewRootCmd(BuildInfo{}, config.Default(), nil)
			cmd.SetArgs([]string{"health", "--api-url", srv.URL})
			err := cmd.Execute()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigErrorIsReported(t *testing.T) {
	cfgErr := errs.Error{Reason: "Could not parse settings file."}
	cmd := NewRootCmd(BuildInfo{}, config.Default(), cfgErr)
	cmd.SetArgs([]string{"health"})
	require.ErrorIs(t, cmd.Execute(), cfgErr)
}

func TestVersionTemplate(t *testing.T) {
	v := versionTemplate(BuildInfo{Version: "1.0.0", CommitSHA: "0123456789abcdef"})
	require.Contains(t, v, "(0123456)")
	require.NotContains(t, versionTemplate(BuildInfo{CommitSHA: "abc"}), "(abc)")
}
