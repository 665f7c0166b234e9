package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/multiagent/internal/errs"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "Multi AI Agent"

// Settings holds configuration loaded from the optional YAML settings file
// and environment variables.
type Settings struct {
	AllowedModels  []string `yaml:"allowed-models" env:"ALLOWED_MODELS" envSeparator:","`
	ModelAPI       string   `yaml:"model-api" env:"MODEL_API"`
	ModelBaseURL   string   `yaml:"model-base-url" env:"MODEL_BASE_URL"`
	ModelAPIKeyEnv string   `yaml:"model-api-key-env" env:"MODEL_API_KEY_ENV"`
	TavilyAPIKey   string   `yaml:"tavily-api-key" env:"TAVILY_API_KEY"`
	TavilyBaseURL  string   `yaml:"tavily-base-url" env:"TAVILY_BASE_URL"`

	Host           string        `yaml:"host" env:"HOST"`
	Port           int           `yaml:"port" env:"PORT"`
	ExposeTraces   bool          `yaml:"expose-traces" env:"EXPOSE_TRACES"`
	RequestTimeout time.Duration `yaml:"request-timeout" env:"REQUEST_TIMEOUT"`

	LogLevel  string `yaml:"log-level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log-format" env:"LOG_FORMAT"`

	GracePeriod     time.Duration `yaml:"grace-period" env:"GRACE_PERIOD"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT"`
	SearchPathEnv   string        `yaml:"search-path-env" env:"SEARCH_PATH_ENV"`
	ProjectRoot     string        `yaml:"project-root" env:"MULTIAGENT_ROOT"`
	BackendCmd      string        `yaml:"backend-cmd" env:"BACKEND_CMD"`
	FrontendCmd     string        `yaml:"frontend-cmd" env:"FRONTEND_CMD"`

	APIURL      string `yaml:"api-url" env:"API_URL"`
	Model       string `yaml:"default-model" env:"MODEL"`
	System      string `yaml:"system" env:"SYSTEM_PROMPT"`
	AllowSearch bool   `yaml:"allow-search" env:"ALLOW_SEARCH"`
	WordWrap    int    `yaml:"word-wrap" env:"WORD_WRAP"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	SettingsPath string
	EditSystem   bool
}

// Config is the application configuration (settings + runtime-only options).
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// Addr is the listen address of the API service.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsAllowedModel reports whether name is one of the allow-listed models.
func (s Settings) IsAllowedModel(name string) bool {
	return slices.Contains(s.AllowedModels, name)
}

// apiKeyEnvs names the key variable each model API reads when
// MODEL_API_KEY_ENV is not set.
var apiKeyEnvs = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"google":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// APIKeyEnv is the variable the model API key is read from.
func (s Settings) APIKeyEnv() string {
	if s.ModelAPIKeyEnv != "" {
		return s.ModelAPIKeyEnv
	}
	if name, ok := apiKeyEnvs[strings.ToLower(s.ModelAPI)]; ok {
		return name
	}
	return "GROQ_API_KEY"
}

// ModelAPIKey resolves the model API key from APIKeyEnv.
func (s Settings) ModelAPIKey() string {
	return os.Getenv(s.APIKeyEnv())
}

// ProviderLabel is the human name of the configured model API.
func (s Settings) ProviderLabel() string {
	switch strings.ToLower(s.ModelAPI) {
	case "groq", "":
		return "Groq"
	case "openai":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	case "google":
		return "Google"
	case "openrouter":
		return "OpenRouter"
	default:
		return s.ModelAPI
	}
}

// Load reads .env, the settings file and the environment, in that order.
func Load() (Config, error) {
	return LoadFiles(os.Getenv("MULTIAGENT_SETTINGS"), os.Getenv("DOTENV_PATH"))
}

// LoadFiles is Load with explicit file locations. Empty paths fall back to
// the defaults; missing files are not an error.
func LoadFiles(settingsPath, dotenvPath string) (Config, error) {
	c := Default()

	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, errs.Error{Err: err, Reason: "Could not read .env file."}
	}

	if settingsPath == "" {
		settingsPath = defaultSettingsPath()
	}
	c.SettingsPath = settingsPath
	if settingsPath != "" {
		content, err := os.ReadFile(settingsPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return c, errs.Error{Err: err, Reason: "Could not read settings file."}
		default:
			if err := yaml.Unmarshal(content, &c); err != nil {
				return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
			}
		}
	}

	if err := env.Parse(&c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings."}
	}

	if c.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return c, errs.Error{Err: err, Reason: "Could not determine working directory."}
		}
		c.ProjectRoot = wd
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate normalises and checks settings that would otherwise fail later.
func (s *Settings) Validate() error {
	models := s.AllowedModels[:0]
	for _, m := range s.AllowedModels {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	s.AllowedModels = models
	if len(s.AllowedModels) == 0 {
		return errs.UserErrorf("ALLOWED_MODELS must list at least one model")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return errs.UserErrorf("invalid port %d", s.Port)
	}
	if s.GracePeriod < 0 {
		return errs.UserErrorf("grace period must not be negative")
	}
	switch s.LogFormat {
	case "auto", "console", "json":
	default:
		return errs.UserErrorf("unknown log format %q, expected auto, console or json", s.LogFormat)
	}
	return nil
}

func defaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "multiagent", "multiagent.yml")
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			AllowedModels:   []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
			ModelAPI:        "groq",
			TavilyBaseURL:   "https://api.tavily.com",
			Host:            "127.0.0.1",
			Port:            9999,
			RequestTimeout:  2 * time.Minute,
			LogLevel:        "info",
			LogFormat:       "auto",
			GracePeriod:     3 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SearchPathEnv:   "PATH",
			APIURL:          "http://127.0.0.1:9999",
			WordWrap:        80,
		},
	}
}
