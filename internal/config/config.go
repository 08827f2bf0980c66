package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pwsvc/internal/guardrail"
	"pwsvc/internal/logging"
)

// DefaultConfigPath is the config file looked up when --config is not given.
const DefaultConfigPath = "pwsvc.yaml"

// ErrMissingEnv is wrapped by the per-service validators.
var ErrMissingEnv = errors.New("missing required environment variables")

// Config holds all pwsvc configuration.
type Config struct {
	Name string `yaml:"name"`

	Paths     PathsConfig     `yaml:"paths"`
	LeftOff   LeftOffConfig   `yaml:"left_off"`
	OneDrive  OneDriveConfig  `yaml:"onedrive"`
	LLM       LLMConfig       `yaml:"llm"`
	Toggl     TogglConfig     `yaml:"toggl"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`

	// envErrs holds environment values that could not be parsed.
	envErrs []error
}

// PathsConfig locates the shared data directory.
type PathsConfig struct {
	// ProjectResources is the root; artifacts live under <root>/services-data.
	ProjectResources string `yaml:"project_resources"`
}

// LeftOffConfig configures the activity log digest.
type LeftOffConfig struct {
	TargetFileName string `yaml:"target_file_name"`
	RetentionDays  int    `yaml:"retention_days"`
	// TemplatePath overrides the built-in prompt template.
	TemplatePath string `yaml:"template_path"`
}

// OneDriveConfig configures the Graph download.
type OneDriveConfig struct {
	TargetFileID  string `yaml:"target_file_id"`
	ApplicationID string `yaml:"application_id"`
	ClientSecret  string `yaml:"client_secret"`
	RefreshToken  string `yaml:"refresh_token"`
	Tenant        string `yaml:"tenant"`
	GraphBaseURL  string `yaml:"graph_base_url"`
	RedirectURL   string `yaml:"redirect_url"`
	Timeout       string `yaml:"timeout"`
}

// LLMConfig configures the summarizer.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// TogglConfig configures the time tracking export.
type TogglConfig struct {
	APIToken     string `yaml:"api_token"`
	BaseURL      string `yaml:"base_url"`
	LookbackDays int    `yaml:"lookback_days"`
	Timeout      string `yaml:"timeout"`
}

// GuardrailConfig configures the execution window.
type GuardrailConfig struct {
	Anchor           string   `yaml:"anchor"` // HH:MM
	ToleranceMinutes int      `yaml:"tolerance_minutes"`
	Weekdays         []string `yaml:"weekdays"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Environment string `yaml:"environment"` // development, production
	AppName     string `yaml:"app_name"`
	Dir         string `yaml:"dir"`
	Level       string `yaml:"level"` // debug, info, warn, error
}

// StoreConfig configures the latest-artifact database.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "pwsvc",

		LeftOff: LeftOffConfig{
			TargetFileName: "LEFT-OFF.docx",
			RetentionDays:  7,
		},

		OneDrive: OneDriveConfig{
			Tenant:       "consumers",
			GraphBaseURL: "https://graph.microsoft.com/v1.0",
			RedirectURL:  "http://localhost:8000",
			Timeout:      "60s",
		},

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Toggl: TogglConfig{
			BaseURL:      "https://api.track.toggl.com/api/v9",
			LookbackDays: 7,
			Timeout:      "30s",
		},

		Guardrail: GuardrailConfig{
			Anchor:           guardrail.DefaultAnchor,
			ToleranceMinutes: int(guardrail.DefaultTolerance / time.Minute),
		},

		Logging: LoggingConfig{
			Environment: logging.EnvDevelopment,
			AppName:     "pwsvc",
		},

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: "pwsvc.db",
		},
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	setString(&c.Paths.ProjectResources, "PATH_PROJECT_RESOURCES")

	setString(&c.LeftOff.TargetFileName, "NAME_TARGET_FILE")
	if err := setInt(&c.LeftOff.RetentionDays, "RETENTION_DAYS"); err != nil {
		c.envErrs = append(c.envErrs, err)
	}
	setString(&c.LeftOff.TemplatePath, "PATH_SUMMARY_TEMPLATE")

	setString(&c.OneDrive.TargetFileID, "TARGET_FILE_ID")
	setString(&c.OneDrive.ApplicationID, "APPLICATION_ID")
	setString(&c.OneDrive.ClientSecret, "CLIENT_SECRET")
	setString(&c.OneDrive.RefreshToken, "REFRESH_TOKEN")

	// LLM provider and key: explicit provider first, then the first key found.
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	openaiKey, geminiKey := os.Getenv("KEY_OPENAI"), os.Getenv("GEMINI_API_KEY")
	switch {
	case c.LLM.Provider == "gemini" && geminiKey != "":
		c.LLM.APIKey = geminiKey
	case c.LLM.Provider == "openai" && openaiKey != "":
		c.LLM.APIKey = openaiKey
	case c.LLM.APIKey == "" && openaiKey != "":
		c.LLM.Provider, c.LLM.APIKey = "openai", openaiKey
	case c.LLM.APIKey == "" && geminiKey != "":
		c.LLM.Provider, c.LLM.APIKey = "gemini", geminiKey
	}
	setString(&c.LLM.BaseURL, "URL_BASE_OPENAI")
	setString(&c.LLM.Model, "LLM_MODEL")

	setString(&c.Toggl.APIToken, "TOGGL_API_TOKEN")

	setString(&c.Guardrail.Anchor, "TIME_WINDOW_START")
	if err := setInt(&c.Guardrail.ToleranceMinutes, "TIME_WINDOW_TOLERANCE"); err != nil {
		c.envErrs = append(c.envErrs, fmt.Errorf("%w: %v", guardrail.ErrInvalidWindow, err))
	}
	if days := os.Getenv("TIME_WINDOW_DAYS"); days != "" {
		c.Guardrail.Weekdays = strings.Split(days, ",")
	}

	setString(&c.Logging.Environment, "RUN_ENVIRONMENT")
	setString(&c.Logging.AppName, "NAME_APP")
	setString(&c.Logging.Dir, "PATH_TO_LOGS")
	setString(&c.Logging.Level, "LOG_LEVEL")

	setString(&c.Store.DatabasePath, "PWSVC_DB")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s=%q is not a whole number", key, v)
	}
	*dst = n
	return nil
}

// Validate validates the settings every run depends on.
func (c *Config) Validate() error {
	if c.Paths.ProjectResources == "" {
		return fmt.Errorf("%w: PATH_PROJECT_RESOURCES", ErrMissingEnv)
	}
	if err := errors.Join(c.envErrs...); err != nil {
		return err
	}
	if _, err := c.GuardrailWindow(); err != nil {
		return err
	}
	if c.LeftOff.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1, got %d", c.LeftOff.RetentionDays)
	}
	if c.Logging.Environment == logging.EnvProduction {
		if strings.TrimSpace(c.Logging.AppName) == "" {
			return fmt.Errorf("%w: NAME_APP", ErrMissingEnv)
		}
		if c.Logging.Dir == "" {
			return fmt.Errorf("%w: PATH_TO_LOGS", ErrMissingEnv)
		}
	}
	return nil
}

// ValidateLeftOff checks the settings needed by the LEFT-OFF digest.
func (c *Config) ValidateLeftOff() error {
	keyName := "KEY_OPENAI"
	if c.LLM.Provider == "gemini" {
		keyName = "GEMINI_API_KEY"
	}
	required := []struct {
		name  string
		value string
	}{
		{"TARGET_FILE_ID", c.OneDrive.TargetFileID},
		{"APPLICATION_ID", c.OneDrive.ApplicationID},
		{"CLIENT_SECRET", c.OneDrive.ClientSecret},
		{"REFRESH_TOKEN", c.OneDrive.RefreshToken},
		{keyName, c.LLM.APIKey},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	return nil
}

// ValidateToggl checks the settings needed by the Toggl export.
func (c *Config) ValidateToggl() error {
	if c.Toggl.APIToken == "" {
		return fmt.Errorf("%w: TOGGL_API_TOKEN", ErrMissingEnv)
	}
	if c.Toggl.LookbackDays < 1 {
		return fmt.Errorf("toggl lookback_days must be at least 1, got %d", c.Toggl.LookbackDays)
	}
	return nil
}

// GuardrailWindow resolves and validates the configured execution window.
func (c *Config) GuardrailWindow() (guardrail.Window, error) {
	for _, err := range c.envErrs {
		if errors.Is(err, guardrail.ErrInvalidWindow) {
			return guardrail.Window{}, err
		}
	}
	anchor, err := guardrail.ParseClock(c.Guardrail.Anchor)
	if err != nil {
		return guardrail.Window{}, fmt.Errorf("%w: %v", guardrail.ErrInvalidWindow, err)
	}
	days, err := guardrail.ParseWeekdays(c.Guardrail.Weekdays)
	if err != nil {
		return guardrail.Window{}, err
	}
	w := guardrail.Window{
		Anchor:    anchor,
		Tolerance: time.Duration(c.Guardrail.ToleranceMinutes) * time.Minute,
		Weekdays:  days,
	}
	if err := w.Validate(); err != nil {
		return guardrail.Window{}, err
	}
	return w, nil
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions(verbose bool) logging.Options {
	return logging.Options{
		Environment: c.Logging.Environment,
		AppName:     c.Logging.AppName,
		Dir:         c.Logging.Dir,
		Level:       c.Logging.Level,
		Verbose:     verbose,
	}
}

// ServicesDataDir is <project_resources>/services-data.
func (c *Config) ServicesDataDir() string {
	return filepath.Join(c.Paths.ProjectResources, "services-data")
}

// LeftOffFilePath is where the downloaded document is stored.
func (c *Config) LeftOffFilePath() string {
	return filepath.Join(c.ServicesDataDir(), "left-off-temp", c.LeftOff.TargetFileName)
}

// Artifact names read by downstream consumers. They stay fixed whatever the
// retention window.
const (
	ActivitiesFileName = "last-7-days-activities.md"
	SummaryFileName    = "left-off-7-day-summary.json"
	TogglCSVFileName   = "project_time_entries.csv"
)

// ActivitiesFilePath is where the extracted markdown is stored.
func (c *Config) ActivitiesFilePath() string {
	return filepath.Join(c.ServicesDataDir(), "left-off-temp", ActivitiesFileName)
}

// SummaryJSONPath is where the digest JSON is stored.
func (c *Config) SummaryJSONPath() string {
	return filepath.Join(c.ServicesDataDir(), SummaryFileName)
}

// TogglCSVPath is where the per-project totals are stored.
func (c *Config) TogglCSVPath() string {
	return filepath.Join(c.ServicesDataDir(), TogglCSVFileName)
}

// UsagePath is where LLM token usage is tracked.
func (c *Config) UsagePath() string {
	return filepath.Join(c.ServicesDataDir(), "llm-usage.json")
}

// DatabasePath resolves the artifact database; relative paths live in the data dir.
func (c *Config) DatabasePath() string {
	if c.Store.DatabasePath == "" || filepath.IsAbs(c.Store.DatabasePath) || c.Store.DatabasePath == ":memory:" {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.ServicesDataDir(), c.Store.DatabasePath)
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetOneDriveTimeout returns the download timeout as a duration.
func (c *Config) GetOneDriveTimeout() time.Duration {
	return parseDuration(c.OneDrive.Timeout, 60*time.Second)
}

// GetTogglTimeout returns the Toggl API timeout as a duration.
func (c *Config) GetTogglTimeout() time.Duration {
	return parseDuration(c.Toggl.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
