package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/kvc-indicator/internal/presentation"
	"github.com/example/kvc-indicator/internal/service"
)

const (
	configDirName  = "kvc-indicator"
	configFileName = "config.yaml"

	// PathEnv overrides the configuration file location.
	PathEnv = "KVC_INDICATOR_CONFIG_PATH"

	defaultServiceName     = "kerio-kvc"
	defaultTimeout         = 30 * time.Second
	defaultRefreshInterval = 30 * time.Second
)

// Config represents the persisted configuration file.
type Config struct {
	Service Service `yaml:"service"`
	Tray    Tray    `yaml:"tray"`
	Labels  Labels  `yaml:"labels"`
}

// Service selects the unit and how it is controlled.
type Service struct {
	Name    string          `yaml:"name"`
	Backend service.Backend `yaml:"backend"`
	User    bool            `yaml:"user"`
	// Timeout bounds each probe, stop and restart.
	Timeout time.Duration `yaml:"timeout"`
}

// Tray configures the indicator itself.
type Tray struct {
	Tooltip string `yaml:"tooltip"`
	// RefreshInterval is how often the state is re-probed without a click.
	// Zero disables polling.
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	Watch           bool          `yaml:"watch"`
	Notify          bool          `yaml:"notify"`
	Console         bool          `yaml:"console"`
	Icons           Icons         `yaml:"icons"`
}

// Icons points at image files replacing the built-in icons.
type Icons struct {
	Started string `yaml:"started"`
	Stopped string `yaml:"stopped"`
}

// Labels holds the menu texts.
type Labels struct {
	Status StateLabels `yaml:"status"`
	Action StateLabels `yaml:"action"`
	Quit   string      `yaml:"quit"`
}

// StateLabels holds the text of one menu entry for each service state.
type StateLabels struct {
	Active   string `yaml:"active"`
	Inactive string `yaml:"inactive"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Service: Service{
			Name:    defaultServiceName,
			Backend: service.BackendSystemctl,
			Timeout: defaultTimeout,
		},
		Tray: Tray{
			Tooltip:         defaultServiceName,
			RefreshInterval: defaultRefreshInterval,
			Watch:           true,
			Notify:          true,
		},
		Labels: DefaultLabels(defaultServiceName),
	}
}

// DefaultLabels returns the stock menu texts for the named service.
func DefaultLabels(name string) Labels {
	return Labels{
		Status: StateLabels{Active: "Status: Started", Inactive: "Status: Stopped"},
		Action: StateLabels{
			Active:   fmt.Sprintf("Stop %s service", name),
			Inactive: fmt.Sprintf("Start %s service", name),
		},
		Quit: "Quit",
	}
}

// Path returns the resolved configuration file path.
func Path() (string, error) {
	if custom := strings.TrimSpace(os.Getenv(PathEnv)); custom != "" {
		return custom, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine user config dir: %w", err)
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

// Load reads the configuration at path. An empty path resolves through Path.
// A missing file yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		resolved, err := Path()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	cfg.Labels = Labels{}
	cfg.Tray.Tooltip = ""
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillLabels()
	if cfg.Tray.Tooltip == "" {
		cfg.Tray.Tooltip = strings.TrimSpace(cfg.Service.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories. An empty path
// resolves through Path.
func Save(cfg *Config, path string) error {
	if path == "" {
		resolved, err := Path()
		if err != nil {
			return err
		}
		path = resolved
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tempFile, path)
}

// Validate checks the values a YAML decode cannot. Menu labels are checked by
// presentation.NewTable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return errors.New("service.name is required")
	}
	switch c.Service.Backend {
	case service.BackendSystemctl, service.BackendDBus:
	default:
		return fmt.Errorf("unsupported service.backend: %q", c.Service.Backend)
	}
	if c.Service.Timeout <= 0 {
		return errors.New("service.timeout must be positive")
	}
	if c.Tray.RefreshInterval < 0 {
		return errors.New("tray.refreshInterval must not be negative")
	}
	return nil
}

// fillLabels takes every label left empty from the defaults for the
// configured service name.
func (c *Config) fillLabels() {
	defaults := DefaultLabels(strings.TrimSpace(c.Service.Name))
	fill := func(dst *string, value string) {
		if *dst == "" {
			*dst = value
		}
	}
	fill(&c.Labels.Status.Active, defaults.Status.Active)
	fill(&c.Labels.Status.Inactive, defaults.Status.Inactive)
	fill(&c.Labels.Action.Active, defaults.Action.Active)
	fill(&c.Labels.Action.Inactive, defaults.Action.Inactive)
	fill(&c.Labels.Quit, defaults.Quit)
}

// ServiceOptions converts the service section for service.New.
func (c *Config) ServiceOptions() service.Options {
	return service.Options{
		Unit:    c.Service.Name,
		Backend: c.Service.Backend,
		User:    c.Service.User,
	}
}

// Table builds the presentation table from the configured labels.
func (c *Config) Table() (*presentation.Table, error) {
	return presentation.NewTable(presentation.Config{
		Status: presentation.Labels{Active: c.Labels.Status.Active, Inactive: c.Labels.Status.Inactive},
		Action: presentation.Labels{Active: c.Labels.Action.Active, Inactive: c.Labels.Action.Inactive},
		Quit:   c.Labels.Quit,
	})
}
