package longtake

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DirectorConfig configures scenario runs.
//
// No environment address is built in: BaseURL and the output folders come
// from a config file, LONGTAKE_* variables or command-line flags.
//
// Example usage:
//
//	config := longtake.DefaultDirectorConfig()
//	config.BaseURL = "http://localhost:5173"
//	config.Timeout = 10 * time.Second // shorter waits for a local dev server
//
//	director := longtake.NewDirector(page, config)
type DirectorConfig struct {
	// BaseURL relative navigation and URL conditions resolve against
	BaseURL string `yaml:"base_url"`
	// EvidenceDir receives one folder of screenshots per scenario
	EvidenceDir string `yaml:"evidence_dir"`
	// ReportDir receives HTML reports
	ReportDir string `yaml:"report_dir"`

	// Timeout is the default deadline for WaitFor conditions
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is the default condition polling cadence
	PollInterval time.Duration `yaml:"poll_interval"`
	// NavigationTimeout bounds page loads (0 = only the caller's context)
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	// ActionTimeout bounds a single click
	ActionTimeout time.Duration `yaml:"action_timeout"`
	// CaptureTimeout bounds the final evidence capture
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	// Parallel is the number of scenarios run at once
	Parallel int `yaml:"parallel"`

	Headless   bool   `yaml:"headless"`
	ChromePath string `yaml:"chrome_path"`
	RemoteURL  string `yaml:"remote_url"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// DefaultDirectorConfig returns a DirectorConfig with sensible defaults.
//
// The default configuration provides:
//   - 30 second condition timeout polled every 100ms
//   - 30 second navigation, 10 second click and capture bounds
//   - evidence under ./evidence, reports under ./reports
//   - four concurrent scenarios in a headless 1280x800 browser
func DefaultDirectorConfig() DirectorConfig {
	return DirectorConfig{
		EvidenceDir:       "evidence",
		ReportDir:         "reports",
		Timeout:           30 * time.Second,
		PollInterval:      100 * time.Millisecond,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     10 * time.Second,
		CaptureTimeout:    10 * time.Second,
		Parallel:          4,
		Headless:          true,
		Width:             1280,
		Height:            800,
	}
}

// LoadConfig reads a YAML config file over the defaults and then applies
// LONGTAKE_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (DirectorConfig, error) {
	config := DefaultDirectorConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// Validate rejects configurations the runner cannot honor.
func (c DirectorConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.EvidenceDir == "" {
		return fmt.Errorf("evidence dir must be set")
	}
	return nil
}

func (c *DirectorConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("LONGTAKE_BASE_URL", &c.BaseURL)
	str("LONGTAKE_EVIDENCE_DIR", &c.EvidenceDir)
	str("LONGTAKE_REPORT_DIR", &c.ReportDir)
	str("LONGTAKE_CHROME_PATH", &c.ChromePath)
	str("LONGTAKE_REMOTE_URL", &c.RemoteURL)

	if v, ok := lookup("LONGTAKE_HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LONGTAKE_HEADLESS: %w", err)
		}
		c.Headless = b
	}

	for key, dst := range map[string]*time.Duration{
		"LONGTAKE_TIMEOUT":            &c.Timeout,
		"LONGTAKE_POLL_INTERVAL":      &c.PollInterval,
		"LONGTAKE_NAVIGATION_TIMEOUT": &c.NavigationTimeout,
		"LONGTAKE_ACTION_TIMEOUT":     &c.ActionTimeout,
		"LONGTAKE_CAPTURE_TIMEOUT":    &c.CaptureTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"LONGTAKE_PARALLEL": &c.Parallel,
		"LONGTAKE_WIDTH":    &c.Width,
		"LONGTAKE_HEIGHT":   &c.Height,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}
