// Package config loads runner settings from stepci.yaml and STEPCI_*
// environment variables. Environment variables win over the file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given and it exists
const DefaultFile = "stepci.yaml"

const (
	EnvLocal  = "local"
	EnvDocker = "docker"
)

type Config struct {
	WorkDir     string `yaml:"work_dir"`
	Environment string `yaml:"environment"`
	Image       string `yaml:"image"`
	PullImage   bool   `yaml:"pull_image"`

	PackageManager   string `yaml:"package_manager"`
	Sudo             bool   `yaml:"sudo"`
	SkipPackageCheck bool   `yaml:"skip_package_check"`

	// JobTimeout applies to jobs that do not set their own.
	JobTimeout time.Duration `yaml:"-"`
	RawTimeout string        `yaml:"job_timeout"`

	CacheDir   string `yaml:"cache_dir"`
	LogsDir    string `yaml:"logs_dir"`
	LedgerPath string `yaml:"ledger"`
	KeysDir    string `yaml:"keys_dir"`
	RunnerID   string `yaml:"runner_id"`

	Addr      string `yaml:"addr"`
	ServerURL string `yaml:"server_url"`

	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	ReportFormat string `yaml:"report_format"`
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	host, _ := os.Hostname()
	return &Config{
		WorkDir:        ".",
		Environment:    EnvLocal,
		Image:          "rust:latest",
		PackageManager: "apt",
		KeysDir:        "./keys",
		RunnerID:       host,
		Addr:           ":8080",
		ServerURL:      "http://localhost:8080",
		LogLevel:       "info",
		LogFormat:      "text",
		ReportFormat:   "text",
	}
}

// Load reads path (or DefaultFile when path is empty and present), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, errors.Wrap(err, "read config")
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STEPCI_WORK_DIR":        &c.WorkDir,
		"STEPCI_ENVIRONMENT":     &c.Environment,
		"STEPCI_IMAGE":           &c.Image,
		"STEPCI_PACKAGE_MANAGER": &c.PackageManager,
		"STEPCI_JOB_TIMEOUT":     &c.RawTimeout,
		"STEPCI_CACHE_DIR":       &c.CacheDir,
		"STEPCI_LOGS_DIR":        &c.LogsDir,
		"STEPCI_LEDGER":          &c.LedgerPath,
		"STEPCI_KEYS_DIR":        &c.KeysDir,
		"STEPCI_RUNNER_ID":       &c.RunnerID,
		"STEPCI_ADDR":            &c.Addr,
		"STEPCI_SERVER_URL":      &c.ServerURL,
		"STEPCI_LOG_LEVEL":       &c.LogLevel,
		"STEPCI_LOG_FORMAT":      &c.LogFormat,
		"STEPCI_REPORT_FORMAT":   &c.ReportFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Addr = ":" + port
	}

	bools := map[string]*bool{
		"STEPCI_PULL_IMAGE":         &c.PullImage,
		"STEPCI_SUDO":               &c.Sudo,
		"STEPCI_SKIP_PACKAGE_CHECK": &c.SkipPackageCheck,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = b
	}
	return nil
}

// Validate normalizes paths and parses derived fields
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvLocal:
	case EnvDocker:
		if c.Image == "" {
			return errors.New("docker environment needs an image")
		}
	default:
		return errors.Errorf("unknown environment %q", c.Environment)
	}

	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err != nil {
			return errors.Wrap(err, "job_timeout")
		}
		if d < 0 {
			return errors.New("job_timeout must not be negative")
		}
		c.JobTimeout = d
	}

	abs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return errors.Wrap(err, "work_dir")
	}
	c.WorkDir = abs

	if c.RunnerID == "" {
		c.RunnerID = "local-runner"
	}
	return nil
}
