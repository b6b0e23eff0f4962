package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "mailpilot.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/mailpilot"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *slog.Logger
	homeDir func() (string, error)
	workDir func() (string, error)
	getenv  func(string) string
}

// LoaderOption customizes where a Loader looks for its inputs.
type LoaderOption func(*Loader)

// WithHomeDir overrides the directory used to locate the user config.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = func() (string, error) { return dir, nil }
	}
}

// WithWorkDir overrides the directory where the project config search starts.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = func() (string, error) { return dir, nil }
	}
}

// WithGetenv overrides environment lookups.
func WithGetenv(getenv func(string) string) LoaderOption {
	return func(l *Loader) {
		l.getenv = getenv
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		logger:  logger,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/mailpilot/config.yaml)
// 3. Project config (mailpilot.yaml in current or parent directories)
// 4. Explicit config file (--config), when given
// 5. Environment variables (MAILPILOT_ENDPOINT, MAILPILOT_LOG_LEVEL, MAILPILOT_LOG_FILE)
//
// Flags are applied by the caller on top of the result, so the result is not
// validated here; call Validate once the flags are in.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if explicitPath != "" {
		explicit, err := LoadFromFile(explicitPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded explicit config", slog.String("path", explicitPath))
		config.Merge(explicit)
	}

	l.applyEnv(config)

	return config, nil
}

func (l *Loader) applyEnv(config *Config) {
	if v := l.getenv("MAILPILOT_ENDPOINT"); v != "" {
		config.Server.Endpoint = v
	}
	if v := l.getenv("MAILPILOT_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := l.getenv("MAILPILOT_LOG_FILE"); v != "" {
		config.Log.File = v
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", errors.New("cannot locate home directory for user config")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

// UserDataDir returns the directory holding user-level mailpilot state.
func (l *Loader) UserDataDir() string {
	home, err := l.homeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir)
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	dir := l.UserDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, UserConfigFile)
}

// findProjectConfig searches for mailpilot.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
