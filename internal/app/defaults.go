package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DROPLOCK_CONFIG_PATH: config file location (default: ~/.config/droplock.toml)
//   - DROPLOCK_HOME: base directory for console data (default: ~/.local/share/droplock)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"log_dir":      filepath.Join(baseDir, "log"),
		"session_path": filepath.Join(baseDir, "session.toml"),
	}, nil
}

// AlertRecipientFromEnv returns DROPLOCK_ALERT_RECIPIENT, or fallback
// when it is unset.
func AlertRecipientFromEnv(fallback string) string {
	if r := os.Getenv("DROPLOCK_ALERT_RECIPIENT"); r != "" {
		return r
	}
	return fallback
}

func getConfigPath() (string, error) {
	if path := os.Getenv("DROPLOCK_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "droplock.toml"), nil
}

// getBaseDir falls back to the XDG default ~/.local/share/droplock.
func getBaseDir() (string, error) {
	if path := os.Getenv("DROPLOCK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "droplock"), nil
}
