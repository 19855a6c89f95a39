package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeDirName is the per-project directory holding config, logs, history
// and sandboxes.
const HomeDirName = ".codeloop"

// HomeEnvVar overrides the home directory location.
const HomeEnvVar = "CODELOOP_HOME"

// defaultHome returns CODELOOP_HOME if set, otherwise ./.codeloop.
// The directory is not created.
func defaultHome() string {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home
	}
	return HomeDirName
}

// GetHome returns the codeloop home directory
// Priority order:
//  1. CODELOOP_HOME environment variable (if set)
//  2. .codeloop in the current working directory
//
// The directory is created if it doesn't exist
func GetHome() (string, error) {
	home := os.Getenv(HomeEnvVar)
	if home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		home = filepath.Join(cwd, HomeDirName)
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create codeloop home directory: %w", err)
	}
	return home, nil
}

// ConfigPath returns the config file location inside the home directory
// without creating anything.
func ConfigPath() string {
	return filepath.Join(defaultHome(), "config.yaml")
}
