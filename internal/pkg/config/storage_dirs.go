package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppDirName = "sensor-monitor"
	DBName     = "sensor-monitor.sqlite"
)

func DataDir() string {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, AppDirName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		currentDir, err := os.Getwd()
		if err != nil {
			return "."
		}
		return currentDir
	}

	localSharePath := filepath.Join(homeDir, ".local", "share")
	if _, err := os.Stat(localSharePath); err == nil {
		return filepath.Join(localSharePath, AppDirName)
	}
	return filepath.Join(homeDir, fmt.Sprintf(".%s", AppDirName))
}

func ConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppDirName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	localConfigPath := filepath.Join(homeDir, ".config")
	if _, err := os.Stat(localConfigPath); err == nil {
		return filepath.Join(localConfigPath, AppDirName)
	}
	return filepath.Join(homeDir, fmt.Sprintf(".%s", AppDirName))
}
