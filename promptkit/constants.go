package promptkit

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "promptkit"
	DefaultEnvPrefix    = "PROMPTKIT"
	DefaultModel        = "gemini-2.0-flash"
	DefaultHistoryLimit = 10
	DefaultUserAgent    = DefaultAppName + "/1.0"
)

var (
	DefaultConfigPath = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir    = filepath.Join(userDataDir(), DefaultAppName)
	DefaultStorePath  = filepath.Join(DefaultDataDir, "sessions.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
