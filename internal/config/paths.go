package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "sharedcal"

// DefaultDataDir is where the credential, idempotency and bootstrap state
// documents live unless storage.dir says otherwise.
func DefaultDataDir() string {
	return filepath.Join(userDataDir(), appDirName)
}

func userDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support")
	case "windows":
		if v := os.Getenv("APPDATA"); v != "" {
			return v
		}
		return filepath.Join(homeDir(), "AppData", "Roaming")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".local", "share")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}

// resolvePath anchors a relative document name in dir.
func resolvePath(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
