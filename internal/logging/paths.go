package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.onedesk/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".onedesk", "logs")
	}
	return filepath.Join(home, ".onedesk", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
