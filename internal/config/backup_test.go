package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupFile_MissingFileIsNoop(t *testing.T) {
	got, err := BackupFile(filepath.Join(t.TempDir(), DefaultFileName))

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackupFile_CopiesContent(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	// When: backing it up
	backup, err := BackupFile(path)

	// Then: the backup holds the original bytes
	require.NoError(t, err)
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "server:\n  port: 9000\n", string(data))
}

func TestBackupFile_KeepsMaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups("/nonexistent/dir/onedesk.yaml")

	require.NoError(t, err)
	assert.Empty(t, backups)
}
