package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/vmcrypt/internal/registry"
)

func TestVolumeTypeValue(t *testing.T) {
	var v volumeTypeValue
	assert.NoError(t, v.Set("Data"))
	assert.Equal(t, "data", v.String())
	assert.NoError(t, v.Set("ALL"))
	assert.Equal(t, "all", v.String())
	assert.Error(t, v.Set("swap"))
	assert.Equal(t, "all", v.String())
	assert.Equal(t, "volumeType", v.Type())
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"devices"}, {"topology"}, {"tree"}, {"status"}, {"skip-check"},
		{"crypt", "list"}, {"crypt", "add"}, {"crypt", "update"}, {"crypt", "remove"},
		{"consolidate"}, {"events"}, {"identify"}, {"mark", "set"}, {"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if assert.NoError(t, err, path) {
			assert.Equal(t, path[len(path)-1], cmd.Name())
		}
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "", firstLine(""))
	assert.Equal(t, "one", firstLine("one"))
	assert.Equal(t, "2 errors occurred: ...", firstLine("2 errors occurred:\n\t* a\n\t* b"))
}

func TestItemFromFlags(t *testing.T) {
	cmd := cryptAddCmd
	assert.NoError(t, cmd.Flags().Set("mount-point", "/data"))
	assert.NoError(t, cmd.Flags().Set("fs", "xfs"))
	assert.NoError(t, cmd.Flags().Set("slot", "1"))

	item := itemFromFlags(cmd, []string{"data1", "/dev/sdc1"})
	assert.Equal(t, "data1", item.MapperName)
	assert.Equal(t, "/dev/sdc1", item.DevPath)
	assert.Equal(t, "/data", item.MountPoint)
	assert.Equal(t, "xfs", item.FileSystem)
	assert.Equal(t, 1, item.CurrentLuksSlot)
	assert.False(t, item.UsesCleartextKey)
	assert.Equal(t, "", item.LuksHeaderPath)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(&exitError{code: 2}))
	assert.Equal(t, 2, exitCode(fmt.Errorf("skip-check: %w", &exitError{code: 2})))
}

// writeTestConfig points every path the app opens into a temp dir
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`registry: %[1]s/azure_crypt_mount
os_release: %[1]s/os-release
marks:
  encryption: %[1]s/encryption_config.ini
  decryption: %[1]s/decryption_config.ini
journal:
  enabled: true
  path: %[1]s/journal.db
log:
  level: error
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestFailingCommandClosesJournal(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var opened *app
	restore := newApp
	newApp = func() (*app, error) {
		a, err := openApp()
		opened = a
		return a, err
	}
	t.Cleanup(func() {
		newApp = restore
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"--config", cfgPath, "crypt", "remove", "nosuch"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no crypt item named nosuch")
	assert.Equal(t, 1, exitCode(err))

	require.NotNil(t, opened)
	require.NotNil(t, opened.journal)
	// the handler returned through its deferred Close
	assert.Error(t, opened.journal.RecordEvent(registry.EventRemoved, "nosuch", "", nil))
}

func TestMissingConfigIsReturned(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "crypt", "list"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
