package markconfig

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, DefaultEncryptionPath, nil)

	assert.False(t, m.ConfigFileExists())
	assert.Equal(t, "", m.VolumeType())
	assert.Equal(t, "", m.Command())

	require.NoError(t, m.Commit(Request{Command: "EnableEncryption", VolumeType: "Data", DiskFormatQuery: "[]"}))
	assert.True(t, m.ConfigFileExists())
	assert.Equal(t, "Data", m.VolumeType())
	assert.Equal(t, "EnableEncryption", m.Command())
	assert.Equal(t, "[]", m.DiskFormatQuery())

	ok, _ := afero.Exists(fs, DefaultEncryptionPath+".tmp")
	assert.False(t, ok)

	assert.True(t, m.Clear())
	assert.False(t, m.ConfigFileExists())
	assert.True(t, m.Clear())
}

func TestMarkMalformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, DefaultDecryptionPath, []byte("command: [unterminated"), 0o600))

	m := New(fs, DefaultDecryptionPath, nil)
	assert.True(t, m.ConfigFileExists())
	assert.Equal(t, "", m.Command())

	_, err := m.Load()
	assert.Error(t, err)
}
