package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/vmcrypt/internal/lsblk"
)

func TestParseLine_SevenFields(t *testing.T) {
	item, err := ParseLine("osencrypt /dev/sda1 None / ext4 False 2")
	require.NoError(t, err)
	assert.Equal(t, CryptItem{
		MapperName:      "osencrypt",
		DevPath:         "/dev/sda1",
		MountPoint:      "/",
		FileSystem:      "ext4",
		CurrentLuksSlot: 2,
	}, item)
}

func TestParseLine_SixFieldsHasUnknownSlot(t *testing.T) {
	item, err := ParseLine("data1 /dev/sdc1 /var/lib/luks/hdr /data xfs True\n")
	require.NoError(t, err)
	assert.Equal(t, UnknownSlot, item.CurrentLuksSlot)
	assert.Equal(t, "/var/lib/luks/hdr", item.LuksHeaderPath)
	assert.True(t, item.UsesCleartextKey)
}

func TestParseLine_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "data1 /dev/sdc1 None /data xfs"},
		{"bad slot", "data1 /dev/sdc1 None /data xfs False two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRegistryCorruption))
			assert.True(t, errors.Is(err, lsblk.ErrParse))

			var ce *CorruptionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.line, ce.Text)
		})
	}
}

func TestFormatLine_RoundTrip(t *testing.T) {
	items := []CryptItem{
		{MapperName: "osencrypt", DevPath: "/dev/sda1", MountPoint: "/", FileSystem: "ext4", CurrentLuksSlot: 2},
		{MapperName: "resencrypt", DevPath: "/dev/sdb1", LuksHeaderPath: "/boot/luks/hdr", MountPoint: "/mnt/resource", FileSystem: "ext4", UsesCleartextKey: true, CurrentLuksSlot: UnknownSlot},
		{MapperName: "pv1-unlocked", DevPath: "/dev/disk/azure/scsi1/lun0", CurrentLuksSlot: 0},
	}

	for _, item := range items {
		t.Run(item.MapperName, func(t *testing.T) {
			line := FormatLine(item)
			got, err := ParseLine(line)
			require.NoError(t, err)
			assert.Equal(t, item, got)
		})
	}
}

func TestFormatLine_EmptyFieldsAreNone(t *testing.T) {
	line := FormatLine(CryptItem{MapperName: "m", DevPath: "/dev/sdd", CurrentLuksSlot: UnknownSlot})
	assert.Equal(t, "m /dev/sdd None None None False -1", line)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(CryptItem{MapperName: "m", DevPath: "/dev/sdd"}))
	assert.Error(t, Validate(CryptItem{DevPath: "/dev/sdd"}))
	assert.Error(t, Validate(CryptItem{MapperName: "m", DevPath: "/dev/sdd", MountPoint: "/my data"}))
}
