package diskutil

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/vmcrypt/internal/registry"
)

const fstab = `UUID=1d5a9c8e / ext4 defaults,discard 0 1
/dev/mapper/data1 /data ext4 defaults,nofail 0 2
/dev/sdb1 /mnt/resource auto defaults,nofail 0 2`

func TestMountItems_DecodesEscapes(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, ProcMountsPath, "/dev/sdc1 /mnt/my\\040data ext4 rw 0 0\n/dev/sda1 / ext4 rw 0 0\n")

	items, err := h.d.MountItems()
	require.NoError(t, err)
	assert.Equal(t, []MountItem{
		{Src: "/dev/sdc1", Dest: "/mnt/my data", FS: "ext4"},
		{Src: "/dev/sda1", Dest: "/", FS: "ext4"},
	}, items)
}

func TestMountFilesystem(t *testing.T) {
	h := newHarness(t)
	h.fake.
		On("mount /dev/mapper/data /data -t xfs", 0, "").
		On("mount /dev/sdc /mnt/x", 32, "")

	assert.Equal(t, 0, h.d.MountFilesystem("/dev/mapper/data", "/data", "xfs"))
	assert.Equal(t, 32, h.d.MountFilesystem("/dev/sdc", "/mnt/x", ""))

	ok, _ := afero.DirExists(h.fs, "/data")
	assert.True(t, ok)
}

func TestMountAllAndCryptItems(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, registry.DefaultPath, "osencrypt /dev/sda1 None / ext4 False 2\npv1 /dev/sdd None None None False -1\ndata1 /dev/sdc1 None /data xfs False 1\n")
	h.fake.
		On("mount -a", 0, "").
		On("mount /dev/mapper/data1 /data -t xfs", 0, "")

	assert.Equal(t, 0, h.d.MountAll())
	assert.Equal(t, 0, h.d.MountCryptItem(registry.CryptItem{MapperName: "data1", MountPoint: "/data", FileSystem: "xfs"}))

	require.NoError(t, h.d.UmountAllCryptItems())
	assert.Equal(t, 1, h.fake.Count("umount /"))
	assert.Equal(t, 1, h.fake.Count("umount /data"))
	assert.Len(t, h.fake.Calls(), 4)
}

func TestAppendMountInfo(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "/etc/fstab", fstab)

	require.NoError(t, h.d.AppendMountInfo("/dev/mapper/data2", "/data2"))
	assert.Equal(t, fstab+"\n/dev/mapper/data2 /data2  auto defaults 0 0", h.readFile(t, "/etc/fstab"))

	backups, err := afero.Glob(h.fs, "/etc/fstab.backup.*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, fstab, h.readFile(t, backups[0]))
}

func TestRemoveAndRestoreMountInfo(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "/etc/fstab", fstab)

	require.NoError(t, h.d.RemoveMountInfo("/data"))
	assert.NotContains(t, h.readFile(t, "/etc/fstab"), "/dev/mapper/data1")
	assert.Contains(t, h.readFile(t, "/etc/fstab"), "/mnt/resource")
	assert.Contains(t, h.readFile(t, "/etc/fstab.azure.backup"), "/dev/mapper/data1 /data ext4 defaults,nofail 0 2")

	require.NoError(t, h.d.RestoreMountInfo("/data"))
	restored := h.readFile(t, "/etc/fstab")
	assert.Equal(t, 1, strings.Count(restored, "/dev/mapper/data1 /data ext4 defaults,nofail 0 2"))
	assert.NotContains(t, h.readFile(t, "/etc/fstab.azure.backup"), "/data ")

	backups, err := afero.Glob(h.fs, "/etc/fstab.backup.*")
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestRemoveMountInfo_EmptyMountPoint(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.d.RemoveMountInfo(""))
	assert.NoError(t, h.d.RestoreMountInfo(""))
}
