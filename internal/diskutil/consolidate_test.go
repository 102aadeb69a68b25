package diskutil

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/vmcrypt/internal/registry"
)

const passFile = "/var/lib/azure_disk_encryption_config/passphrase"

const luksInventory = `NAME="sda" TYPE="disk" FSTYPE="" MOUNTPOINT="" LABEL="" UUID="" MODEL="Virtual Disk" SIZE="32212254720" MAJ:MIN="8:0"
NAME="sda1" TYPE="part" FSTYPE="ext4" MOUNTPOINT="/" LABEL="" UUID="r" MODEL="" SIZE="32210140672" MAJ:MIN="8:1"
NAME="sdc" TYPE="disk" FSTYPE="crypto_LUKS" MOUNTPOINT="" LABEL="" UUID="l1" MODEL="Virtual Disk" SIZE="10737418240" MAJ:MIN="8:32"
NAME="sdd" TYPE="disk" FSTYPE="crypto_LUKS" MOUNTPOINT="" LABEL="" UUID="l2" MODEL="Virtual Disk" SIZE="10737418240" MAJ:MIN="8:48"
NAME="sde" TYPE="disk" FSTYPE="crypto_LUKS" MOUNTPOINT="" LABEL="" UUID="l3" MODEL="Virtual Disk" SIZE="10737418240" MAJ:MIN="8:64"
`

const lunMapper = "disk-azure-scsi1-lun0-unlocked"

func consolidationHarness(t *testing.T) *harness {
	h := newHarness(t)
	h.writeFile(t, ProcMountsPath, "/dev/sda1 / ext4 rw 0 0\n")
	for _, dev := range []string{"/dev/sda", "/dev/sda1", "/dev/sdc", "/dev/sdd", "/dev/sde"} {
		h.writeFile(t, dev, "")
	}
	h.writeFile(t, "/dev/disk/azure/scsi1/lun0", "")
	h.links["/dev/disk/azure/scsi1/lun0"] = "/dev/sdc"

	// sdc carries a backed up record, sdd has no filesystem, sde rejects the key
	h.writeFile(t, "/mnt/"+lunMapper+"/"+BackupMountInfoDir+"/"+registry.BackupFileName,
		"data1 /dev/disk/azure/scsi1/lun0 None /data ext4 False 1\n")

	h.fake.
		On(devicesCmd, 0, luksInventory).
		On("cryptsetup luksOpen /dev/sdc "+lunMapper+" -d "+passFile+" -q", 0, "").
		On("mount /dev/mapper/"+lunMapper+" /mnt/"+lunMapper, 0, "").
		On("umount /mnt/"+lunMapper, 0, "").
		On("cryptsetup luksClose "+lunMapper+" -q", 0, "").
		On("cryptsetup luksOpen /dev/sdd sdd-unlocked -d "+passFile+" -q", 0, "").
		On("mount /dev/mapper/sdd-unlocked /mnt/sdd-unlocked", 32, "").
		On("cryptsetup luksClose sdd-unlocked -q", 0, "").
		On("cryptsetup luksOpen /dev/sde sde-unlocked -d "+passFile+" -q", 2, "")
	return h
}

func TestTempMapperName(t *testing.T) {
	assert.Equal(t, "disk-azure-scsi1-lun1-unlocked", TempMapperName("/dev/disk/azure/scsi1/lun1"))
	assert.Equal(t, "mapper-lv0-unlocked", TempMapperName("/dev/mapper/lv0"))
	assert.Equal(t, "sdc-unlocked", TempMapperName("/dev/sdc"))
}

func TestConsolidate(t *testing.T) {
	h := consolidationHarness(t)

	err := h.d.ConsolidateAzureCryptMount(passFile)
	require.Error(t, err, "sde cannot be unlocked")
	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, merr.Error(), "/dev/sde")

	items, err := h.d.Registry().Read()
	require.NoError(t, err)
	assert.Equal(t, []registry.CryptItem{
		{MapperName: "data1", DevPath: "/dev/disk/azure/scsi1/lun0", MountPoint: "/data", FileSystem: "ext4", CurrentLuksSlot: 1},
		{MapperName: "sdd-unlocked", DevPath: "/dev/sdd", CurrentLuksSlot: registry.UnknownSlot},
	}, items)

	// every unlocked device is closed, every mounted one unmounted
	assert.Equal(t, 1, h.fake.Count("cryptsetup luksClose "+lunMapper+" -q"))
	assert.Equal(t, 1, h.fake.Count("umount /mnt/"+lunMapper))
	assert.Equal(t, 1, h.fake.Count("cryptsetup luksClose sdd-unlocked -q"))
	assert.Equal(t, 0, h.fake.Count("umount /mnt/sdd-unlocked"))
	assert.Equal(t, 0, h.fake.Count("cryptsetup luksClose sde-unlocked -q"))

	assert.Len(t, h.rec.ofType(EventConsolidated), 2)
	assert.Len(t, h.rec.ofType(EventMountFailed), 1)
	assert.Equal(t, []event{{EventUnlockFailed, "sde-unlocked", "/dev/sde"}}, h.rec.ofType(EventUnlockFailed))
}

func TestConsolidate_Idempotent(t *testing.T) {
	h := consolidationHarness(t)

	_ = h.d.ConsolidateAzureCryptMount(passFile)
	first := h.readFile(t, registry.DefaultPath)

	_ = h.d.ConsolidateAzureCryptMount(passFile)
	assert.Equal(t, first, h.readFile(t, registry.DefaultPath))

	assert.Equal(t, 1, h.fake.Count("cryptsetup luksOpen /dev/sdc "+lunMapper+" -d "+passFile+" -q"))
	assert.Equal(t, 1, h.fake.Count("cryptsetup luksOpen /dev/sdd sdd-unlocked -d "+passFile+" -q"))
	assert.Equal(t, 2, h.fake.Count("cryptsetup luksOpen /dev/sde sde-unlocked -d "+passFile+" -q"))
}

func TestConsolidate_SkipsRegisteredMapperFromBackup(t *testing.T) {
	h := consolidationHarness(t)
	h.writeFile(t, registry.DefaultPath, "data1 /dev/sdf None /data ext4 False 0\n")

	_ = h.d.ConsolidateAzureCryptMount(passFile)

	items, err := h.d.Registry().Read()
	require.NoError(t, err)

	count := 0
	for _, it := range items {
		if it.MapperName == "data1" {
			count++
			assert.Equal(t, "/dev/sdf", it.DevPath)
		}
	}
	assert.Equal(t, 1, count)
}

func TestConsolidate_NoBackupRegistersBare(t *testing.T) {
	h := consolidationHarness(t)
	require.NoError(t, h.fs.RemoveAll("/mnt/"+lunMapper))

	_ = h.d.ConsolidateAzureCryptMount(passFile)

	items, err := h.d.Registry().Read()
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, registry.CryptItem{
		MapperName:      lunMapper,
		DevPath:         "/dev/disk/azure/scsi1/lun0",
		CurrentLuksSlot: registry.UnknownSlot,
	}, items[0])
	assert.Len(t, h.rec.ofType(EventNoBackup), 1)
	assert.Equal(t, 1, h.fake.Count("umount /mnt/"+lunMapper))
}
