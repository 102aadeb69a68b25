package diskutil

import (
	"fmt"
	"strings"

	"github.com/sigreer/vmcrypt/internal/distro"
)

// nonDataMounts are mount points never counted as data volumes
var nonDataMounts = map[string]bool{
	"/mnt":                  true,
	"/":                     true,
	"/oldroot/mnt/resource": true,
	"/oldroot/boot":         true,
	"/oldroot":              true,
	"/mnt/resource":         true,
	"/boot":                 true,
}

var dataFileSystems = map[string]bool{
	"ext2": true,
	"ext3": true,
	"ext4": true,
	"xfs":  true,
}

// EncryptionStatus derives the OS and data volume state from the mount
// table, the OS disk layout and any pending request marks
func (d *DiskUtil) EncryptionStatus() (EncryptionStatus, error) {
	status := EncryptionStatus{OS: NotEncrypted, Data: NotEncrypted}

	mounts, err := d.MountItems()
	if err != nil {
		return status, err
	}

	dataFound := false
	dataEncrypted := true
	for _, m := range mounts {
		if !dataFileSystems[m.FS] || nonDataMounts[m.Dest] {
			continue
		}
		dataFound = true
		if !strings.Contains(m.Src, "/dev/mapper") {
			d.logger.Infof("Data volume %s is mounted from %s", m.Dest, m.Src)
			dataEncrypted = false
		}
	}

	osEncrypted, err := d.osVolumeEncrypted(mounts)
	if err != nil {
		return status, err
	}

	switch {
	case !dataFound:
		status.Data = NotMounted
	case dataEncrypted:
		status.Data = Encrypted
	}
	if osEncrypted {
		status.OS = Encrypted
	}

	switch {
	case d.decryptionMark != nil && d.decryptionMark.ConfigFileExists():
		status.Data = DecryptionInProgress
	case d.encryptionMark != nil && d.encryptionMark.ConfigFileExists():
		volumeType := strings.ToLower(d.encryptionMark.VolumeType())
		if volumeType == VolumeTypeData || volumeType == VolumeTypeAll {
			status.Data = EncryptionInProgress
		}
		if volumeType == VolumeTypeOS || volumeType == VolumeTypeAll {
			status.OS = EncryptionInProgress
		}
	case d.exists("/dev/mapper/"+OSMapperName) && !osEncrypted:
		status.OS = VMRestartPending
	}

	return status, nil
}

// osVolumeEncrypted checks the LVM OS disk for an encrypted PV, or else
// whether / is mounted from a device-mapper device
func (d *DiskUtil) osVolumeEncrypted(mounts []MountItem) (bool, error) {
	lvm, err := d.IsOSDiskLVM()
	if err != nil {
		return false, err
	}

	if lvm {
		script := fmt.Sprintf("%s | grep /dev/mapper/%s", d.paths.Path(distro.Pvdisplay), OSMapperName)
		res, err := d.exec.ExecuteInShell(script, false, true)
		if err == nil && res.Success() && !d.exists(VolumesLVMMarker) {
			d.logger.Info("OS PV is encrypted")
			return true, nil
		}
		return false, nil
	}

	for _, m := range mounts {
		if m.Dest == "/" && (strings.Contains(m.Src, "/dev/mapper") || strings.Contains(m.Src, "/dev/dm")) {
			d.logger.Infof("OS volume %s is mounted from %s", m.Dest, m.Src)
			return true, nil
		}
	}
	return false, nil
}
