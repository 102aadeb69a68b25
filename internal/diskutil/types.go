package diskutil

import "fmt"

// Device types reported by lsblk that in-place encryption understands
const (
	TypeDisk   = "disk"
	TypePart   = "part"
	TypeLVM    = "lvm"
	TypeCrypt  = "crypt"
	TypeRaid0  = "raid0"
	TypeRaid1  = "raid1"
	TypeRaid5  = "raid5"
	TypeRaid10 = "raid10"
)

// FSTypeLUKS is the lsblk FSTYPE of a LUKS container
const FSTypeLUKS = "crypto_LUKS"

// MinFilesystemSizeSupport is the smallest device size, in bytes, that is
// encrypted in place
const MinFilesystemSizeSupport = 52428800

// DeviceItem is one block device as lsblk reports it
type DeviceItem struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	FileSystem string `json:"file_system,omitempty"`
	MountPoint string `json:"mount_point,omitempty"`
	Label      string `json:"label,omitempty"`
	UUID       string `json:"uuid,omitempty"`
	Model      string `json:"model,omitempty"`
	MajMin     string `json:"majmin"`
	Size       int64  `json:"size"`
	DeviceID   string `json:"device_id,omitempty"`
}

func (d DeviceItem) String() string {
	return fmt.Sprintf("%s type=%s fs=%s mount=%s size=%d", d.Name, d.Type, d.FileSystem, d.MountPoint, d.Size)
}

// LvmItem is one logical volume from lvs
type LvmItem struct {
	LVName      string `json:"lv_name"`
	VGName      string `json:"vg_name"`
	KernelMajor string `json:"lv_kernel_major"`
	KernelMinor string `json:"lv_kernel_minor"`
}

// MajMin returns the kernel device number in lsblk's MAJ:MIN form
func (l LvmItem) MajMin() string {
	return l.KernelMajor + ":" + l.KernelMinor
}

// MountItem is one /proc/mounts entry
type MountItem struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	FS   string `json:"fs"`
}

// EncryptionState is the encryption state of the OS or data volumes
type EncryptionState string

const (
	NotEncrypted         EncryptionState = "NotEncrypted"
	Encrypted            EncryptionState = "Encrypted"
	EncryptionInProgress EncryptionState = "EncryptionInProgress"
	DecryptionInProgress EncryptionState = "DecryptionInProgress"
	VMRestartPending     EncryptionState = "VMRestartPending"
	NotMounted           EncryptionState = "NotMounted"
)

// EncryptionStatus is the combined OS and data volume state
type EncryptionStatus struct {
	OS   EncryptionState `json:"os"`
	Data EncryptionState `json:"data"`
}

// Volume types named by an encryption request
const (
	VolumeTypeData = "data"
	VolumeTypeOS   = "os"
	VolumeTypeAll  = "all"
)
