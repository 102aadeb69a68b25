package identify

import (
	"errors"

	"github.com/sigreer/vmcrypt/internal/diskutil"
	"github.com/sigreer/vmcrypt/internal/registry"
)

// ErrNotFound is returned when a query doesn't match any device
var ErrNotFound = errors.New("device not found")

// IdentifierType describes what type of identifier was matched
type IdentifierType string

const (
	IDDevicePath IdentifierType = "device_path"
	IDKernelName IdentifierType = "kernel_name"
	IDFSUUID     IdentifierType = "fs_uuid"
	IDFSLabel    IdentifierType = "fs_label"
	IDMajMin     IdentifierType = "maj_min"
	IDDeviceID   IdentifierType = "device_id"
	IDAzureLink  IdentifierType = "azure_link"
	IDMapperName IdentifierType = "mapper_name"
	IDSymlink    IdentifierType = "symlink"
	IDUnknown    IdentifierType = "unknown"
)

// Entity is one block device together with every name it is known by
type Entity struct {
	Device     diskutil.DeviceItem  `json:"device"`
	DevicePath string               `json:"device_path"`
	AzureLink  string               `json:"azure_link,omitempty"`
	CryptItems []registry.CryptItem `json:"crypt_items,omitempty"`
}

// LookupResult is what the identify command prints
type LookupResult struct {
	Query     string         `json:"query"`
	MatchedAs IdentifierType `json:"matched_as"`
	Entity    *Entity        `json:"entity"`
}
