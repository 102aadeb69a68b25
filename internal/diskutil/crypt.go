package diskutil

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/executor"
	"github.com/sigreer/vmcrypt/internal/registry"
)

var majMinPattern = regexp.MustCompile(`^\d+:\d+$`)

// CryptItems reads the registry. When the OS volume is encrypted but has no
// record, a record for it is synthesized and returned; it is not written
// back. Nothing is synthesized while the registry file does not exist.
func (d *DiskUtil) CryptItems() ([]registry.CryptItem, error) {
	if !d.registry.Exists() {
		d.logger.Infof("%s does not exist", d.registry.Path())
		return nil, nil
	}

	items, err := d.registry.Read()
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.MountPoint == "/" {
			return items, nil
		}
	}

	status, err := d.EncryptionStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption status: %w", err)
	}
	if status.OS != Encrypted {
		return items, nil
	}

	root, err := d.rootCryptItem()
	if err != nil {
		return nil, err
	}
	return append(items, root), nil
}

// rootCryptItem builds the record of an encrypted OS volume from the live
// device-mapper state
func (d *DiskUtil) rootCryptItem() (registry.CryptItem, error) {
	item := registry.CryptItem{
		MapperName:      OSMapperName,
		MountPoint:      "/",
		CurrentLuksSlot: registry.UnknownSlot,
	}

	devPath, err := d.osSourceDevice()
	if err != nil {
		return item, err
	}
	item.DevPath = devPath

	root, err := d.rootMount()
	if err != nil {
		return item, err
	}
	item.FileSystem = root.FS

	item.LuksHeaderPath = OSLuksHeaderPath
	if !d.exists(item.LuksHeaderPath) {
		item.LuksHeaderPath = item.DevPath
	}

	d.logger.Infof("synthesized crypt item for the OS volume: %s", item)
	return item, nil
}

// osSourceDevice finds the block device under the osencrypt mapping, first
// from cryptsetup status and then from the dmsetup crypt table
func (d *DiskUtil) osSourceDevice() (string, error) {
	script := fmt.Sprintf("%s status %s | grep device:", d.paths.Path(distro.Cryptsetup), OSMapperName)
	res, err := d.exec.ExecuteInShell(script, false, true)
	if err == nil && res.Success() {
		if fields := strings.Fields(res.Stdout); len(fields) > 1 {
			return fields[1], nil
		}
	}

	res, err = d.exec.Execute(executor.Command{
		Path:  d.paths.Path(distro.Dmsetup),
		Args:  []string{"table", "--target", "crypt"},
		Quiet: true,
	})
	if err != nil || res == nil {
		return "", fmt.Errorf("block device for rootfs: %w", ErrNotFound)
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		if !strings.Contains(line, OSMapperName) {
			continue
		}

		majmin := ""
		for _, f := range strings.Fields(line) {
			if majMinPattern.MatchString(f) {
				majmin = f
				break
			}
		}
		if majmin == "" {
			break
		}

		devices, err := d.DeviceItems("")
		if err != nil {
			return "", err
		}
		for _, dev := range devices {
			if dev.MajMin == majmin {
				return "/dev/" + dev.Name, nil
			}
		}
		break
	}

	return "", fmt.Errorf("block device for rootfs: %w", ErrNotFound)
}

// AddCryptItem appends item to the registry, with a copy in backupFolder
// when set
func (d *DiskUtil) AddCryptItem(item registry.CryptItem, backupFolder string) bool {
	return d.registry.Add(item, backupFolder)
}

// RemoveCryptItem drops item from the registry and backupFolder
func (d *DiskUtil) RemoveCryptItem(item registry.CryptItem, backupFolder string) bool {
	return d.registry.Remove(item, backupFolder)
}

// UpdateCryptItem replaces the registry record of item
func (d *DiskUtil) UpdateCryptItem(item registry.CryptItem, backupFolder string) bool {
	return d.registry.Update(item, backupFolder)
}
