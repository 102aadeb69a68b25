package diskutil

import (
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/sigreer/vmcrypt/internal/registry"
)

// Consolidation events passed to the recorder
const (
	EventConsolidated = "consolidated"
	EventUnlockFailed = "unlock_failed"
	EventMountFailed  = "mount_failed"
	EventNoBackup     = "no_backup"
)

// TempMapperName derives the mapper name a LUKS device is unlocked under
// while its backup record is read, e.g. /dev/disk/azure/scsi1/lun1 becomes
// disk-azure-scsi1-lun1-unlocked
func TempMapperName(devPath string) string {
	return strings.ReplaceAll(strings.TrimPrefix(devPath, "/dev/"), "/", "-") + "-unlocked"
}

// ConsolidateAzureCryptMount registers every LUKS device that is missing
// from the registry. Each one is unlocked with passphraseFile and mounted
// under the temp mount root so the record kept on the volume can be copied
// into the registry. A device without a filesystem or without a record is
// registered bare. Failures are collected per device and returned together
// once every device has been tried.
func (d *DiskUtil) ConsolidateAzureCryptMount(passphraseFile string) error {
	d.logger.Info("Consolidating azure_crypt_mount")

	devices, err := d.DeviceItems("")
	if err != nil {
		return err
	}
	cryptItems, err := d.CryptItems()
	if err != nil {
		return err
	}
	azureNames, err := d.AzureUdevTable()
	if err != nil {
		return err
	}

	registered := make(map[string]bool, len(cryptItems))
	mappers := make(map[string]bool, len(cryptItems))
	for _, ci := range cryptItems {
		registered[d.realPath(ci.DevPath)] = true
		mappers[ci.MapperName] = true
	}

	var result *multierror.Error
	for _, dev := range devices {
		if dev.FileSystem != FSTypeLUKS {
			continue
		}
		d.logger.Infof("Found an encrypted device at %s", dev.Name)

		devPath, err := d.DevicePath(dev.Name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		realPath := d.realPath(devPath)

		if registered[realPath] {
			d.logger.Infof("%s is already in the azure_crypt_mount file", dev.Name)
			continue
		}

		if err := d.consolidateDevice(passphraseFile, devPath, realPath, azureNames, mappers); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		registered[realPath] = true
	}

	return result.ErrorOrNil()
}

func (d *DiskUtil) consolidateDevice(passphraseFile, devPath, realPath string, azureNames map[string]string, mappers map[string]bool) error {
	item := registry.CryptItem{
		DevPath:         devPath,
		CurrentLuksSlot: registry.UnknownSlot,
	}
	if alias, ok := azureNames[realPath]; ok {
		item.DevPath = alias
	} else if alias, ok := azureNames[devPath]; ok {
		item.DevPath = alias
	}
	item.MapperName = TempMapperName(item.DevPath)

	tempMount := path.Join(d.env.TempMountRoot, item.MapperName)
	backupFolder := path.Join(tempMount, BackupMountInfoDir)

	if code := d.LuksOpen(passphraseFile, realPath, item.MapperName, "", false); code != 0 {
		d.logger.Errorf("cryptsetup luksOpen failed, return code is: %d", code)
		d.recordEvent(EventUnlockFailed, item, map[string]interface{}{"exit_code": code})
		return fmt.Errorf("failed to unlock %s: cryptsetup exited with code %d", realPath, code)
	}
	defer d.LuksClose(item.MapperName)

	// No filesystem: an LVM PV, a raid member or an empty disk
	if code := d.MountFilesystem(path.Join("/dev/mapper", item.MapperName), tempMount, ""); code != 0 {
		d.logger.Errorf("Mount failed, return code is: %d", code)
		d.recordEvent(EventMountFailed, item, map[string]interface{}{"exit_code": code})
		return d.registerBare(item, mappers)
	}
	defer d.Umount(tempMount)

	if !d.exists(path.Join(backupFolder, registry.BackupFileName)) {
		d.logger.Errorf("MountPoint info not found for %s", realPath)
		d.recordEvent(EventNoBackup, item, nil)
		return d.registerBare(item, mappers)
	}

	backed, err := d.registry.ReadBackup(backupFolder)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, bi := range backed {
		if mappers[bi.MapperName] {
			d.logger.Infof("%s is already registered, not adding it again", bi.MapperName)
			continue
		}
		if !d.registry.Add(bi, "") {
			result = multierror.Append(result, fmt.Errorf("failed to register %s from %s", bi.MapperName, realPath))
			continue
		}
		mappers[bi.MapperName] = true
		d.recordEvent(EventConsolidated, bi, map[string]interface{}{"source": realPath})
	}
	return result.ErrorOrNil()
}

// registerBare adds an item with no mount point
func (d *DiskUtil) registerBare(item registry.CryptItem, mappers map[string]bool) error {
	if mappers[item.MapperName] {
		return nil
	}
	if !d.registry.Add(item, "") {
		return fmt.Errorf("failed to register %s", item.DevPath)
	}
	mappers[item.MapperName] = true
	d.recordEvent(EventConsolidated, item, map[string]interface{}{"bare": true})
	return nil
}

func (d *DiskUtil) recordEvent(eventType string, item registry.CryptItem, details map[string]interface{}) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordEvent(eventType, item.MapperName, item.DevPath, details); err != nil {
		d.logger.Warnf("failed to record %s event for %s: %v", eventType, item.MapperName, err)
	}
}
