package diskutil

import (
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var supportedDeviceTypes = map[string]bool{
	TypeDisk:   true,
	TypePart:   true,
	TypeRaid0:  true,
	TypeRaid1:  true,
	TypeRaid5:  true,
	TypeRaid10: true,
	TypeLVM:    true,
}

// Hyper-V device id prefixes of the OS and resource disks
const (
	rootDiskIDPrefix     = "00000000-0000"
	resourceDiskIDPrefix = "00000000-0001"
)

// ShouldSkipForInplaceEncryption reports whether item must be left alone
// when encrypting volumeType in place. Checks run in a fixed order and the
// first match decides.
func (d *DiskUtil) ShouldSkipForInplaceEncryption(item DeviceItem, volumeType string) (bool, error) {
	if strings.EqualFold(volumeType, VolumeTypeData) {
		d.logger.Warn("enabling encryption for data volumes")
		if strings.HasPrefix(item.DeviceID, rootDiskIDPrefix) {
			d.logger.Warnf("skipping root disk %s", item.Name)
			return true, nil
		}
		if strings.HasPrefix(item.DeviceID, resourceDiskIDPrefix) {
			d.logger.Warnf("skipping resource disk %s", item.Name)
			return true, nil
		}
	}

	if item.FileSystem == "" {
		d.logger.Infof("there's no file system on this device: %s, so skip it", item)
		return true, nil
	}

	if item.Size < MinFilesystemSizeSupport {
		d.logger.Warnf("the device size is too small, %d so skip it", item.Size)
		return true, nil
	}

	if !supportedDeviceTypes[item.Type] {
		d.logger.Warnf("the device type: %s is not supported yet, so skip it", item.Type)
		return true, nil
	}

	if item.UUID == "" {
		d.logger.Warnf("the device %s does not have a uuid, so skip it", item.Name)
		return true, nil
	}

	subItems, err := d.DeviceItems("/dev/" + item.Name)
	if err != nil {
		return true, err
	}
	if len(subItems) > 1 {
		d.logger.Warnf("there are sub items for the device: %s, so skip it", item.Name)
		return true, nil
	}

	if item.Type == TypeCrypt {
		d.logger.Warnf("device type is %s, so skip it", item.Type)
		return true, nil
	}

	if item.MountPoint == "/" {
		d.logger.Warnf("the mountpoint is root: %s, so skip it", item)
		return true, nil
	}

	azureItems, err := d.AzureDevices()
	if err != nil {
		return true, err
	}
	for _, a := range azureItems {
		if a.Name == item.Name {
			d.logger.Infof("%s is on the azure os or resource disk, so skip it", item.Name)
			return true, nil
		}
	}

	return false, nil
}

// AzureDevices lists every device on an IDE attached disk: the OS and
// resource disks of the VM
func (d *DiskUtil) AzureDevices() ([]DeviceItem, error) {
	ides, err := d.IDEDevices()
	if err != nil {
		return nil, err
	}

	var items []DeviceItem
	for _, ide := range ides {
		found, err := d.DeviceItems("/dev/" + ide)
		if err != nil {
			return nil, err
		}
		items = append(items, found...)
	}
	return items, nil
}

// IDEDevices returns the kernel names of block devices behind the Hyper-V
// IDE controller. A host without vmbus has none.
func (d *DiskUtil) IDEDevices() ([]string, error) {
	buses, err := afero.ReadDir(d.fs, VmbusSysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var devices []string
	for _, bus := range buses {
		data, err := afero.ReadFile(d.fs, path.Join(VmbusSysPath, bus.Name(), "class_id"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) != IDEClassID {
			continue
		}

		dev := d.findBlockSdxPath(bus.Name())
		d.logger.Infof("found one ide with vmbus: %s and the sdx path is: %s", bus.Name(), dev)
		if dev != "" {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

// findBlockSdxPath walks a vmbus device for block/<name>, or block:<name> on
// older kernels. The vmbus entry itself is a symlink into /sys/devices and is
// followed; symlinked directories below it are listed but not descended, so
// the walk cannot loop through subsystem or driver links.
func (d *DiskUtil) findBlockSdxPath(bus string) string {
	device := ""

	var walk func(dir string)
	walk = func(dir string) {
		entries, err := afero.ReadDir(d.fs, dir)
		if err != nil {
			return
		}

		var dirs, descend []string
		for _, e := range entries {
			p := path.Join(dir, e.Name())
			switch {
			case e.IsDir():
				dirs = append(dirs, e.Name())
				descend = append(descend, p)
			case e.Mode()&os.ModeSymlink != 0:
				if fi, err := d.fs.Stat(p); err == nil && fi.IsDir() {
					dirs = append(dirs, e.Name())
				}
			}
		}
		sort.Strings(dirs)

		if path.Base(dir) == "block" {
			if len(dirs) > 0 {
				device = dirs[0]
			}
		} else {
			for _, name := range dirs {
				if dev, ok := strings.CutPrefix(name, "block:"); ok {
					device = dev
					break
				}
			}
		}

		for _, p := range descend {
			walk(p)
		}
	}

	walk(path.Join(VmbusSysPath, bus))
	return device
}
