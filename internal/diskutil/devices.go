package diskutil

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/lsblk"
)

const deviceColumns = "NAME,TYPE,FSTYPE,MOUNTPOINT,LABEL,UUID,MODEL,SIZE,MAJ:MIN"

// rootVGLayouts are the LV sets of the stock LVM OS disk image
var rootVGLayouts = [][]string{
	{"homelv", "optlv", "rootlv", "swaplv", "tmplv", "usrlv", "varlv"},
	{"homelv", "optlv", "rootlv", "tmplv", "usrlv", "varlv"},
}

var deviceIDPattern = regexp.MustCompile(`"\{(.*)\}"`)

// DeviceItems lists the devices under filterPath, or every device when
// filterPath is empty. Devices whose size cannot be read are left out.
func (d *DiskUtil) DeviceItems(filterPath string) ([]DeviceItem, error) {
	if d.paths.DistroInfo().IsLegacySuse() {
		return d.legacyDeviceItems(filterPath)
	}

	if filterPath != "" {
		d.logger.Infof("getting blk info for: %s", filterPath)
	}

	args := []string{"-b", "-n", "-P", "-o", deviceColumns}
	if filterPath != "" {
		args = append(args, filterPath)
	}
	out, err := d.output(distro.Lsblk, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	records, err := lsblk.Parse([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	lvmItems := d.LvmItems()

	items := make([]DeviceItem, 0, len(records))
	for _, rec := range records {
		item := DeviceItem{
			Name:       rec.Value("NAME"),
			Type:       rec.Value("TYPE"),
			FileSystem: rec.Value("FSTYPE"),
			MountPoint: rec.Value("MOUNTPOINT"),
			Label:      rec.Value("LABEL"),
			UUID:       rec.Value("UUID"),
			Model:      strings.TrimSpace(rec.Value("MODEL")),
			MajMin:     rec.Value("MAJ:MIN"),
		}

		size, err := strconv.ParseInt(strings.TrimSpace(rec.Value("SIZE")), 10, 64)
		if err != nil {
			d.logger.Warnf("skip the device %s because we could not get size of it", item.Name)
			continue
		}
		item.Size = size

		item.DeviceID = d.DeviceID(d.devicePathOrDefault(item.Name))

		// Report logical volumes by vg/lv
		if strings.EqualFold(item.Type, TypeLVM) {
			for _, lv := range lvmItems {
				if lv.MajMin() == item.MajMin {
					item.Name = lv.VGName + "/" + lv.LVName
				}
			}
		}

		items = append(items, item)
	}
	return items, nil
}

// legacyDeviceItems queries each property separately for lsblk builds that
// cannot batch columns. Results are memoized in the property cache.
func (d *DiskUtil) legacyDeviceItems(filterPath string) ([]DeviceItem, error) {
	if filterPath != "" {
		d.logger.Infof("getting blk info for: %s", filterPath)
	}

	args := []string{"-b", "-nl", "-o", "NAME"}
	if filterPath != "" {
		args = append(args, filterPath)
	}
	out, err := d.output(distro.Lsblk, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}

	var items []DeviceItem
	for _, name := range names {
		item := DeviceItem{Name: name}

		props := []struct {
			key string
			dst *string
		}{
			{"FSTYPE", &item.FileSystem},
			{"MOUNTPOINT", &item.MountPoint},
			{"LABEL", &item.Label},
			{"UUID", &item.UUID},
			{"MAJ:MIN", &item.MajMin},
		}
		for _, p := range props {
			v, err := d.legacyProperty(name, p.key)
			if err != nil {
				return nil, err
			}
			*p.dst = v
		}

		item.DeviceID = d.cache.GetOrFetch(name, "DEVICE_ID", func() string {
			return d.DeviceID(d.devicePathOrDefault(name))
		})

		modelPath := path.Join("/sys/block", name, "device/model")
		if data, err := afero.ReadFile(d.fs, modelPath); err == nil {
			item.Model = strings.TrimSpace(string(data))
		} else {
			d.logger.Infof("no model file found for device %s", name)
		}

		if item.Model == "Virtual Disk" {
			item.Type = TypeDisk
		} else if matches, _ := afero.Glob(d.fs, path.Join("/sys/block/*", name, "partition")); len(matches) > 0 {
			item.Type = TypePart
		}

		sizeStr := d.cache.GetOrFetch(name, "SIZE", func() string {
			res, _ := d.exec.Execute(d.command(distro.Blockdev, "--getsize64", d.devicePathOrDefault(name)))
			if res == nil {
				return ""
			}
			return strings.TrimSpace(res.Stdout)
		})
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			d.logger.Warnf("skip the device %s because we could not get size of it", name)
			continue
		}
		item.Size = size

		items = append(items, item)
	}
	d.logger.Debugf("property cache holds %d values for %d devices", d.cache.Len(), len(names))
	return items, nil
}

// legacyProperty reads one lsblk column for a device through the cache
func (d *DiskUtil) legacyProperty(name, property string) (string, error) {
	if v, ok := d.cache.Get(name, property); ok {
		return v, nil
	}

	d.logger.Debugf("getting property %s of device %s", property, name)
	out, err := d.output(distro.Lsblk, d.devicePathOrDefault(name), "-b", "-nl", "-o", "NAME,"+property)
	if err != nil {
		return "", fmt.Errorf("failed to read %s of %s: %w", property, name, err)
	}

	value := ""
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 1 && fields[0] == name {
			value = fields[1]
		}
	}

	d.cache.Set(name, property, value)
	return value, nil
}

// LvmItems lists logical volumes. A failing lvs yields no items.
func (d *DiskUtil) LvmItems() []LvmItem {
	res, err := d.exec.Execute(d.command(distro.Lvs,
		"--noheadings", "--nameprefixes", "--unquoted",
		"-o", "lv_name,vg_name,lv_kernel_major,lv_kernel_minor"))
	if err != nil || !res.Success() {
		return nil
	}

	records, err := lsblk.Parse([]byte(res.Stdout))
	if err != nil {
		d.logger.Warnf("failed to parse lvs output: %v", err)
		return nil
	}

	items := make([]LvmItem, 0, len(records))
	for _, rec := range records {
		items = append(items, LvmItem{
			LVName:      rec.Value("LVM2_LV_NAME"),
			VGName:      rec.Value("LVM2_VG_NAME"),
			KernelMajor: rec.Value("LVM2_LV_KERNEL_MAJOR"),
			KernelMinor: rec.Value("LVM2_LV_KERNEL_MINOR"),
		})
	}
	return items
}

// IsOSDiskLVM reports whether the OS disk uses the stock rootvg layout. The
// answer is computed once per DiskUtil.
func (d *DiskUtil) IsOSDiskLVM() (bool, error) {
	if d.osDiskLVM != nil {
		return *d.osDiskLVM, nil
	}

	items, err := d.DeviceItems("")
	if err != nil {
		return false, err
	}

	result := false
	for _, item := range items {
		if strings.EqualFold(item.Type, TypeLVM) {
			result = rootVGMatches(d.LvmItems())
			break
		}
	}

	d.osDiskLVM = &result
	return result, nil
}

func rootVGMatches(lvs []LvmItem) bool {
	current := make(map[string]bool)
	for _, lv := range lvs {
		if lv.VGName == "rootvg" {
			current[lv.LVName] = true
		}
	}

	for _, layout := range rootVGLayouts {
		if len(layout) != len(current) {
			continue
		}
		match := true
		for _, name := range layout {
			if !current[name] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// DevicePath returns /dev/<name> or /dev/mapper/<name>, whichever exists
func (d *DiskUtil) DevicePath(name string) (string, error) {
	for _, p := range []string{"/dev/" + name, "/dev/mapper/" + name} {
		if d.exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("device %s: %w", name, ErrNotFound)
}

func (d *DiskUtil) devicePathOrDefault(name string) string {
	if p, err := d.DevicePath(name); err == nil {
		return p
	}
	return "/dev/" + name
}

// DeviceID returns the Hyper-V device GUID of devPath without braces, or ""
func (d *DiskUtil) DeviceID(devPath string) string {
	udevadm := d.paths.Path(distro.Udevadm)
	script := fmt.Sprintf("%s info -a -p $(%s info -q path -n %s) | grep device_id", udevadm, udevadm, devPath)
	res, err := d.exec.ExecuteInShell(script, false, true)
	if err != nil || res == nil {
		return ""
	}

	if m := deviceIDPattern.FindStringSubmatch(strings.TrimSpace(res.Stdout)); m != nil {
		return m[1]
	}
	return ""
}

// AzureUdevTable maps the real device behind every /dev/disk/azure link to
// the link itself
func (d *DiskUtil) AzureUdevTable() (map[string]string, error) {
	table := make(map[string]string)
	if !d.exists(AzureLinksDir) {
		return table, nil
	}

	entries, err := afero.ReadDir(d.fs, AzureLinksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", AzureLinksDir, err)
	}

	for _, e := range entries {
		full := path.Join(AzureLinksDir, e.Name())
		if !e.IsDir() {
			table[d.realPath(full)] = full
			continue
		}

		links, err := afero.ReadDir(d.fs, full)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", full, err)
		}
		for _, l := range links {
			link := path.Join(full, l.Name())
			table[d.realPath(link)] = link
		}
	}
	return table, nil
}

// QueryDevIDPathBySdxPath returns the /dev/disk/by-id link for sdxPath, or
// sdxPath when there is none
func (d *DiskUtil) QueryDevIDPathBySdxPath(sdxPath string) string {
	entries, err := afero.ReadDir(d.fs, DiskByIDRoot)
	if err != nil {
		return sdxPath
	}
	for _, e := range entries {
		link := path.Join(DiskByIDRoot, e.Name())
		if d.realPath(link) == sdxPath {
			return link
		}
	}
	return sdxPath
}

// QueryDevUUIDPathBySdxPath returns /dev/disk/by-uuid/<uuid> for sdxPath
// using blkid, or sdxPath when it has no filesystem UUID
func (d *DiskUtil) QueryDevUUIDPathBySdxPath(sdxPath string) string {
	d.logger.Infof("querying the uuid path of: %s", sdxPath)

	res, err := d.exec.Execute(d.command(distro.Blkid, sdxPath))
	if err != nil || res == nil {
		return sdxPath
	}

	// blkid prints "<dev>: KEY="value" ..."
	out := strings.TrimSpace(res.Stdout)
	if i := strings.Index(out, ": "); i >= 0 {
		out = out[i+2:]
	}
	rec, err := lsblk.ParseLine(out)
	if err != nil {
		d.logger.Warnf("failed to parse blkid output for %s: %v", sdxPath, err)
		return sdxPath
	}

	uuid := strings.ToLower(strings.TrimSpace(rec.Value("UUID")))
	if uuid == "" {
		return sdxPath
	}
	return path.Join("/dev/disk/by-uuid", uuid)
}

// QueryDevSdxPathByScsiID returns the /dev/sdX path lsscsi reports for a
// SCSI address such as 5:0:0:0
func (d *DiskUtil) QueryDevSdxPathByScsiID(scsiID string) string {
	res, err := d.exec.Execute(d.command(distro.Lsscsi, scsiID))
	if err != nil || res == nil {
		return ""
	}

	// [5:0:0:0] disk Msft Virtual Disk 1.0 /dev/sdc
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
