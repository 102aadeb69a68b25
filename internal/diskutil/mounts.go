package diskutil

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/registry"
)

var octalEscape = regexp.MustCompile(`\\([0-7]{3})`)

// MountItems lists the entries of /proc/mounts
func (d *DiskUtil) MountItems() ([]MountItem, error) {
	data, err := afero.ReadFile(d.fs, ProcMountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ProcMountsPath, err)
	}

	var items []MountItem
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		items = append(items, MountItem{
			Src:  unescapeMountField(fields[0]),
			Dest: unescapeMountField(fields[1]),
			FS:   unescapeMountField(fields[2]),
		})
	}
	return items, nil
}

// unescapeMountField decodes the \ooo escapes the kernel uses for blanks
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return octalEscape.ReplaceAllStringFunc(s, func(m string) string {
		v, err := strconv.ParseUint(m[1:], 8, 8)
		if err != nil {
			return m
		}
		return string([]byte{byte(v)})
	})
}

// rootMount returns the /proc/mounts entry for /
func (d *DiskUtil) rootMount() (MountItem, error) {
	items, err := d.MountItems()
	if err != nil {
		return MountItem{}, err
	}
	for _, m := range items {
		if m.Dest == "/" {
			return m, nil
		}
	}
	return MountItem{}, fmt.Errorf("root mount: %w", ErrNotFound)
}

// MountFilesystem mounts devPath at mountPoint, creating the mount point
// first. An empty fileSystem lets mount detect it.
func (d *DiskUtil) MountFilesystem(devPath, mountPoint, fileSystem string) int {
	if err := d.fs.MkdirAll(mountPoint, 0o755); err != nil {
		d.logger.Errorf("failed to create mount point %s: %v", mountPoint, err)
		return -1
	}

	args := []string{devPath, mountPoint}
	if fileSystem != "" {
		args = append(args, "-t", fileSystem)
	}
	return d.run(distro.Mount, args...)
}

// Umount unmounts path
func (d *DiskUtil) Umount(path string) int {
	return d.run(distro.Umount, path)
}

// MountAll mounts everything in fstab
func (d *DiskUtil) MountAll() int {
	return d.run(distro.Mount, "-a")
}

// MountCryptItem mounts an unlocked crypt item at its mount point
func (d *DiskUtil) MountCryptItem(item registry.CryptItem) int {
	d.logger.Infof("trying to mount the crypt item: %s", item)
	code := d.MountFilesystem(path.Join("/dev/mapper", item.MapperName), item.MountPoint, item.FileSystem)
	d.logger.Infof("mount file system result: %d", code)
	return code
}

// UmountAllCryptItems unmounts every registered crypt item that has a mount
// point
func (d *DiskUtil) UmountAllCryptItems() error {
	items, err := d.CryptItems()
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.MountPoint == "" {
			continue
		}
		d.logger.Infof("Unmounting %s", item.MountPoint)
		d.Umount(item.MountPoint)
	}
	return nil
}

// backupFstab copies fstab to fstab.backup.<uuid> and returns the copy path
func (d *DiskUtil) backupFstab() (string, error) {
	data, err := afero.ReadFile(d.fs, d.env.FstabPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", d.env.FstabPath, err)
	}

	backup := d.env.FstabPath + ".backup." + uuid.NewString()
	if err := afero.WriteFile(d.fs, backup, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to back up fstab: %w", err)
	}
	return backup, nil
}

// AppendMountInfo adds an fstab line mounting devPath at mountPoint
func (d *DiskUtil) AppendMountInfo(devPath, mountPoint string) error {
	if _, err := d.backupFstab(); err != nil {
		return err
	}

	existing, err := afero.ReadFile(d.fs, d.env.FstabPath)
	if err != nil {
		return fmt.Errorf("failed to read fstab: %w", err)
	}

	content := string(existing) + "\n" + devPath + " " + mountPoint + "  auto defaults 0 0"
	if err := afero.WriteFile(d.fs, d.env.FstabPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write fstab: %w", err)
	}
	return nil
}

// RemoveMountInfo moves every fstab line naming mountPoint into the azure
// fstab backup
func (d *DiskUtil) RemoveMountInfo(mountPoint string) error {
	if mountPoint == "" {
		d.logger.Info("remove mount info: mount point is empty")
		return nil
	}
	if _, err := d.backupFstab(); err != nil {
		return err
	}

	if err := d.moveLines(d.env.FstabPath, d.env.FstabAzureBackupPath, mountPoint); err != nil {
		return err
	}
	d.logger.Info("fstab updated successfully")
	return nil
}

// RestoreMountInfo moves the lines naming mountPoint from the azure fstab
// backup back into fstab
func (d *DiskUtil) RestoreMountInfo(mountPoint string) error {
	if mountPoint == "" {
		d.logger.Info("restore mount info: mount point is empty")
		return nil
	}
	if _, err := d.backupFstab(); err != nil {
		return err
	}

	if err := d.moveLines(d.env.FstabAzureBackupPath, d.env.FstabPath, mountPoint); err != nil {
		return err
	}
	d.logger.Info("fstab restored successfully")
	return nil
}

// moveLines rewrites src without the lines that mention mountPoint as a
// whole field and appends those lines to dst
func (d *DiskUtil) moveLines(src, dst, mountPoint string) error {
	data, err := afero.ReadFile(d.fs, src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	pattern := regexp.MustCompile(`\s` + regexp.QuoteMeta(mountPoint) + `\s`)

	var kept, moved []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if pattern.MatchString(line) {
			d.logger.Infof("moving line from %s: %s", src, line)
			moved = append(moved, line)
			continue
		}
		kept = append(kept, line)
	}

	out := "\n" + strings.Join(kept, "\n") + "\n"
	if err := afero.WriteFile(d.fs, src, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", src, err)
	}

	f, err := d.fs.OpenFile(dst, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dst, err)
	}
	defer f.Close()

	if _, err := f.WriteString("\n" + strings.Join(moved, "\n") + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", dst, err)
	}
	return nil
}
