package diskutil

import (
	"fmt"

	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/lsblk"
)

// DeviceNames lists every block device as /dev/<name>
func (d *DiskUtil) DeviceNames() ([]string, error) {
	return d.listNames()
}

// Children lists the devices below parent, excluding parent itself
func (d *DiskUtil) Children(parent string) ([]string, error) {
	names, err := d.listNames(parent)
	if err != nil {
		return nil, err
	}

	children := make([]string, 0, len(names))
	for _, n := range names {
		if n != parent {
			children = append(children, n)
		}
	}
	return children, nil
}

func (d *DiskUtil) listNames(extra ...string) ([]string, error) {
	args := append([]string{"-P", "-o", "NAME"}, extra...)
	out, err := d.output(distro.Lsblk, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	records, err := lsblk.Parse([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		if name := rec.Value("NAME"); name != "" {
			names = append(names, "/dev/"+name)
		}
	}
	return names, nil
}

// Topology maps every device path to its closest parent ("" at top level).
// lsblk lists a device under each ancestor, so the last parent visited in
// listing order is the nearest one.
func (d *DiskUtil) Topology() (map[string]string, error) {
	devices, err := d.DeviceNames()
	if err != nil {
		return nil, err
	}

	t := make(map[string]string, len(devices))
	for _, dev := range devices {
		t[dev] = ""
	}

	for _, parent := range devices {
		children, err := d.Children(parent)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			t[child] = parent
		}
	}
	return t, nil
}

// SimulatedPKNameOutput renders PKNAME/NAME/FSTYPE/MOUNTPOINT pair lines for
// lsblk builds that lack -p and PKNAME
func (d *DiskUtil) SimulatedPKNameOutput() (string, error) {
	out, err := d.output(distro.Lsblk, "-P", "-o", "NAME,FSTYPE,MOUNTPOINT")
	if err != nil {
		return "", fmt.Errorf("failed to list block devices: %w", err)
	}

	records, err := lsblk.Parse([]byte(out))
	if err != nil {
		return "", fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	t, err := d.Topology()
	if err != nil {
		return "", err
	}

	simulated := make([]lsblk.Record, 0, len(records))
	for _, rec := range records {
		var name, pkname string
		if n := rec.Value("NAME"); n != "" {
			name = "/dev/" + n
			pkname = t[name]
		}
		simulated = append(simulated, lsblk.Record{
			{Key: "PKNAME", Value: pkname},
			{Key: "NAME", Value: name},
			{Key: "FSTYPE", Value: rec.Value("FSTYPE")},
			{Key: "MOUNTPOINT", Value: rec.Value("MOUNTPOINT")},
		})
	}
	return string(lsblk.Format(simulated)), nil
}

// LsblkOutput returns PKNAME/NAME/FSTYPE/MOUNTPOINT pair output with full
// device paths, simulating it when lsblk does not support -p
func (d *DiskUtil) LsblkOutput() (string, error) {
	out, err := d.output(distro.Lsblk, "-p", "-P", "-o", "PKNAME,NAME,FSTYPE,MOUNTPOINT")
	if err == nil {
		return out, nil
	}

	d.logger.Infof("lsblk does not support PKNAME output, deriving parents: %v", err)
	return d.SimulatedPKNameOutput()
}

// LsblkTree nests LsblkOutput under parent devices in the shape of
// lsblk --json
func (d *DiskUtil) LsblkTree() ([]*lsblk.Node, error) {
	out, err := d.LsblkOutput()
	if err != nil {
		return nil, err
	}

	records, err := lsblk.Parse([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}
	return lsblk.BuildTree(records), nil
}
