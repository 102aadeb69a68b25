package distro

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sigreer/vmcrypt/internal/lsblk"
)

// Logical tool names resolved by Paths
const (
	Blkid      = "blkid"
	Blockdev   = "blockdev"
	Cat        = "cat"
	Cryptsetup = "cryptsetup"
	DD         = "dd"
	Dmsetup    = "dmsetup"
	Lsblk      = "lsblk"
	Lsscsi     = "lsscsi"
	Lvs        = "lvs"
	Mkdir      = "mkdir"
	Mount      = "mount"
	Pvdisplay  = "pvdisplay"
	Touch      = "touch"
	Udevadm    = "udevadm"
	Umount     = "umount"
)

// DefaultOSReleasePath is where DistroInfo is read from
const DefaultOSReleasePath = "/etc/os-release"

// Info identifies the running distribution
type Info struct {
	Family  string // lower-cased os-release ID
	Version string // os-release VERSION_ID
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s", i.Family, i.Version)
}

// IsLegacySuse reports the SLES 11 family, whose lsblk cannot batch
// property queries
func (i Info) IsLegacySuse() bool {
	return (i.Family == "suse" || i.Family == "sles") && i.Version == "11"
}

// Paths resolves tool names to executables for the running distribution
type Paths interface {
	Path(tool string) string
	DistroInfo() Info
}

// Patcher is the default Paths implementation
type Patcher struct {
	info      Info
	overrides map[string]string
	lookPath  func(string) (string, error)
}

// defaultPaths holds locations that differ from a plain PATH lookup
var defaultPaths = map[string]string{
	Cryptsetup: "/sbin/cryptsetup",
	Blockdev:   "/sbin/blockdev",
	Dmsetup:    "/sbin/dmsetup",
	Lvs:        "/sbin/lvs",
	Pvdisplay:  "/sbin/pvdisplay",
}

// New creates a Patcher for info. Overrides win over every other lookup.
func New(info Info, overrides map[string]string) *Patcher {
	return &Patcher{info: info, overrides: overrides, lookPath: exec.LookPath}
}

// Detect reads os-release from path (DefaultOSReleasePath when empty)
func Detect(path string, overrides map[string]string) (*Patcher, error) {
	if path == "" {
		path = DefaultOSReleasePath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := ParseOSRelease(data)
	if err != nil {
		return nil, err
	}
	return New(info, overrides), nil
}

// ParseOSRelease extracts ID and VERSION_ID from os-release content
func ParseOSRelease(data []byte) (Info, error) {
	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}

	records, err := lsblk.Parse([]byte(strings.Join(kept, "\n")))
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse os-release: %w", err)
	}

	var info Info
	for _, rec := range records {
		if v, ok := rec.Get("ID"); ok {
			info.Family = strings.ToLower(strings.Trim(v, "'"))
		}
		if v, ok := rec.Get("VERSION_ID"); ok {
			info.Version = strings.Trim(v, "'")
		}
	}
	return info, nil
}

// Path returns the executable for tool
func (p *Patcher) Path(tool string) string {
	if v, ok := p.overrides[tool]; ok && v != "" {
		return v
	}
	if v, ok := defaultPaths[tool]; ok {
		if _, err := os.Stat(v); err == nil {
			return v
		}
	}
	if v, err := p.lookPath(tool); err == nil {
		return v
	}
	return tool
}

// DistroInfo returns the detected distribution
func (p *Patcher) DistroInfo() Info {
	return p.info
}

// Bare leaves tool names unresolved so exec looks them up on PATH at run time
type Bare struct {
	Info Info
}

// Path returns tool unchanged
func (b Bare) Path(tool string) string {
	return tool
}

// DistroInfo returns b.Info
func (b Bare) DistroInfo() Info {
	return b.Info
}
