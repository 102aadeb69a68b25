// Package diskutil discovers block devices, keeps the crypt item registry in
// step with the LUKS volumes actually present, and wraps the cryptsetup,
// mount and fstab operations the encryption agent needs.
package diskutil

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sigreer/vmcrypt/internal/cache"
	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/executor"
	"github.com/sigreer/vmcrypt/internal/registry"
)

// Fixed system locations
const (
	ProcMountsPath     = "/proc/mounts"
	VmbusSysPath       = "/sys/bus/vmbus/devices"
	AzureLinksDir      = "/dev/disk/azure"
	DiskByIDRoot       = "/dev/disk/by-id"
	OSLuksHeaderPath   = "/boot/luks/osluksheader"
	OSMapperName       = "osencrypt"
	VolumesLVMMarker   = "/volumes.lvm"
	IDEClassID         = "{32412632-86cb-44a2-9b5c-50d1417354f5}"
	BackupMountInfoDir = ".azure_ade_backup_mount_info"
)

// Environment holds the configurable paths of the agent
type Environment struct {
	LuksHeaderBasePath   string
	CleartextKeyBasePath string
	FstabPath            string
	FstabAzureBackupPath string
	TempMountRoot        string
}

// DefaultEnvironment returns the standard agent layout
func DefaultEnvironment() Environment {
	return Environment{
		LuksHeaderBasePath:   "/var/lib/azure_disk_encryption_config/luks_header_",
		CleartextKeyBasePath: "/var/lib/azure_disk_encryption_config/cleartext_key_",
		FstabPath:            "/etc/fstab",
		FstabAzureBackupPath: "/etc/fstab.azure.backup",
		TempMountRoot:        "/mnt",
	}
}

// MarkReader reads an encryption or decryption request mark
type MarkReader interface {
	ConfigFileExists() bool
	VolumeType() string
}

// Options configures a DiskUtil. Zero fields get working defaults.
type Options struct {
	Executor       executor.Executor
	Paths          distro.Paths
	Fs             afero.Fs
	Registry       *registry.Store
	Env            Environment
	EncryptionMark MarkReader
	DecryptionMark MarkReader
	Recorder       registry.Recorder
	Logger         *log.Entry

	// RealPath resolves symlinks; defaults to filepath.EvalSymlinks falling
	// back to the literal path
	RealPath func(string) string
}

// DiskUtil is the device inventory and crypt item manager. One instance
// holds one snapshot of the legacy property cache and the OS disk LVM check;
// create a fresh instance to observe a changed system.
type DiskUtil struct {
	exec           executor.Executor
	paths          distro.Paths
	fs             afero.Fs
	registry       *registry.Store
	env            Environment
	encryptionMark MarkReader
	decryptionMark MarkReader
	recorder       registry.Recorder
	logger         *log.Entry
	realPath       func(string) string

	cache     *cache.PropertyCache
	osDiskLVM *bool
}

// New creates a DiskUtil
func New(opts Options) *DiskUtil {
	d := &DiskUtil{
		exec:           opts.Executor,
		paths:          opts.Paths,
		fs:             opts.Fs,
		registry:       opts.Registry,
		env:            opts.Env,
		encryptionMark: opts.EncryptionMark,
		decryptionMark: opts.DecryptionMark,
		recorder:       opts.Recorder,
		logger:         opts.Logger,
		realPath:       opts.RealPath,
		cache:          cache.New(),
	}

	if d.logger == nil {
		d.logger = log.WithField("component", "diskutil")
	}
	if d.exec == nil {
		d.exec = executor.New(d.logger.WithField("component", "executor"))
	}
	if d.paths == nil {
		d.paths = distro.Bare{}
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.env == (Environment{}) {
		d.env = DefaultEnvironment()
	}
	if d.registry == nil {
		d.registry = registry.NewStore(d.fs, registry.DefaultPath, d.logger.WithField("component", "registry"))
	}
	if d.recorder != nil {
		d.registry.SetRecorder(d.recorder)
	}
	if d.realPath == nil {
		d.realPath = resolveDevice
	}
	return d
}

// RealPath resolves symlinks in path the way registry paths are compared
func (d *DiskUtil) RealPath(path string) string {
	return d.realPath(path)
}

// Registry returns the crypt item store
func (d *DiskUtil) Registry() *registry.Store {
	return d.registry
}

// Cache returns the legacy property cache
func (d *DiskUtil) Cache() *cache.PropertyCache {
	return d.cache
}

// resolveDevice resolves symlinks to the actual device path
func resolveDevice(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

// command builds a quiet, non-strict invocation of tool
func (d *DiskUtil) command(tool string, args ...string) executor.Command {
	return executor.Command{Path: d.paths.Path(tool), Args: args, Quiet: true}
}

// run executes tool non-strictly and returns its exit code
func (d *DiskUtil) run(tool string, args ...string) int {
	res, err := d.exec.Execute(executor.Command{Path: d.paths.Path(tool), Args: args})
	if res == nil {
		d.logger.Errorf("%s: %v", tool, err)
		return -1
	}
	return res.ExitCode
}

// output executes tool strictly and quietly, returning stdout
func (d *DiskUtil) output(tool string, args ...string) (string, error) {
	res, err := d.exec.Execute(executor.Command{
		Path:   d.paths.Path(tool),
		Args:   args,
		Strict: true,
		Quiet:  true,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// exists reports whether path is present on the filesystem
func (d *DiskUtil) exists(path string) bool {
	ok, err := afero.Exists(d.fs, path)
	return err == nil && ok
}
