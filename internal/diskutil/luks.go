package diskutil

import (
	"fmt"
	"strings"

	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/executor"
)

// LuksFormat formats devPath as LUKS keyed by passphraseFile, with a
// detached header when headerFile is set. Returns the cryptsetup exit code.
func (d *DiskUtil) LuksFormat(passphraseFile, devPath, headerFile string) int {
	d.logger.Infof("dev path to cryptsetup luksFormat %s", devPath)

	// SLES 11 cryptsetup only takes the passphrase on stdin
	if d.paths.DistroInfo().IsLegacySuse() {
		res, _ := d.exec.Execute(d.command(distro.Cat, passphraseFile))
		passphrase := ""
		if res != nil {
			passphrase = res.Stdout
		}
		res, err := d.exec.Execute(executor.Command{
			Path:  d.paths.Path(distro.Cryptsetup),
			Args:  []string{"luksFormat", devPath, "-q"},
			Input: passphrase,
		})
		if res == nil {
			d.logger.Errorf("cryptsetup luksFormat: %v", err)
			return -1
		}
		return res.ExitCode
	}

	args := []string{"luksFormat", devPath}
	if headerFile != "" {
		args = append(args, "--header", headerFile)
	}
	args = append(args, "-d", passphraseFile, "-q")
	return d.run(distro.Cryptsetup, args...)
}

// LuksOpen unlocks devPath as /dev/mapper/<mapperName>. A cleartext key item
// is opened with its per-mapper key file instead of passphraseFile.
func (d *DiskUtil) LuksOpen(passphraseFile, devPath, mapperName, headerFile string, usesCleartextKey bool) int {
	d.logger.Infof("dev mapper name to cryptsetup luksOpen %s", mapperName)

	if usesCleartextKey {
		passphraseFile = d.env.CleartextKeyBasePath + mapperName
	}
	d.logger.Infof("keyfile: %s", passphraseFile)

	args := []string{"luksOpen", devPath, mapperName}
	if headerFile != "" {
		args = append(args, "--header", headerFile)
	}
	args = append(args, "-d", passphraseFile, "-q")
	return d.run(distro.Cryptsetup, args...)
}

// LuksClose locks /dev/mapper/<mapperName>
func (d *DiskUtil) LuksClose(mapperName string) int {
	d.logger.Infof("dev mapper name to cryptsetup luksClose %s", mapperName)
	return d.run(distro.Cryptsetup, "luksClose", mapperName, "-q")
}

// luksTarget is the header file when there is one, else the device
func luksTarget(devPath, headerFile string) string {
	if headerFile != "" {
		return headerFile
	}
	return devPath
}

// LuksAddKey adds newKeyPath as a key, authorized by passphraseFile
func (d *DiskUtil) LuksAddKey(passphraseFile, devPath, headerFile, newKeyPath string) (int, error) {
	d.logger.Infof("new key path: %s", newKeyPath)

	if !d.exists(newKeyPath) {
		d.logger.Errorf("new key %s does not exist", newKeyPath)
		return -1, fmt.Errorf("key file %s: %w", newKeyPath, ErrNotFound)
	}

	return d.run(distro.Cryptsetup, "luksAddKey", luksTarget(devPath, headerFile), newKeyPath, "-d", passphraseFile, "-q"), nil
}

// LuksAddCleartextKey adds the per-mapper cleartext key of mapperName
func (d *DiskUtil) LuksAddCleartextKey(passphraseFile, devPath, mapperName, headerFile string) (int, error) {
	keyPath := d.env.CleartextKeyBasePath + mapperName
	d.logger.Infof("cleartext key path: %s", keyPath)
	return d.LuksAddKey(passphraseFile, devPath, headerFile, keyPath)
}

// LuksRemoveKey removes the keyslot opened by passphraseFile
func (d *DiskUtil) LuksRemoveKey(passphraseFile, devPath, headerFile string) int {
	d.logger.Infof("removing keyslot: %s", passphraseFile)
	return d.run(distro.Cryptsetup, "luksRemoveKey", luksTarget(devPath, headerFile), "-d", passphraseFile, "-q")
}

// LuksKillSlot wipes keyslot
func (d *DiskUtil) LuksKillSlot(passphraseFile, devPath, headerFile string, keyslot int) int {
	d.logger.Infof("killing keyslot: %d", keyslot)
	return d.run(distro.Cryptsetup, "luksKillSlot", luksTarget(devPath, headerFile), fmt.Sprint(keyslot), "-d", passphraseFile, "-q")
}

// LuksDumpKeyslots reports, per keyslot, whether it is enabled
func (d *DiskUtil) LuksDumpKeyslots(devPath, headerFile string) []bool {
	res, _ := d.exec.Execute(d.command(distro.Cryptsetup, "luksDump", luksTarget(devPath, headerFile)))
	if res == nil {
		return nil
	}

	var slots []bool
	for _, line := range strings.Split(res.Stdout, "\n") {
		l := strings.ToLower(line)
		if strings.Contains(l, "key slot") {
			slots = append(slots, strings.Contains(l, "enabled"))
		}
	}
	return slots
}

// EncryptDisk formats devPath and opens it as mapperName
func (d *DiskUtil) EncryptDisk(devPath, passphraseFile, mapperName, headerFile string) int {
	code := d.LuksFormat(passphraseFile, devPath, headerFile)
	if code != 0 {
		d.logger.Errorf("cryptsetup luksFormat failed, return code is: %d", code)
		return code
	}

	code = d.LuksOpen(passphraseFile, devPath, mapperName, headerFile, false)
	if code != 0 {
		d.logger.Errorf("cryptsetup luksOpen failed, return code is: %d", code)
	}
	return code
}

// CreateLuksHeader creates a zeroed 32 MiB detached header file for
// mapperName unless one exists, returning its path
func (d *DiskUtil) CreateLuksHeader(mapperName string) (string, error) {
	p := d.env.LuksHeaderBasePath + mapperName
	if d.exists(p) {
		return p, nil
	}

	script := fmt.Sprintf("%s if=/dev/zero bs=33554432 count=1 > %s", d.paths.Path(distro.DD), p)
	if _, err := d.exec.ExecuteInShell(script, true, false); err != nil {
		return "", fmt.Errorf("failed to create luks header %s: %w", p, err)
	}
	return p, nil
}

// CreateCleartextKey creates a 128 byte random key file for mapperName
// unless one exists, returning its path
func (d *DiskUtil) CreateCleartextKey(mapperName string) (string, error) {
	p := d.env.CleartextKeyBasePath + mapperName
	if d.exists(p) {
		return p, nil
	}

	script := fmt.Sprintf("%s if=/dev/urandom bs=128 count=1 > %s", d.paths.Path(distro.DD), p)
	if _, err := d.exec.ExecuteInShell(script, true, false); err != nil {
		return "", fmt.Errorf("failed to create cleartext key %s: %w", p, err)
	}
	return p, nil
}
