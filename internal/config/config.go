package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sigreer/vmcrypt/internal/diskutil"
	"github.com/sigreer/vmcrypt/internal/journal"
	"github.com/sigreer/vmcrypt/internal/markconfig"
	"github.com/sigreer/vmcrypt/internal/registry"
)

type Config struct {
	Registry       string  `yaml:"registry"`
	PassphraseFile string  `yaml:"passphrase_file,omitempty"`
	OSRelease      string  `yaml:"os_release"`
	Paths          Paths   `yaml:"paths"`
	Marks          Marks   `yaml:"marks"`
	Journal        Journal `yaml:"journal"`
	Log            Log     `yaml:"log"`

	// Tools overrides the resolved location of individual tools, keyed by
	// tool name, e.g. cryptsetup: /usr/local/sbin/cryptsetup
	Tools map[string]string `yaml:"tools,omitempty"`
}

type Paths struct {
	LuksHeaderBase   string `yaml:"luks_header_base"`
	CleartextKeyBase string `yaml:"cleartext_key_base"`
	Fstab            string `yaml:"fstab"`
	FstabAzureBackup string `yaml:"fstab_azure_backup"`
	TempMountRoot    string `yaml:"temp_mount_root"`
}

type Marks struct {
	Encryption string `yaml:"encryption"`
	Decryption string `yaml:"decryption"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// defaultConfig matches the layout the encryption agent expects on a VM
var defaultConfig = Config{
	Registry:  registry.DefaultPath,
	OSRelease: "/etc/os-release",
	Paths: Paths{
		LuksHeaderBase:   diskutil.DefaultEnvironment().LuksHeaderBasePath,
		CleartextKeyBase: diskutil.DefaultEnvironment().CleartextKeyBasePath,
		Fstab:            diskutil.DefaultEnvironment().FstabPath,
		FstabAzureBackup: diskutil.DefaultEnvironment().FstabAzureBackupPath,
		TempMountRoot:    diskutil.DefaultEnvironment().TempMountRoot,
	},
	Marks: Marks{
		Encryption: markconfig.DefaultEncryptionPath,
		Decryption: markconfig.DefaultDecryptionPath,
	},
	Journal: Journal{
		Enabled: true,
		Path:    journal.DefaultPath,
	},
	Log: Log{
		Level: "info",
	},
}

// Candidates lists the locations searched when no path is given
func Candidates() []string {
	return []string{
		"/etc/vmcrypt/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/vmcrypt/config.yaml"),
		"config.yaml",
	}
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	cfg.Tools = nil
	return &cfg
}

func Load(path string) (*Config, error) {
	if path == "" {
		for _, c := range Candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills fields a partial file left empty
func (c *Config) applyDefaults() {
	fill := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}

	fill(&c.Registry, defaultConfig.Registry)
	fill(&c.OSRelease, defaultConfig.OSRelease)
	fill(&c.Paths.LuksHeaderBase, defaultConfig.Paths.LuksHeaderBase)
	fill(&c.Paths.CleartextKeyBase, defaultConfig.Paths.CleartextKeyBase)
	fill(&c.Paths.Fstab, defaultConfig.Paths.Fstab)
	fill(&c.Paths.FstabAzureBackup, defaultConfig.Paths.FstabAzureBackup)
	fill(&c.Paths.TempMountRoot, defaultConfig.Paths.TempMountRoot)
	fill(&c.Marks.Encryption, defaultConfig.Marks.Encryption)
	fill(&c.Marks.Decryption, defaultConfig.Marks.Decryption)
	fill(&c.Journal.Path, defaultConfig.Journal.Path)
	fill(&c.Log.Level, defaultConfig.Log.Level)
}

// Environment converts the path section for diskutil
func (c *Config) Environment() diskutil.Environment {
	return diskutil.Environment{
		LuksHeaderBasePath:   c.Paths.LuksHeaderBase,
		CleartextKeyBasePath: c.Paths.CleartextKeyBase,
		FstabPath:            c.Paths.Fstab,
		FstabAzureBackupPath: c.Paths.FstabAzureBackup,
		TempMountRoot:        c.Paths.TempMountRoot,
	}
}
