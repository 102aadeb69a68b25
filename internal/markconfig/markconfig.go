// Package markconfig reads and writes the request marks that record a
// pending encryption or decryption across reboots.
package markconfig

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Default mark locations
const (
	DefaultEncryptionPath = "/var/lib/azure_disk_encryption_config/encryption_request_queue.yaml"
	DefaultDecryptionPath = "/var/lib/azure_disk_encryption_config/decryption_request_queue.yaml"
)

// Request is the content of a mark
type Request struct {
	Command         string `yaml:"command"`
	VolumeType      string `yaml:"volume_type"`
	DiskFormatQuery string `yaml:"disk_format_query,omitempty"`
}

// Mark is one request mark file
type Mark struct {
	fs     afero.Fs
	path   string
	logger *log.Entry
}

// New creates a mark backed by path on fs
func New(fs afero.Fs, path string, logger *log.Entry) *Mark {
	if logger == nil {
		logger = log.WithField("component", "markconfig")
	}
	return &Mark{fs: fs, path: path, logger: logger}
}

// Path returns the mark file path
func (m *Mark) Path() string {
	return m.path
}

// ConfigFileExists reports whether a request is pending
func (m *Mark) ConfigFileExists() bool {
	ok, err := afero.Exists(m.fs, m.path)
	return err == nil && ok
}

// Load reads the pending request
func (m *Mark) Load() (Request, error) {
	var req Request
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return req, fmt.Errorf("failed to read mark: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse mark %s: %w", m.path, err)
	}
	return req, nil
}

// VolumeType returns the requested volume type, or "" without a mark
func (m *Mark) VolumeType() string {
	return m.field(func(r Request) string { return r.VolumeType })
}

// Command returns the requested operation, or "" without a mark
func (m *Mark) Command() string {
	return m.field(func(r Request) string { return r.Command })
}

// DiskFormatQuery returns the requested format query, or "" without a mark
func (m *Mark) DiskFormatQuery() string {
	return m.field(func(r Request) string { return r.DiskFormatQuery })
}

func (m *Mark) field(get func(Request) string) string {
	if !m.ConfigFileExists() {
		return ""
	}
	req, err := m.Load()
	if err != nil {
		m.logger.Warnf("%v", err)
		return ""
	}
	return get(req)
}

// Commit writes req through a temp file and rename
func (m *Mark) Commit(req Request) error {
	data, err := yaml.Marshal(&req)
	if err != nil {
		return fmt.Errorf("failed to marshal mark: %w", err)
	}

	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create mark directory: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write mark: %w", err)
	}
	if err := m.fs.Rename(tmp, m.path); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("failed to replace mark: %w", err)
	}
	m.logger.Infof("committed %s request for %s volumes", req.Command, req.VolumeType)
	return nil
}

// Clear removes the mark. A missing mark is already clear.
func (m *Mark) Clear() bool {
	if err := m.fs.Remove(m.path); err != nil && !os.IsNotExist(err) {
		m.logger.Errorf("failed to clear mark %s: %v", m.path, err)
		return false
	}
	return true
}
