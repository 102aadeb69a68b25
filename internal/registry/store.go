// Package registry persists crypt items in a flat text file, one record per
// line, so encrypted volumes can be unlocked and remounted after a reboot.
//
// The file is read and rewritten whole with no locking; a single agent
// process is assumed to own it. Two processes mutating it concurrently can
// lose updates.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultPath is the central registry location
const DefaultPath = "/var/lib/azure_disk_encryption_config/azure_crypt_mount"

// BackupFileName is the single-record copy kept next to a volume
const BackupFileName = "azure_crypt_mount_line"

// Event types passed to a Recorder
const (
	EventAdded   = "added"
	EventRemoved = "removed"
)

// Recorder receives a note of every registry mutation
type Recorder interface {
	RecordEvent(eventType, mapperName, devPath string, details map[string]interface{}) error
}

// Store reads and writes the registry file
type Store struct {
	fs       afero.Fs
	path     string
	logger   *log.Entry
	recorder Recorder
}

// NewStore creates a store for the registry at path on fs
func NewStore(fs afero.Fs, path string, logger *log.Entry) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = log.WithField("component", "registry")
	}
	return &Store{fs: fs, path: path, logger: logger}
}

// SetRecorder attaches an event recorder (nil disables recording)
func (s *Store) SetRecorder(r Recorder) {
	s.recorder = r
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the registry file is present
func (s *Store) Exists() bool {
	ok, err := afero.Exists(s.fs, s.path)
	return err == nil && ok
}

// Read parses every record. A missing file yields no items. A malformed line
// aborts the read with a CorruptionError.
func (s *Store) Read() ([]CryptItem, error) {
	if !s.Exists() {
		s.logger.Infof("%s does not exist", s.path)
		return nil, nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	return ParseFile(s.path, data)
}

// ParseFile parses registry content, skipping blank lines
func ParseFile(path string, data []byte) ([]CryptItem, error) {
	var items []CryptItem
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		item, err := ParseLine(line)
		if err != nil {
			if ce, ok := err.(*CorruptionError); ok {
				ce.Path = path
				ce.Line = i + 1
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Add appends item to the registry and, when backupFolder is set, writes a
// single-record copy there. Failures are logged and reported as false.
func (s *Store) Add(item CryptItem, backupFolder string) bool {
	if err := s.add(item, backupFolder); err != nil {
		s.logger.Errorf("failed to add crypt item %s: %v", item.MapperName, err)
		return false
	}
	return true
}

func (s *Store) add(item CryptItem, backupFolder string) error {
	if err := Validate(item); err != nil {
		return err
	}

	existing, err := s.Read()
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.MapperName == item.MapperName {
			return fmt.Errorf("mapper name %s is already registered for %s", item.MapperName, e.DevPath)
		}
	}

	line := FormatLine(item) + "\n"

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	prefix, err := s.separator()
	if err != nil {
		return err
	}

	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	if _, err := f.WriteString(prefix + line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to registry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}
	s.logger.Infof("Added crypt item %s to %s", item.MapperName, s.path)

	if backupFolder != "" {
		backupFile := filepath.Join(backupFolder, BackupFileName)
		if err := s.fs.MkdirAll(backupFolder, 0o755); err != nil {
			return fmt.Errorf("failed to create backup folder: %w", err)
		}
		if err := afero.WriteFile(s.fs, backupFile, []byte(line), 0o600); err != nil {
			return fmt.Errorf("failed to write backup %s: %w", backupFile, err)
		}
		s.logger.Infof("Added crypt item %s to %s", item.MapperName, backupFile)
	}

	s.record(EventAdded, item, backupFolder)
	return nil
}

// separator returns "\n" when the registry ends without a newline, so an
// appended record starts on its own line
func (s *Store) separator() (string, error) {
	if !s.Exists() {
		return "", nil
	}
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read registry: %w", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		return "\n", nil
	}
	return "", nil
}

// Remove rewrites the registry without any record named item.MapperName and
// deletes the backup copy in backupFolder. Failures are logged and reported
// as false.
func (s *Store) Remove(item CryptItem, backupFolder string) bool {
	if err := s.remove(item, backupFolder); err != nil {
		s.logger.Errorf("failed to remove crypt item %s: %v", item.MapperName, err)
		return false
	}
	return true
}

func (s *Store) remove(item CryptItem, backupFolder string) error {
	removed := 0
	backupRemoved := false

	if s.Exists() {
		data, err := afero.ReadFile(s.fs, s.path)
		if err != nil {
			return fmt.Errorf("failed to read registry: %w", err)
		}

		var kept strings.Builder
		for i, line := range strings.SplitAfter(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				kept.WriteString(line)
				continue
			}
			parsed, err := ParseLine(line)
			if err != nil {
				if ce, ok := err.(*CorruptionError); ok {
					ce.Path = s.path
					ce.Line = i + 1
				}
				return err
			}
			if parsed.MapperName == item.MapperName {
				removed++
				continue
			}
			kept.WriteString(line)
		}

		if err := s.rewrite([]byte(kept.String())); err != nil {
			return err
		}
		s.logger.Infof("Removed %d record(s) for %s from %s", removed, item.MapperName, s.path)
	}

	if backupFolder != "" {
		backupFile := filepath.Join(backupFolder, BackupFileName)
		if ok, _ := afero.Exists(s.fs, backupFile); ok {
			if err := s.fs.Remove(backupFile); err != nil {
				return fmt.Errorf("failed to remove backup %s: %w", backupFile, err)
			}
			backupRemoved = true
			if err := s.fs.Remove(backupFolder); err != nil {
				s.logger.Warnf("could not remove backup folder %s: %v", backupFolder, err)
			}
		}
	}

	if removed > 0 || backupRemoved {
		s.record(EventRemoved, item, backupFolder)
	}
	return nil
}

// rewrite replaces the registry through a temp file and rename so a crash
// leaves either the old or the new content
func (s *Store) rewrite(data []byte) error {
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

// Update replaces the record for item.MapperName by removing then adding it.
// The two steps are not atomic: if the add fails the record stays removed.
func (s *Store) Update(item CryptItem, backupFolder string) bool {
	s.logger.Infof("Updating entry for crypt item %s", item)
	removed := s.Remove(item, backupFolder)
	added := s.Add(item, backupFolder)
	return removed && added
}

// ReadBackup parses the single-record copy kept in backupFolder
func (s *Store) ReadBackup(backupFolder string) ([]CryptItem, error) {
	backupFile := filepath.Join(backupFolder, BackupFileName)
	data, err := afero.ReadFile(s.fs, backupFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", backupFile, err)
	}
	return ParseFile(backupFile, data)
}

func (s *Store) record(eventType string, item CryptItem, backupFolder string) {
	if s.recorder == nil {
		return
	}
	details := map[string]interface{}{"registry": s.path}
	if backupFolder != "" {
		details["backup_folder"] = backupFolder
	}
	if err := s.recorder.RecordEvent(eventType, item.MapperName, item.DevPath, details); err != nil {
		s.logger.Warnf("failed to record %s event for %s: %v", eventType, item.MapperName, err)
	}
}
