package registry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sigreer/vmcrypt/internal/lsblk"
)

// ErrRegistryCorruption is wrapped by every CorruptionError, together with
// lsblk.ErrParse
var ErrRegistryCorruption = errors.New("registry corrupt")

// NoneField stands in for an empty field, which a space separated line
// cannot hold
const NoneField = "None"

// UnknownSlot marks a record whose LUKS keyslot is not known
const UnknownSlot = -1

// minFields is the field count of a record written before slots were tracked
const minFields = 6

// CryptItem is one registry record: an encrypted device and how to unlock
// and mount it
type CryptItem struct {
	MapperName       string `json:"mapper_name"`
	DevPath          string `json:"dev_path"`
	LuksHeaderPath   string `json:"luks_header_path,omitempty"` // empty: header embedded in DevPath
	MountPoint       string `json:"mount_point,omitempty"`      // empty: no filesystem (LVM PV, raid member)
	FileSystem       string `json:"file_system,omitempty"`
	UsesCleartextKey bool   `json:"uses_cleartext_key"`
	CurrentLuksSlot  int    `json:"current_luks_slot"`
}

func (c CryptItem) String() string {
	return fmt.Sprintf("%s (%s -> %s)", c.MapperName, c.DevPath, c.MountPoint)
}

// CorruptionError reports a registry line that cannot be parsed
type CorruptionError struct {
	Path   string
	Line   int
	Text   string
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed crypt item %q: %s", e.Text, e.Reason)
	}
	return fmt.Sprintf("%s line %d: malformed crypt item %q: %s", e.Path, e.Line, e.Text, e.Reason)
}

func (e *CorruptionError) Unwrap() []error {
	return []error{ErrRegistryCorruption, lsblk.ErrParse}
}

// ParseLine parses one registry line. The trailing slot field is optional.
func ParseLine(line string) (CryptItem, error) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return CryptItem{}, &CorruptionError{
			Text:   strings.TrimSpace(line),
			Reason: fmt.Sprintf("expected at least %d fields, got %d", minFields, len(fields)),
		}
	}

	item := CryptItem{
		MapperName:       fields[0],
		DevPath:          fields[1],
		LuksHeaderPath:   fromField(fields[2]),
		MountPoint:       fromField(fields[3]),
		FileSystem:       fromField(fields[4]),
		UsesCleartextKey: fields[5] == "True",
		CurrentLuksSlot:  UnknownSlot,
	}

	if len(fields) > minFields {
		slot, err := strconv.Atoi(fields[6])
		if err != nil {
			return CryptItem{}, &CorruptionError{
				Text:   strings.TrimSpace(line),
				Reason: fmt.Sprintf("invalid keyslot %q", fields[6]),
			}
		}
		item.CurrentLuksSlot = slot
	}

	return item, nil
}

// FormatLine renders item as a registry line without the trailing newline
func FormatLine(item CryptItem) string {
	cleartext := "False"
	if item.UsesCleartextKey {
		cleartext = "True"
	}
	return strings.Join([]string{
		item.MapperName,
		item.DevPath,
		toField(item.LuksHeaderPath),
		toField(item.MountPoint),
		toField(item.FileSystem),
		cleartext,
		strconv.Itoa(item.CurrentLuksSlot),
	}, " ")
}

// Validate rejects items that cannot be written as a single line
func Validate(item CryptItem) error {
	if item.MapperName == "" || item.DevPath == "" {
		return errors.New("mapper name and device path are required")
	}
	for _, f := range []string{item.MapperName, item.DevPath, item.LuksHeaderPath, item.MountPoint, item.FileSystem} {
		if strings.ContainsAny(f, " \t\r\n") {
			return fmt.Errorf("field %q contains whitespace", f)
		}
	}
	return nil
}

func fromField(s string) string {
	if s == NoneField {
		return ""
	}
	return s
}

func toField(s string) string {
	if s == "" {
		return NoneField
	}
	return s
}
