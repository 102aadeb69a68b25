package identify

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrintJSON outputs the lookup result as JSON
func PrintJSON(w io.Writer, result *LookupResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// PrintTable outputs the lookup result as a formatted table
func PrintTable(w io.Writer, result *LookupResult) {
	e := result.Entity
	fmt.Fprintf(w, "Query:      %s\n", result.Query)
	fmt.Fprintf(w, "Matched As: %s\n", result.MatchedAs)
	fmt.Fprintf(w, "Device:     %s\n", e.DevicePath)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-20s %s\n", "IDENTIFIER", "VALUE")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	printField(w, "Kernel Name", e.Device.Name)
	printField(w, "Type", e.Device.Type)
	printField(w, "Size", humanize.IBytes(uint64(e.Device.Size)))
	printField(w, "MAJ:MIN", e.Device.MajMin)
	printField(w, "Model", e.Device.Model)
	printField(w, "Device ID", e.Device.DeviceID)
	printField(w, "Azure Link", e.AzureLink)
	printField(w, "FS Type", e.Device.FileSystem)
	printField(w, "FS UUID", e.Device.UUID)
	printField(w, "FS Label", e.Device.Label)
	printField(w, "Mount Point", e.Device.MountPoint)

	for _, ci := range e.CryptItems {
		printField(w, "Mapper", ci.MapperName)
		printField(w, "  Mount Point", ci.MountPoint)
		printField(w, "  Header", ci.LuksHeaderPath)
	}
}

// PrintQuiet outputs only the device path
func PrintQuiet(w io.Writer, result *LookupResult) {
	fmt.Fprintln(w, result.Entity.DevicePath)
}

func printField(w io.Writer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%-20s %s\n", name, value)
}
