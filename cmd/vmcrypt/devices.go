package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sigreer/vmcrypt/internal/diskutil"
)

var devicesCmd = &cobra.Command{
	Use:   "devices [path]",
	Short: "List block devices",
	Args:  cobra.MaximumNArgs(1),
	RunE:   runDevices,
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show the parent of every block device",
	RunE:   runTopology,
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show block devices as a nested tree in JSON",
	RunE:   runTree,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show OS and data volume encryption state",
	RunE:   runStatus,
}

var skipCheckCmd = &cobra.Command{
	Use:   "skip-check <name>",
	Short: "Report whether a device would be skipped by in-place encryption",
	Long: `Evaluate the in-place encryption skip rules for one device.

The device can be named any way identify accepts (sdc1, rootvg/rootlv,
/dev/disk/azure/scsi1/lun0, a mapper name).
Exit status is 0 when the device would be encrypted and 2 when it is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE:  runSkipCheck,
}

// volumeTypeValue restricts --volume-type to the known volume types
type volumeTypeValue string

var _ pflag.Value = (*volumeTypeValue)(nil)

func (v *volumeTypeValue) String() string { return string(*v) }

func (v *volumeTypeValue) Set(s string) error {
	switch strings.ToLower(s) {
	case diskutil.VolumeTypeData, diskutil.VolumeTypeOS, diskutil.VolumeTypeAll:
		*v = volumeTypeValue(strings.ToLower(s))
		return nil
	}
	return fmt.Errorf("must be one of data, os, all")
}

func (v *volumeTypeValue) Type() string { return "volumeType" }

var skipVolumeType = volumeTypeValue(diskutil.VolumeTypeData)

func init() {
	devicesCmd.Flags().Bool("json", false, "Output as JSON")
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	skipCheckCmd.Flags().Var(&skipVolumeType, "volume-type", "volume type being encrypted: data, os or all")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runDevices(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var filter string
	if len(args) > 0 {
		filter = args[0]
	}

	items, err := a.du.DeviceItems(filter)
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return printJSON(items)
	}

	if len(items) == 0 {
		fmt.Println("No block devices found.")
		return nil
	}

	fmt.Printf("%-20s %-6s %-12s %-20s %-10s %-8s %s\n", "NAME", "TYPE", "FSTYPE", "MOUNTPOINT", "SIZE", "MAJ:MIN", "DEVICE ID")
	fmt.Println(strings.Repeat("-", 100))
	for _, item := range items {
		fmt.Printf("%-20s %-6s %-12s %-20s %-10s %-8s %s\n",
			item.Name,
			item.Type,
			orDash(item.FileSystem),
			orDash(item.MountPoint),
			humanize.IBytes(uint64(item.Size)),
			item.MajMin,
			orDash(item.DeviceID),
		)
	}
	return nil
}

func runTopology(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	topo, err := a.du.Topology()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(topo))
	for name := range topo {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-24s %s\n", "DEVICE", "PARENT")
	for _, name := range names {
		fmt.Printf("%-24s %s\n", name, orDash(topo[name]))
	}
	return nil
}

func runTree(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	nodes, err := a.du.LsblkTree()
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"blockdevices": nodes})
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.du.EncryptionStatus()
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return printJSON(status)
	}

	fmt.Printf("OS:   %s\n", status.OS)
	fmt.Printf("Data: %s\n", status.Data)
	if a.enc.ConfigFileExists() {
		fmt.Printf("Pending encryption request: %s (%s)\n", orDash(a.enc.Command()), orDash(a.enc.VolumeType()))
	}
	if a.dec.ConfigFileExists() {
		fmt.Printf("Pending decryption request: %s (%s)\n", orDash(a.dec.Command()), orDash(a.dec.VolumeType()))
	}
	return nil
}

func runSkipCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.buildIndex()
	if err != nil {
		return fmt.Errorf("building device index: %w", err)
	}
	entity, _, err := idx.Lookup(args[0])
	if err != nil {
		return fmt.Errorf("device %s not found", args[0])
	}

	item := entity.Device
	skip, err := a.du.ShouldSkipForInplaceEncryption(item, skipVolumeType.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if skip {
		fmt.Printf("%s: skip\n", item.Name)
		return &exitError{code: 2}
	}
	fmt.Printf("%s: encrypt\n", item.Name)
	return nil
}
