package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/vmcrypt/internal/identify"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <query>",
	Short: "Look up a device by any name it is known by",
	Long: `Resolve a device name, path or identifier to the block device it names.

Supports: kernel names, device paths and symlinks, /dev/disk/azure links,
registered mapper names, filesystem UUIDs and labels, MAJ:MIN numbers and
Hyper-V device ids.

Examples:
  vmcrypt identify sdc
  vmcrypt identify /dev/disk/azure/scsi1/lun0
  vmcrypt identify data1                       # mapper name
  vmcrypt identify 8:33`,
	Args: cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	identifyCmd.Flags().StringP("output", "o", "json", "Output format: json, table")
	identifyCmd.Flags().BoolP("quiet", "q", false, "Only output device path")

	rootCmd.AddCommand(identifyCmd)
}

// buildIndex snapshots devices, Azure links and the registry
func (a *app) buildIndex() (*identify.Index, error) {
	devices, err := a.du.DeviceItems("")
	if err != nil {
		return nil, err
	}
	links, err := a.du.AzureUdevTable()
	if err != nil {
		return nil, err
	}
	items, err := a.du.CryptItems()
	if err != nil {
		return nil, err
	}
	return identify.Build(identify.Sources{
		Devices:    devices,
		AzureLinks: links,
		CryptItems: items,
		RealPath:   a.du.RealPath,
	}), nil
}

func runIdentify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	query := args[0]
	outputFmt, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")

	idx, err := a.buildIndex()
	if err != nil {
		return fmt.Errorf("building device index: %w", err)
	}

	entity, matchedAs, err := idx.Lookup(query)
	if err != nil {
		return fmt.Errorf("not found: %s", query)
	}

	result := &identify.LookupResult{
		Query:     query,
		MatchedAs: matchedAs,
		Entity:    entity,
	}

	if quiet {
		identify.PrintQuiet(os.Stdout, result)
		return nil
	}

	switch outputFmt {
	case "table":
		identify.PrintTable(os.Stdout, result)
	default:
		if err := identify.PrintJSON(os.Stdout, result); err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
	}
	return nil
}
