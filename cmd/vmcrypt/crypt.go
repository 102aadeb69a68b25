package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/sigreer/vmcrypt/internal/journal"
	"github.com/sigreer/vmcrypt/internal/registry"
)

var cryptCmd = &cobra.Command{
	Use:   "crypt",
	Short: "Manage the crypt item registry",
	Long: `Manage the azure_crypt_mount registry.

Each record names a LUKS device, the mapper it is unlocked as, and where its
filesystem is mounted. Add and remove can also maintain the backup copy kept
on the encrypted volume itself, which consolidate reads back.`,
}

var cryptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List crypt items, including the synthesized root item",
	RunE:   runCryptList,
}

var cryptAddCmd = &cobra.Command{
	Use:   "add <mapper> <device>",
	Short: "Register a crypt item",
	Args:  cobra.ExactArgs(2),
	RunE:   runCryptAdd,
}

var cryptUpdateCmd = &cobra.Command{
	Use:   "update <mapper> <device>",
	Short: "Replace the record of a crypt item",
	Args:  cobra.ExactArgs(2),
	RunE:   runCryptUpdate,
}

var cryptRemoveCmd = &cobra.Command{
	Use:   "remove <mapper>",
	Short: "Unregister a crypt item",
	Args:  cobra.ExactArgs(1),
	RunE:   runCryptRemove,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Register LUKS devices missing from the registry",
	Long: `Find every LUKS device that has no registry record, unlock it with the
passphrase file, and copy the record kept on the volume into the registry.

Devices without a filesystem or without a kept record are registered with no
mount point. A failure on one device does not stop the others.`,
	RunE: runConsolidate,
}

func init() {
	cryptCmd.AddCommand(cryptListCmd)
	cryptCmd.AddCommand(cryptAddCmd)
	cryptCmd.AddCommand(cryptUpdateCmd)
	cryptCmd.AddCommand(cryptRemoveCmd)

	cryptListCmd.Flags().Bool("json", false, "Output as JSON")

	for _, c := range []*cobra.Command{cryptAddCmd, cryptUpdateCmd} {
		c.Flags().String("header", "", "detached LUKS header path")
		c.Flags().String("mount-point", "", "mount point of the unlocked filesystem")
		c.Flags().String("fs", "", "filesystem type")
		c.Flags().Bool("cleartext-key", false, "unlock with the cleartext key file")
		c.Flags().Int("slot", registry.UnknownSlot, "LUKS keyslot holding the passphrase")
		c.Flags().String("backup-folder", "", "also write the record under this folder")
	}
	cryptRemoveCmd.Flags().String("backup-folder", "", "also remove the record kept under this folder")

	consolidateCmd.Flags().String("passphrase-file", "", "passphrase file (default from config)")
}

func itemFromFlags(cmd *cobra.Command, args []string) registry.CryptItem {
	header, _ := cmd.Flags().GetString("header")
	mountPoint, _ := cmd.Flags().GetString("mount-point")
	fs, _ := cmd.Flags().GetString("fs")
	cleartext, _ := cmd.Flags().GetBool("cleartext-key")
	slot, _ := cmd.Flags().GetInt("slot")

	return registry.CryptItem{
		MapperName:       args[0],
		DevPath:          args[1],
		LuksHeaderPath:   header,
		MountPoint:       mountPoint,
		FileSystem:       fs,
		UsesCleartextKey: cleartext,
		CurrentLuksSlot:  slot,
	}
}

func runCryptList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.du.CryptItems()
	if err != nil {
		if errors.Is(err, registry.ErrRegistryCorruption) {
			return fmt.Errorf("registry %s is corrupt: %w", a.store.Path(), err)
		}
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return printJSON(items)
	}

	if len(items) == 0 {
		fmt.Println("No crypt items registered.")
		return nil
	}

	fmt.Printf("%-28s %-36s %-16s %-8s %-9s %s\n", "MAPPER", "DEVICE", "MOUNTPOINT", "FSTYPE", "CLEARTEXT", "SLOT")
	fmt.Println(strings.Repeat("-", 110))
	for _, item := range items {
		slot := "-"
		if item.CurrentLuksSlot != registry.UnknownSlot {
			slot = fmt.Sprintf("%d", item.CurrentLuksSlot)
		}
		fmt.Printf("%-28s %-36s %-16s %-8s %-9t %s\n",
			item.MapperName,
			item.DevPath,
			orDash(item.MountPoint),
			orDash(item.FileSystem),
			item.UsesCleartextKey,
			slot,
		)
		if item.LuksHeaderPath != "" {
			fmt.Printf("  header: %s\n", item.LuksHeaderPath)
		}
	}
	return nil
}

func runCryptAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	item := itemFromFlags(cmd, args)
	backup, _ := cmd.Flags().GetString("backup-folder")
	if !a.du.AddCryptItem(item, backup) {
		return fmt.Errorf("could not add %s, see log", item.MapperName)
	}
	fmt.Printf("Added %s\n", item)
	return nil
}

func runCryptUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	item := itemFromFlags(cmd, args)
	backup, _ := cmd.Flags().GetString("backup-folder")
	if !a.du.UpdateCryptItem(item, backup) {
		return fmt.Errorf("could not update %s, see log", item.MapperName)
	}
	fmt.Printf("Updated %s\n", item)
	return nil
}

func runCryptRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.store.Read()
	if err != nil {
		return err
	}

	backup, _ := cmd.Flags().GetString("backup-folder")
	for _, item := range items {
		if item.MapperName != args[0] {
			continue
		}
		if !a.du.RemoveCryptItem(item, backup) {
			return fmt.Errorf("could not remove %s, see log", item.MapperName)
		}
		fmt.Printf("Removed %s\n", item)
		return nil
	}

	return fmt.Errorf("no crypt item named %s", args[0])
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	passphrase, _ := cmd.Flags().GetString("passphrase-file")
	if passphrase == "" {
		passphrase = a.cfg.PassphraseFile
	}
	if passphrase == "" {
		return errors.New("no passphrase file given and none configured")
	}
	if _, err := os.Stat(passphrase); err != nil {
		return fmt.Errorf("passphrase file: %w", err)
	}

	before, _ := a.store.Read()
	run := journal.Run{StartedAt: time.Now()}

	err = a.du.ConsolidateAzureCryptMount(passphrase)

	run.FinishedAt = time.Now()
	after, _ := a.store.Read()
	run.Registered = len(after) - len(before)
	if err != nil {
		run.Error = err.Error()
		run.Failures = 1
		var merr *multierror.Error
		if errors.As(err, &merr) {
			run.Failures = len(merr.Errors)
		}
	}

	if a.journal != nil {
		if _, jerr := a.journal.RecordRun(run); jerr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", jerr)
		}
	}

	fmt.Printf("Registered %d new crypt item(s) in %s\n", run.Registered, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("%d device(s) failed:\n%w", run.Failures, err)
	}
	return nil
}
