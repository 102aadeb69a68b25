package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigreer/vmcrypt/internal/markconfig"
)

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Show or change the pending encryption and decryption requests",
}

var markShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show pending requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, m := range []struct {
			name string
			mark *markconfig.Mark
		}{{"encryption", a.enc}, {"decryption", a.dec}} {
			if !m.mark.ConfigFileExists() {
				fmt.Printf("%-10s none\n", m.name)
				continue
			}
			req, err := m.mark.Load()
			if err != nil {
				fmt.Printf("%-10s unreadable: %v\n", m.name, err)
				continue
			}
			fmt.Printf("%-10s command=%s volume_type=%s disk_format_query=%s\n",
				m.name, orDash(req.Command), orDash(req.VolumeType), orDash(req.DiskFormatQuery))
		}
		return nil
	},
}

var markSetCmd = &cobra.Command{
	Use:       "set <encryption|decryption>",
	Short:     "Record a pending request",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"encryption", "decryption"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		command, _ := cmd.Flags().GetString("command")
		volumeType, _ := cmd.Flags().GetString("volume-type")
		query, _ := cmd.Flags().GetString("disk-format-query")

		req := markconfig.Request{Command: command, VolumeType: volumeType, DiskFormatQuery: query}
		return a.markFor(args[0]).Commit(req)
	},
}

var markClearCmd = &cobra.Command{
	Use:       "clear <encryption|decryption>",
	Short:     "Drop a pending request",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"encryption", "decryption"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.markFor(args[0]).Clear() {
			return fmt.Errorf("could not clear the %s request, see log", args[0])
		}
		return nil
	},
}

func (a *app) markFor(name string) *markconfig.Mark {
	if name == "decryption" {
		return a.dec
	}
	return a.enc
}

func init() {
	markCmd.AddCommand(markShowCmd)
	markCmd.AddCommand(markSetCmd)
	markCmd.AddCommand(markClearCmd)

	markSetCmd.Flags().String("command", "EnableEncryption", "requested operation")
	markSetCmd.Flags().String("volume-type", "Data", "volume type: Data, OS or All")
	markSetCmd.Flags().String("disk-format-query", "", "disk format query")

	rootCmd.AddCommand(markCmd)
}
