package main

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sigreer/vmcrypt/internal/config"
	"github.com/sigreer/vmcrypt/internal/diskutil"
	"github.com/sigreer/vmcrypt/internal/distro"
	"github.com/sigreer/vmcrypt/internal/executor"
	"github.com/sigreer/vmcrypt/internal/journal"
	"github.com/sigreer/vmcrypt/internal/logging"
	"github.com/sigreer/vmcrypt/internal/markconfig"
	"github.com/sigreer/vmcrypt/internal/registry"
)

var (
	cfgFile   string
	logLevel  string
	noJournal bool
)

var rootCmd = &cobra.Command{
	Use:   "vmcrypt",
	Short: "LUKS volume inventory and crypt registry tool",
	Long: `vmcrypt inspects the block devices of a VM, reports their encryption
state, and keeps the azure_crypt_mount registry of LUKS volumes in step with
the volumes actually attached.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError ends the process with a status other than 1 and no message
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app holds the components every command is built from
type app struct {
	cfg     *config.Config
	fs      afero.Fs
	store   *registry.Store
	enc     *markconfig.Mark
	dec     *markconfig.Mark
	journal *journal.DB
	du      *diskutil.DiskUtil
}

// openApp loads config and logging and wires the disk utility
func openApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, err
	}

	var paths distro.Paths
	patcher, err := distro.Detect(cfg.OSRelease, cfg.Tools)
	if err != nil {
		log.Warnf("Could not detect distribution, using tool names from PATH: %v", err)
		paths = distro.Bare{}
	} else {
		log.Debugf("Detected distribution %s", patcher.DistroInfo())
		paths = patcher
	}

	a := &app{cfg: cfg, fs: afero.NewOsFs()}
	a.store = registry.NewStore(a.fs, cfg.Registry, log.WithField("component", "registry"))
	a.enc = markconfig.New(a.fs, cfg.Marks.Encryption, log.WithField("component", "markconfig"))
	a.dec = markconfig.New(a.fs, cfg.Marks.Decryption, log.WithField("component", "markconfig"))

	opts := diskutil.Options{
		Executor:       executor.New(log.WithField("component", "executor")),
		Paths:          paths,
		Fs:             a.fs,
		Registry:       a.store,
		Env:            cfg.Environment(),
		EncryptionMark: a.enc,
		DecryptionMark: a.dec,
		Logger:         log.WithField("component", "diskutil"),
	}

	if cfg.Journal.Enabled && !noJournal {
		db, err := journal.New(cfg.Journal.Path)
		if err != nil {
			log.Warnf("Journal unavailable, events will not be recorded: %v", err)
		} else {
			a.journal = db
			opts.Recorder = db
		}
	}

	a.du = diskutil.New(opts)
	return a, nil
}

func (a *app) Close() {
	if a.journal != nil {
		a.journal.Close()
	}
}

// newApp is what command handlers open; every handler defers Close
var newApp = openApp

// exitCode maps a command error to a process exit status
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/vmcrypt/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "do not record events in the journal")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(skipCheckCmd)
	rootCmd.AddCommand(cryptCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
