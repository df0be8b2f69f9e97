// Package cli implements the injector command line.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pboyd/inject"
	"github.com/pboyd/inject/internal/config"
	"github.com/pboyd/inject/internal/logging"
	"github.com/pboyd/inject/internal/version"
)

// app is the state of one process. The bootstrap guard lives here rather
// than in a package variable so every command tree starts fresh.
type app struct {
	configPath string
	hostDir    string
	logLevel   string

	boot inject.Bootstrap
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "inject",
		Short: "Patch a host's modules so they load the injector",
		Long: `Rewrites the host's modules on disk before it starts:

- installs a call to the injector hook in the core module's type initializer
- keeps the core module's reference to the injector at the running version
- virtualizes the game module so its members can be overridden

Every file is backed up before it is first changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.hostDir, "dir", "C", "", "host installation directory (default: config host_dir)")
	flags.StringVar(&a.configPath, "config", "", "config file (default: <dir>/"+config.DefaultFile+")")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(a.newPatchCmd())
	root.AddCommand(a.newBackupsCmd())
	root.AddCommand(a.newInspectCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) loadConfig() (*config.Config, error) {
	path := a.configPath
	if path == "" {
		dir := a.hostDir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, config.DefaultFile)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if a.hostDir != "" {
		cfg.HostDir = a.hostDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	return cfg, nil
}

func (a *app) logger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	return logging.NewWithComponent(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	}, "injector")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Injector version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
