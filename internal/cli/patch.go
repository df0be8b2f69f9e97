package cli

import (
	"github.com/spf13/cobra"
)

func (a *app) newPatchCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Install the bootstrap patch and virtualize the game module",
		Long: `Runs the patch pass once. Files that are already patched are left alone.

Failures are logged and the command still succeeds so the host can keep
loading un-patched. Use --strict to return the error instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.logger(cmd, cfg)

			patcher, err := cfg.Patcher()
			if err != nil {
				log.Error().Err(err).Msg("Invalid configuration")
				if strict {
					return err
				}
				return nil
			}
			patcher.Log = log

			ran, err := a.boot.Run(func() error {
				log.Debug().Msg("Prepping bootstrapper")
				report, err := patcher.Run()
				if err != nil {
					return err
				}
				log.Info().
					Bool("wrote", report.Wrote()).
					Bool("core", report.CoreWritten).
					Bool("virtualized", report.VirtualizeWritten).
					Stringer("initializer", report.Initializer).
					Str("backup", report.Backup).
					Msg("Patch pass finished")
				return nil
			})
			if !ran {
				log.Debug().Msg("Already bootstrapped")
			}
			if err != nil {
				log.Error().Err(err).Msg("Patch pass failed, the host will load un-patched")
				if strict {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "return an error when the patch pass fails")
	return cmd
}
