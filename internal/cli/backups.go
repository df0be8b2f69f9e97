package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/pboyd/inject"
)

func (a *app) newBackupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List or restore backup sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backup sets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			sets, err := inject.ListBackups(cfg.BackupRoot(), cfg.HostDir)
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				printf(cmd, "No backups in %s\n", cfg.BackupRoot())
				return nil
			}
			for _, b := range sets {
				printf(cmd, "%s\t%s\t%s\t%d files\n", b.Name(), b.Created().Local().Format(time.DateTime), b.ID(), len(b.Entries()))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "Restore the newest backup set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.logger(cmd, cfg)

			b, err := inject.FindLatestBackup(cfg.BackupRoot(), cfg.HostDir)
			if err != nil {
				return err
			}
			if b == nil {
				return errors.New("no backup found")
			}

			if err := b.Restore(); err != nil {
				return err
			}
			log.Info().Str("backup", b.Name()).Int("files", len(b.Entries())).Msg("Restored")
			return nil
		},
	})

	return cmd
}
