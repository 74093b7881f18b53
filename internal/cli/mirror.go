package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"dbkompare-functions/internal/config"
)

// NewMirrorQuizzesCmd copies the quizzes table into the Postgres mirror.
func NewMirrorQuizzesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror-quizzes",
		Short: "Copy quizzes from DynamoDB into the Postgres mirror and evict them from the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errors.New("mirror-quizzes: postgres.url is not configured")
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			if err := runMigrations(ctx, cfg, log); err != nil {
				return err
			}
			rt, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := rt.mirror.Sync(ctx)
			if err != nil {
				return err
			}
			log.WithField("copied", report.Copied).Info("mirror complete")
			return nil
		},
	}
}
