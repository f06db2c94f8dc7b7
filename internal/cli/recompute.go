package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"puzzle-scoring-service/internal/config"
	"puzzle-scoring-service/internal/logger"
)

// NewRecomputeCmd rebuilds every derived aggregate from the attempt ledger.
func NewRecomputeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute challenge stats, profiles and the ranking from stored attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errNoPostgres
			}
			log := logger.New(serviceName, cfg.Log.Level).WithField("command", "recompute")

			service, cleanup, err := buildService(cmd.Context(), cfg, log, prometheus.NewRegistry(), false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := service.RecomputeAll(cmd.Context()); err != nil {
				log.WithError(err).Error("recompute finished with failures")
				return err
			}
			log.Info("recompute complete")
			return nil
		},
	}
}
