package app

import (
	"context"
	"time"

	pkgcron "github.com/simple-flow/find-image/internal/pkg/cron"
	"go.uber.org/zap"
)

const sweepJobName = "sweep_images"

// registerCronJobs registers scheduled background maintenance.
func (a *App) registerCronJobs() {
	cronLogger := a.logger.Named("cron")

	a.sched.Register(pkgcron.Job{
		Name:     sweepJobName,
		Interval: 24 * time.Hour,
		Fn: func(ctx context.Context) error {
			removed, err := a.storage.Sweep()
			if err != nil {
				cronLogger.Warn("image sweep failed", zap.Error(err))
				return err
			}
			cronLogger.Info("image sweep finished", zap.Int("removed", removed))
			return nil
		},
	})
}
