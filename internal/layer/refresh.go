package layer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresh calls run every interval until ctx is cancelled. Failures are
// logged and the loop keeps going.
func Refresh(ctx context.Context, interval time.Duration, run func(context.Context) error) {
	if interval <= 0 {
		return
	}
	log := zap.L().With(zap.String("component", "layer.refresh"))
	log.Info("starting layer refresh", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("layer refresh stopped")
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				log.Error("layer refresh failed", zap.Error(err))
			}
		}
	}
}
