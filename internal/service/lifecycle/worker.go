package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Worker periodically completes bookings whose show has ended.
type Worker struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

func NewWorker(svc *Service, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Worker{svc: svc, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("lifecycle worker started", "interval", w.interval)

	for {
		w.sweep(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("lifecycle worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.svc.CompleteEnded(ctx, w.svc.cfg.Now(), 0)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("completing ended bookings failed", "completed", n, "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("ended bookings completed", "completed", n)
	}
}
