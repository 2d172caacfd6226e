package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailroom/internal/db"
	"mailroom/internal/metrics"
	"mailroom/internal/models"
)

// Tracker records delivery opens signalled by the tracking pixel. Tracking
// is best-effort: unknown ids and repeat opens are silent no-ops, and
// nothing here ever surfaces an error to the unauthenticated caller.
type Tracker struct {
	Store db.JobStore
	Log   *zap.Logger
}

// RecordOpen marks the job carrying trackingID as opened. Only the first
// open per job mutates the record.
func (t *Tracker) RecordOpen(ctx context.Context, trackingID string, meta models.OpenMeta) {
	if trackingID == "" {
		return
	}

	first, err := t.Store.RecordOpen(ctx, trackingID, time.Now(), meta)
	if err != nil {
		t.Log.Warn("failed to record email open",
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
		return
	}

	if first {
		metrics.EmailOpens.Inc()
		t.Log.Info("email open recorded",
			zap.String("tracking_id", trackingID),
			zap.String("ip", meta.IPAddress),
		)
	}
}
