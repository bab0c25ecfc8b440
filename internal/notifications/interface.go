package notifications

import (
	"context"

	"github.com/socialpulse/followwatch/internal/models"
)

// Notifier delivers milestone notifications. Delivery is best effort:
// failures are logged and reported as false, never returned as errors.
type Notifier interface {
	Notify(ctx context.Context, address, handle string, threshold, count int64) bool
}

// ReportPublisher posts a cycle summary to an operator channel
type ReportPublisher interface {
	PublishCycleReport(ctx context.Context, report *models.CycleReport) error
}
