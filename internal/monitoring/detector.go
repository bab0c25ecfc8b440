package monitoring

import (
	"context"
	"fmt"

	"github.com/socialpulse/followwatch/internal/models"
	"github.com/socialpulse/followwatch/internal/storage"
)

// DetectResult is the outcome of comparing a fresh count with the latest sample
type DetectResult struct {
	Written  bool
	Sample   *models.Sample
	Previous *models.Sample
}

// ChangeDetector appends a sample only when the count changed.
// Callers hold the profile lock so the read and the write are atomic per profile.
type ChangeDetector struct {
	samples storage.SampleRepository
}

// NewChangeDetector creates a detector over the sample store
func NewChangeDetector(samples storage.SampleRepository) *ChangeDetector {
	return &ChangeDetector{samples: samples}
}

// Detect writes a new sample when none exists or count differs from the latest
func (d *ChangeDetector) Detect(ctx context.Context, profileID string, count int64) (*DetectResult, error) {
	previous, err := d.samples.GetLatest(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest sample: %w", err)
	}

	if previous != nil && previous.Count == count {
		return &DetectResult{Sample: previous, Previous: previous}, nil
	}

	sample, err := models.NewSample(profileID, count)
	if err != nil {
		return nil, err
	}
	if err := d.samples.Create(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to store sample: %w", err)
	}

	return &DetectResult{Written: true, Sample: sample, Previous: previous}, nil
}
