// Package store persists finished episode summaries.
package store

import (
	"context"
	"errors"

	"github.com/synheart/synheart-seizure/internal/models"
)

// Recorder saves one summary.
type Recorder interface {
	Save(ctx context.Context, summary models.EpisodeSummary) error
}

// Lister reads stored summaries, newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]models.EpisodeSummary, error)
}

// MultiRecorder saves to every recorder. All are attempted; the first
// error is returned.
type MultiRecorder []Recorder

func (m MultiRecorder) Save(ctx context.Context, summary models.EpisodeSummary) error {
	var first error
	for _, r := range m {
		if err := r.Save(ctx, summary); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ErrNotFound is returned when an episode is not stored.
var ErrNotFound = errors.New("episode not found")
