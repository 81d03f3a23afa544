package checkpoint

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LogSpeaker logs each line and holds it for a duration proportional to
// its length, approximating a speech synthesizer.
type LogSpeaker struct {
	Logger  *zap.Logger
	PerWord time.Duration
}

func (s LogSpeaker) Speak(ctx context.Context, line string) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("speak", zap.String("line", line))

	d := time.Duration(len(strings.Fields(line))) * s.PerWord
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		logger.Debug("speech interrupted", zap.String("line", line))
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LogHaptics logs patterns instead of playing them.
type LogHaptics struct {
	Logger *zap.Logger
}

func (h LogHaptics) Trigger(_ context.Context, p Pattern) error {
	if h.Logger != nil {
		h.Logger.Info("haptic", zap.String("pattern", string(p)))
	}
	return nil
}

// MultiHaptics plays a pattern on every driver, returning all failures.
type MultiHaptics []HapticDriver

func (m MultiHaptics) Trigger(ctx context.Context, p Pattern) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Trigger(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
