package checkpoint

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Speaker renders a line of speech. Speak blocks until the line has been
// spoken or ctx is cancelled, and must return promptly on cancellation.
type Speaker interface {
	Speak(ctx context.Context, line string) error
}

// HapticDriver plays a pattern on the wearable.
type HapticDriver interface {
	Trigger(ctx context.Context, p Pattern) error
}

// Narrator serializes spoken output. A new line interrupts the one in
// flight and waits for it to stop before starting, so two lines never
// overlap and nothing is queued.
type Narrator struct {
	speaker Speaker
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNarrator wraps speaker. A nil speaker makes Say a no-op.
func NewNarrator(speaker Speaker, logger *zap.Logger) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{speaker: speaker, logger: logger}
}

// Say interrupts any in-flight line and starts speaking line.
func (n *Narrator) Say(line string) {
	if n == nil || n.speaker == nil || line == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.interruptLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n.cancel, n.done = cancel, done

	go func() {
		defer close(done)
		if err := n.speaker.Speak(ctx, line); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Warn("speech failed", zap.Error(err))
		}
	}()
}

// Stop silences the narrator and waits for the speaker to return.
func (n *Narrator) Stop() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.interruptLocked()
}

// Speaking reports whether a line is in flight.
func (n *Narrator) Speaking() bool {
	if n == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done == nil {
		return false
	}
	select {
	case <-n.done:
		return false
	default:
		return true
	}
}

func (n *Narrator) interruptLocked() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
	n.cancel, n.done = nil, nil
}
