package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/models"
)

// TelemetrySink receives replayed samples.
type TelemetrySink interface {
	Publish(ctx context.Context, s models.TelemetrySample) error
}

// Replayer feeds the telemetry events of a recording back into a sink,
// keeping the recorded spacing scaled by speed. Other event kinds are
// skipped; the live pipeline regenerates them.
type Replayer struct {
	filename string
	speed    float64
	loop     bool
	logger   *zap.Logger
}

// NewReplayer creates a new replayer
func NewReplayer(filename string, speed float64, loop bool, logger *zap.Logger) *Replayer {
	if speed <= 0 {
		speed = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		filename: filename,
		speed:    speed,
		loop:     loop,
		logger:   logger,
	}
}

// Replay plays the recording, looping when configured, until ctx is done.
func (r *Replayer) Replay(ctx context.Context, sink TelemetrySink) error {
	for {
		n, err := r.replayOnce(ctx, sink)
		if err != nil {
			return err
		}
		r.logger.Info("replay pass complete", zap.String("file", r.filename), zap.Int("samples", n))

		if !r.loop || n == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (r *Replayer) replayOnce(ctx context.Context, sink TelemetrySink) (int, error) {
	file, err := os.Open(r.filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lastTimestamp time.Time
	lineNum, sent := 0, 0

	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var event models.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return sent, fmt.Errorf("failed to parse event at line %d: %w", lineNum, err)
		}
		if event.Kind != models.KindTelemetry || event.Telemetry == nil {
			continue
		}

		timestamp, err := time.Parse(time.RFC3339Nano, event.Timestamp)
		if err != nil {
			return sent, fmt.Errorf("failed to parse timestamp at line %d: %w", lineNum, err)
		}

		if !lastTimestamp.IsZero() {
			delay := time.Duration(float64(timestamp.Sub(lastTimestamp)) / r.speed)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return sent, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		lastTimestamp = timestamp

		sample := *event.Telemetry
		sample.CapturedAt = time.Now()
		if err := sink.Publish(ctx, sample); err != nil {
			return sent, err
		}
		sent++
	}

	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("error reading file: %w", err)
	}

	return sent, nil
}

// Summary scans a recording and counts its events by kind.
func Summary(filename string) (map[models.EventKind]int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	counts := make(map[models.EventKind]int)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var head struct {
			Kind models.EventKind `json:"kind"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &head); err != nil {
			return nil, fmt.Errorf("failed to parse event: %w", err)
		}
		counts[head.Kind]++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return counts, nil
}
