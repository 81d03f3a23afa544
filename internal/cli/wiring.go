package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/checkpoint"
	"github.com/synheart/synheart-seizure/internal/config"
	"github.com/synheart/synheart-seizure/internal/episode"
	"github.com/synheart/synheart-seizure/internal/escalation"
	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/risk"
	"github.com/synheart/synheart-seizure/internal/store"
)

type closeFunc func()

func (c *closeFunc) add(fn func()) {
	prev := *c
	*c = func() {
		fn()
		if prev != nil {
			prev()
		}
	}
}

// buildPlan returns the configured checkpoint plan, or the default one.
func buildPlan(cfg *config.Config) (checkpoint.Plan, error) {
	if len(cfg.Checkpoints) == 0 {
		return checkpoint.DefaultPlan(), nil
	}
	plan := make(checkpoint.Plan, 0, len(cfg.Checkpoints))
	for _, cp := range cfg.Checkpoints {
		plan = append(plan, checkpoint.Checkpoint{
			Offset: cp.Offset,
			Phases: cp.Phases,
			Voice:  cp.Voice,
			Haptic: checkpoint.Pattern(cp.Haptic),
		})
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint plan: %w", err)
	}
	return plan.Sorted(), nil
}

func machineConfig(cfg *config.Config) episode.Config {
	return episode.Config{
		Thresholds: episode.Thresholds{
			Aura:         cfg.Thresholds.Aura,
			Emergency:    cfg.Thresholds.Emergency,
			FallBackdate: cfg.Thresholds.FallBackdate,
		},
		Tick:           cfg.Thresholds.Tick,
		PatientID:      cfg.Patient.ID,
		PatientName:    cfg.Patient.Name,
		ReflexEpilepsy: cfg.Patient.ReflexEpilepsy,
	}
}

// buildEscalator wires directory, locator and channel into an orchestrator.
func buildEscalator(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, closers *closeFunc) (*escalation.Orchestrator, error) {
	var directory escalation.ContactDirectory
	switch cfg.Escalation.Directory {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		closers.add(func() { client.Close() })
		rd := escalation.NewRedisDirectory(client, cfg.Redis.ContactsKey)
		if len(cfg.Contacts) > 0 {
			// config contacts seed the shared directory
			if err := rd.Store(ctx, cfg.Contacts); err != nil {
				return nil, err
			}
		}
		directory = rd
	default:
		directory = escalation.StaticDirectory(cfg.Contacts)
	}

	var locator escalation.LocationProvider = escalation.NoLocator{}
	if loc := cfg.Escalation.Location; loc != nil {
		locator = escalation.StaticLocator{Location: escalation.Location{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		}}
	}

	var channel escalation.Channel
	switch cfg.Escalation.Channel {
	case "webhook":
		channel = escalation.NewWebhookChannel(cfg.Escalation.WebhookURL, cfg.Escalation.WebhookToken, cfg.Escalation.SendTimeout)
	default:
		channel = escalation.SimulatedChannel{Delay: cfg.Escalation.SimulatedDelay, Logger: logger}
	}

	return escalation.NewOrchestrator(escalation.Config{
		LocationTimeout: cfg.Escalation.LocationTimeout,
		SendTimeout:     cfg.Escalation.SendTimeout,
		DispatchOrder:   cfg.Escalation.DispatchOrder,
	}, directory, locator, channel,
		escalation.WithLogger(logger),
		escalation.WithMetrics(m),
	), nil
}

// buildRecorders opens every configured summary destination.
func buildRecorders(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.Logger, closers *closeFunc) (store.MultiRecorder, error) {
	var recs store.MultiRecorder
	if cfg.Store.SQLitePath != "" {
		s, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		closers.add(func() { s.Close() })
		recs = append(recs, s)
	}
	if cfg.Store.PostgresDSN != "" {
		s, err := store.OpenPostgres(ctx, cfg.Store.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		closers.add(func() { s.Close() })
		recs = append(recs, s)
	}
	if cfg.Store.OutDir != "" {
		w, err := store.NewFileWriter(cfg.Store.OutDir, cfg.Store.Format)
		if err != nil {
			return nil, err
		}
		recs = append(recs, w)
	}
	if cfg.Store.Stdout {
		recs = append(recs, store.NewStdoutWriter(out, store.FormatNDJSON))
	}
	return recs, nil
}

// buildAssessor returns nil when predictions are disabled.
func buildAssessor(ctx context.Context, cfg *config.Config, closers *closeFunc) (risk.Assessor, error) {
	switch cfg.Risk.Assessor {
	case "http":
		return risk.NewHTTPAssessor(cfg.Risk.URL, cfg.Risk.Timeout), nil
	case "wasm":
		a, err := risk.NewWasmAssessor(ctx, cfg.Risk.WasmPath)
		if err != nil {
			return nil, err
		}
		closers.add(func() { a.Close(context.Background()) })
		return a, nil
	default:
		return nil, nil
	}
}
