package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/synheart/synheart-seizure/internal/api"
	"github.com/synheart/synheart-seizure/internal/checkpoint"
	"github.com/synheart/synheart-seizure/internal/config"
	"github.com/synheart/synheart-seizure/internal/encoding"
	"github.com/synheart/synheart-seizure/internal/episode"
	"github.com/synheart/synheart-seizure/internal/feed"
	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
	"github.com/synheart/synheart-seizure/internal/recorder"
	"github.com/synheart/synheart-seizure/internal/risk"
	"github.com/synheart/synheart-seizure/internal/scenario"
	"github.com/synheart/synheart-seizure/internal/telemetry"
	"github.com/synheart/synheart-seizure/internal/transport"
)

var (
	monitorSource   string
	monitorScenario string
	monitorSeed     int64
	monitorReplay   string
	monitorSpeed    float64
	monitorLoop     bool
	monitorRecord   string
	monitorEncoding string
	monitorNoAPI    bool
	monitorSpeech   time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the seizure monitor",
	Long: `Runs the episode state machine against a telemetry source and serves
the control API and event stream.

Sources:
  sim     scripted scenario from the built-in or ./scenarios library
  mqtt    a paired watch publishing over MQTT
  replay  a recording made with --record

Examples:
  synheart-seizure monitor --scenario preictal
  synheart-seizure monitor --source replay --replay session.ndjson --speed 4
  synheart-seizure monitor -c monitor.yaml --record session.ndjson`,
	RunE: runMonitor,
}

func init() {
	f := monitorCmd.Flags()
	f.StringVar(&monitorSource, "source", "", "Telemetry source: sim|mqtt|replay (overrides config)")
	f.StringVar(&monitorScenario, "scenario", "", "Simulator scenario (overrides config)")
	f.Int64Var(&monitorSeed, "seed", 0, "Simulator random seed (overrides config)")
	f.StringVar(&monitorReplay, "replay", "", "Recording to replay (implies --source replay)")
	f.Float64Var(&monitorSpeed, "speed", 0, "Replay speed multiplier")
	f.BoolVar(&monitorLoop, "loop", false, "Loop the replay")
	f.StringVar(&monitorRecord, "record", "", "Record broadcast events to an NDJSON file")
	f.StringVar(&monitorEncoding, "encoding", "json", "WebSocket encoding: json|protobuf")
	f.BoolVar(&monitorNoAPI, "no-api", false, "Do not start the control API")
	f.DurationVar(&monitorSpeech, "speech-rate", 300*time.Millisecond, "Simulated speech time per word")
}

func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	t := &cfg.Telemetry
	if flags.Changed("source") {
		t.Source = monitorSource
	}
	if flags.Changed("scenario") {
		t.Scenario = monitorScenario
	}
	if flags.Changed("seed") {
		t.Seed = monitorSeed
	}
	if monitorReplay != "" {
		t.Source = "replay"
		t.ReplayFile = monitorReplay
	}
	if flags.Changed("speed") {
		t.ReplaySpeed = monitorSpeed
	}
	if flags.Changed("loop") {
		t.Loop = monitorLoop
	}
	if monitorNoAPI {
		cfg.Server.Enabled = false
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyMonitorFlags(cmd, cfg)
	if cfg.Telemetry.Source == "replay" && cfg.Telemetry.ReplayFile == "" {
		return fmt.Errorf("replay source needs --replay or telemetry.replay_file")
	}
	wireFormat, err := encoding.ParseFormat(monitorEncoding)
	if err != nil {
		return err
	}
	plan, err := buildPlan(cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers closeFunc
	defer func() {
		if closers != nil {
			closers()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Telemetry: source -> bridge -> {risk monitor, event feed}
	bridge := telemetry.NewBridge(64, cfg.Telemetry.FallPulse, logger.Named("telemetry"), m)
	riskSamples := bridge.Subscribe()
	feedSamples := bridge.Subscribe()

	var (
		source   func(context.Context) error
		mqttLink *telemetry.MQTTLink
		label    string
	)
	switch cfg.Telemetry.Source {
	case "mqtt":
		mc := cfg.Telemetry.MQTT
		mqttLink = telemetry.NewMQTTLink(telemetry.MQTTConfig{
			Broker:         mc.Broker,
			ClientID:       mc.ClientID,
			Username:       mc.Username,
			Password:       mc.Password,
			TelemetryTopic: mc.TelemetryTopic,
			FallTopic:      mc.FallTopic,
			HapticTopic:    mc.HapticTopic,
		}, bridge, logger.Named("mqtt"))
		source = mqttLink.Run
		label = "mqtt " + mc.Broker
	case "replay":
		rp := recorder.NewReplayer(cfg.Telemetry.ReplayFile, cfg.Telemetry.ReplaySpeed, cfg.Telemetry.Loop, logger.Named("replay"))
		source = func(ctx context.Context) error { return rp.Replay(ctx, bridge) }
		label = "replay " + cfg.Telemetry.ReplayFile
	default:
		registry, err := scenario.Defaults(getScenarioDir())
		if err != nil {
			return fmt.Errorf("failed to load scenarios: %w", err)
		}
		scen, err := registry.Get(cfg.Telemetry.Scenario)
		if err != nil {
			return fmt.Errorf("failed to load scenario '%s': %w", cfg.Telemetry.Scenario, err)
		}
		sim := telemetry.NewSimulator(scenario.NewEngine(scen, time.Now()), bridge, telemetry.SimulatorConfig{
			Seed:    cfg.Telemetry.Seed,
			Cadence: cfg.Telemetry.Cadence,
		}, logger.Named("simulator"))
		source = sim.Run
		label = "sim " + scen.Name
	}

	haptics := checkpoint.MultiHaptics{checkpoint.LogHaptics{Logger: logger.Named("haptics")}}
	if mqttLink != nil {
		haptics = append(haptics, mqttLink)
	}
	narrator := checkpoint.NewNarrator(checkpoint.LogSpeaker{Logger: logger.Named("voice"), PerWord: monitorSpeech}, logger)
	scheduler := checkpoint.NewScheduler(plan, narrator,
		checkpoint.WithHaptics(haptics),
		checkpoint.WithLogger(logger.Named("checkpoint")),
	)

	orchestrator, err := buildEscalator(ctx, cfg, logger.Named("escalation"), m, &closers)
	if err != nil {
		return err
	}
	recorders, err := buildRecorders(ctx, cfg, cmd.OutOrStdout(), logger.Named("store"), &closers)
	if err != nil {
		return err
	}
	assessor, err := buildAssessor(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	events := feed.New(256, logger.Named("feed"), m)

	opts := []episode.Option{
		episode.WithScheduler(scheduler),
		episode.WithHaptics(haptics),
		episode.WithEscalator(orchestrator),
		episode.WithListener(events),
		episode.WithLogger(logger.Named("episode")),
		episode.WithMetrics(m),
	}
	if len(recorders) > 0 {
		opts = append(opts, episode.WithRecorder(recorders))
	}
	machine := episode.NewMachine(machineConfig(cfg), opts...)

	monitor := risk.NewMonitor(assessor, machine,
		risk.WithTimeout(cfg.Risk.Timeout),
		risk.OnRisk(events.PublishRisk),
		risk.WithLogger(logger.Named("risk")),
		risk.WithMetrics(m),
	)

	// Events: feed -> lossy dispatcher -> {websocket, sse, recording}
	dispatcher := transport.NewDispatcher[models.Event](events.Events(), 64,
		transport.Lossy(), transport.WithLogger(logger.Named("dispatch")))
	ws := transport.NewWebSocketHub(encoding.NewEncoder(wireFormat), logger.Named("ws"))
	sse := transport.NewSSEHub(logger.Named("sse"))
	wsEvents := dispatcher.Subscribe()
	sseEvents := dispatcher.Subscribe()

	var rec *recorder.Recorder
	var recEvents <-chan models.Event
	if monitorRecord != "" {
		rec, err = recorder.NewRecorder(monitorRecord)
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		recEvents = dispatcher.Subscribe()
	}

	server := api.NewServer(api.Config{
		Host:  cfg.Server.Host,
		Port:  cfg.Server.Port,
		Token: cfg.Server.Token,
	}, machine, bridge, api.Handlers{
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebSocket: ws,
		SSE:       sse,
	}, logger.Named("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { dispatcher.Run(gctx); return nil })
	g.Go(func() error { return ignoreCanceled(ws.BroadcastFromChannel(gctx, wsEvents)) })
	g.Go(func() error { return ignoreCanceled(sse.BroadcastFromChannel(gctx, sseEvents)) })
	if rec != nil {
		g.Go(func() error { return rec.RecordFromChannel(gctx, recEvents) })
	}
	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx, riskSamples) })
	g.Go(func() error {
		for s := range feedSamples {
			events.PublishTelemetry(s)
		}
		return nil
	})
	g.Go(func() error {
		if err := source(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telemetry source: %w", err)
		}
		return nil
	})
	if cfg.Server.Enabled {
		g.Go(func() error { return server.Start(gctx) })
	}

	printBanner(cmd, cfg, label, plan, monitorRecord)

	err = g.Wait()
	machine.Wait()
	ws.Close()
	sse.Close()
	if rec != nil {
		logger.Info("recording closed", zap.String("file", monitorRecord), zap.Int("events", rec.Count()))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nShutdown complete")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printBanner(cmd *cobra.Command, cfg *config.Config, source string, plan checkpoint.Plan, record string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synheart Seizure Monitor\n\n")
	fmt.Fprintf(out, "Patient:      %s (%s)\n", cfg.Patient.Name, cfg.Patient.ID)
	fmt.Fprintf(out, "Telemetry:    %s\n", source)
	fmt.Fprintf(out, "Thresholds:   aura %s, emergency %s\n", cfg.Thresholds.Aura, cfg.Thresholds.Emergency)
	fmt.Fprintf(out, "Checkpoints:  %d\n", len(plan))
	fmt.Fprintf(out, "Contacts:     %d (%s, %s)\n", len(cfg.Contacts), cfg.Escalation.Directory, cfg.Escalation.Channel)
	fmt.Fprintf(out, "Predictions:  %s\n", cfg.Risk.Assessor)
	if cfg.Server.Enabled {
		fmt.Fprintf(out, "Control API:  http://%s\n", cfg.Server.Addr())
		fmt.Fprintf(out, "Events:       ws://%s/events\n", cfg.Server.Addr())
	}
	if record != "" {
		fmt.Fprintf(out, "Recording:    %s\n", record)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
