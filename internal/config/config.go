// Package config loads monitor configuration from a YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/synheart/synheart-seizure/internal/models"
)

// Dispatch orders for the escalation contact list.
const (
	DispatchList         = "list"
	DispatchPrimaryFirst = "primary-first"
)

// Config holds all monitor configuration.
type Config struct {
	Thresholds  Thresholds                `yaml:"thresholds"`
	Patient     Patient                   `yaml:"patient"`
	Contacts    []models.EmergencyContact `yaml:"contacts"`
	Escalation  Escalation                `yaml:"escalation"`
	Risk        Risk                      `yaml:"risk"`
	Telemetry   Telemetry                 `yaml:"telemetry"`
	Store       Store                     `yaml:"store"`
	Redis       Redis                     `yaml:"redis"`
	Server      Server                    `yaml:"server"`
	Log         Log                       `yaml:"log"`
	Checkpoints []CheckpointSpec          `yaml:"checkpoints,omitempty"`
}

// Thresholds are the clinical timing constants of the state machine.
type Thresholds struct {
	Aura         time.Duration `yaml:"aura"`
	Emergency    time.Duration `yaml:"emergency"`
	FallBackdate time.Duration `yaml:"fall_backdate"`
	Tick         time.Duration `yaml:"tick"`
}

// Patient identifies who is being monitored.
type Patient struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	ReflexEpilepsy bool   `yaml:"reflex_epilepsy"`
}

// Location is a fixed coordinate used when no live fix is available.
type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Escalation configures contact dispatch.
type Escalation struct {
	DispatchOrder   string        `yaml:"dispatch_order"`
	Directory       string        `yaml:"directory"` // static or redis
	Channel         string        `yaml:"channel"`   // simulated or webhook
	WebhookURL      string        `yaml:"webhook_url"`
	WebhookToken    string        `yaml:"webhook_token"`
	SimulatedDelay  time.Duration `yaml:"simulated_delay"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	LocationTimeout time.Duration `yaml:"location_timeout"`
	Location        *Location     `yaml:"location,omitempty"`
}

// Risk configures the external assessor.
type Risk struct {
	Assessor string        `yaml:"assessor"` // none, http or wasm
	URL      string        `yaml:"url"`
	WasmPath string        `yaml:"wasm_path"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MQTT configures the watch link.
type MQTT struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	FallTopic      string `yaml:"fall_topic"`
	HapticTopic    string `yaml:"haptic_topic"`
}

// Telemetry selects and tunes the sample source.
type Telemetry struct {
	Source      string        `yaml:"source"` // sim, mqtt or replay
	Scenario    string        `yaml:"scenario"`
	Seed        int64         `yaml:"seed"`
	Cadence     time.Duration `yaml:"cadence"`
	FallPulse   time.Duration `yaml:"fall_pulse"`
	ReplayFile  string        `yaml:"replay_file"`
	ReplaySpeed float64       `yaml:"replay_speed"`
	Loop        bool          `yaml:"loop"`
	MQTT        MQTT          `yaml:"mqtt"`
}

// Store configures where episode summaries are persisted.
type Store struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	OutDir      string `yaml:"out_dir"`
	Format      string `yaml:"format"` // json or ndjson
	Stdout      bool   `yaml:"stdout"`
}

// Redis configures the shared contact directory.
type Redis struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	ContactsKey string `yaml:"contacts_key"`
}

// Server configures the caregiver-facing HTTP server.
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Token   string `yaml:"token"`
}

// Log configures zap.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CheckpointSpec overrides one entry of the checkpoint plan.
type CheckpointSpec struct {
	Offset time.Duration  `yaml:"offset"`
	Phases []models.Phase `yaml:"phases"`
	Voice  string         `yaml:"voice"`
	Haptic string         `yaml:"haptic,omitempty"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Thresholds: Thresholds{
			Aura:         30 * time.Second,
			Emergency:    300 * time.Second,
			FallBackdate: 31 * time.Second,
			Tick:         time.Second,
		},
		Patient: Patient{ID: "local", Name: "The patient"},
		Escalation: Escalation{
			DispatchOrder:   DispatchList,
			Directory:       "static",
			Channel:         "simulated",
			SimulatedDelay:  1500 * time.Millisecond,
			SendTimeout:     10 * time.Second,
			LocationTimeout: 10 * time.Second,
		},
		Risk: Risk{Assessor: "none", Timeout: 5 * time.Second},
		Telemetry: Telemetry{
			Source:      "sim",
			Scenario:    "baseline",
			Seed:        42,
			Cadence:     2 * time.Second,
			FallPulse:   time.Second,
			ReplaySpeed: 1.0,
			MQTT: MQTT{
				ClientID:       "synheart-seizure",
				TelemetryTopic: "synheart/watch/telemetry",
				FallTopic:      "synheart/watch/fall",
				HapticTopic:    "synheart/watch/haptic",
			},
		},
		Store:  Store{Format: "json"},
		Redis:  Redis{ContactsKey: "seizure:contacts"},
		Server: Server{Enabled: true, Host: "127.0.0.1", Port: 8787},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Load builds a Config from defaults, the optional YAML file at path,
// then SEIZURE_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects configurations the state machine cannot run with.
func (c *Config) Validate() error {
	t := c.Thresholds
	if t.Aura <= 0 || t.Emergency <= 0 || t.Tick <= 0 {
		return fmt.Errorf("config: thresholds must be positive")
	}
	if t.Aura >= t.Emergency {
		return fmt.Errorf("config: aura threshold %s must be below emergency threshold %s", t.Aura, t.Emergency)
	}
	// a fall opens ICTAL, so its backdate lands between the two thresholds
	if t.FallBackdate <= t.Aura || t.FallBackdate >= t.Emergency {
		return fmt.Errorf("config: fall_backdate %s must exceed aura threshold %s and stay below emergency threshold %s",
			t.FallBackdate, t.Aura, t.Emergency)
	}
	if c.Escalation.LocationTimeout <= 0 {
		return fmt.Errorf("config: escalation.location_timeout must be positive")
	}
	switch c.Escalation.DispatchOrder {
	case DispatchList, DispatchPrimaryFirst:
	default:
		return fmt.Errorf("config: unknown dispatch_order %q", c.Escalation.DispatchOrder)
	}
	switch c.Escalation.Channel {
	case "simulated":
	case "webhook":
		if c.Escalation.WebhookURL == "" {
			return fmt.Errorf("config: escalation.webhook_url is required for the webhook channel")
		}
	default:
		return fmt.Errorf("config: unknown escalation channel %q", c.Escalation.Channel)
	}
	switch c.Escalation.Directory {
	case "static":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required for the redis directory")
		}
	default:
		return fmt.Errorf("config: unknown contact directory %q", c.Escalation.Directory)
	}
	switch c.Risk.Assessor {
	case "none":
	case "http":
		if c.Risk.URL == "" {
			return fmt.Errorf("config: risk.url is required for the http assessor")
		}
	case "wasm":
		if c.Risk.WasmPath == "" {
			return fmt.Errorf("config: risk.wasm_path is required for the wasm assessor")
		}
	default:
		return fmt.Errorf("config: unknown risk assessor %q", c.Risk.Assessor)
	}
	switch c.Telemetry.Source {
	case "sim", "replay":
	case "mqtt":
		if c.Telemetry.MQTT.Broker == "" {
			return fmt.Errorf("config: telemetry.mqtt.broker is required for the mqtt source")
		}
	default:
		return fmt.Errorf("config: unknown telemetry source %q", c.Telemetry.Source)
	}
	if c.Telemetry.Cadence <= 0 {
		return fmt.Errorf("config: telemetry.cadence must be positive")
	}
	for i, cp := range c.Checkpoints {
		if cp.Offset <= 0 {
			return fmt.Errorf("config: checkpoints[%d].offset must be positive", i)
		}
		if len(cp.Phases) == 0 {
			return fmt.Errorf("config: checkpoints[%d] needs at least one phase", i)
		}
		for _, p := range cp.Phases {
			if !p.Timed() {
				return fmt.Errorf("config: checkpoints[%d] phase %s has no timer", i, p)
			}
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Addr returns the server listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
