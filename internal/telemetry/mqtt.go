package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/checkpoint"
	"github.com/synheart/synheart-seizure/internal/models"
)

// MQTTConfig configures the watch link
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TelemetryTopic string
	FallTopic      string
	HapticTopic    string
}

// watchTelemetry is the JSON the watch publishes on the telemetry topic.
// Missing fields keep the previous value.
type watchTelemetry struct {
	HeartRate  *float64 `json:"heartRate"`
	HRV        *float64 `json:"hrv"`
	Activity   string   `json:"activity_type"`
	SleepScore *float64 `json:"sleep_score"`
	Connection string   `json:"connectionState"`
	Timestamp  float64  `json:"timestamp"`
}

// watchImpact is published on the fall topic when the accelerometer
// crosses the impact threshold.
type watchImpact struct {
	FallDetected bool    `json:"fallDetected"`
	GForce       float64 `json:"gForce"`
}

type hapticCommand struct {
	Type string `json:"type"`
}

type publishFunc func(ctx context.Context, topic string, payload []byte) error

const (
	hapticQueue    = 8
	publishTimeout = 5 * time.Second
)

// MQTTLink connects to the watch over MQTT. Incoming telemetry and
// impacts go to the sink; haptic commands go back to the watch.
type MQTTLink struct {
	cfg     MQTTConfig
	sink    Sink
	logger  *zap.Logger
	publish publishFunc
	haptics chan checkpoint.Pattern

	mu   sync.Mutex
	last models.TelemetrySample
}

// NewMQTTLink creates an unconnected link.
func NewMQTTLink(cfg MQTTConfig, sink Sink, logger *zap.Logger) *MQTTLink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTLink{
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		haptics: make(chan checkpoint.Pattern, hapticQueue),
		last: models.TelemetrySample{
			HeartRate:  72,
			HRV:        45,
			Activity:   models.ActivityResting,
			SleepScore: 85,
			Connection: models.Connected,
		},
	}
}

// Run connects, subscribes and blocks until ctx is done.
func (l *MQTTLink) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.cfg.Broker)
	opts.SetClientID(l.cfg.ClientID)
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
	}
	if l.cfg.Password != "" {
		opts.SetPassword(l.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.logger.Warn("watch link lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	l.setPublisher(func(ctx context.Context, topic string, payload []byte) error {
		// paho keeps QoS 1 tokens pending across a reconnect
		token := client.Publish(topic, 1, false, payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return fmt.Errorf("publish to topic %s: %w", topic, ctx.Err())
		}
		if token.Error() != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
		}
		return nil
	})
	defer func() {
		l.setPublisher(nil)
		client.Disconnect(250)
	}()

	drainCtx, stopDrain := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.drainHaptics(drainCtx)
	}()
	defer func() {
		stopDrain()
		wg.Wait()
	}()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := l.handleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			l.logger.Warn("watch message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}
	for _, topic := range []string{l.cfg.TelemetryTopic, l.cfg.FallTopic} {
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
	}
	l.logger.Info("watch link up", zap.String("broker", l.cfg.Broker))

	<-ctx.Done()
	return nil
}

func (l *MQTTLink) handleMessage(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case l.cfg.TelemetryTopic:
		var msg watchTelemetry
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode telemetry: %w", err)
		}
		s, err := l.merge(msg)
		if err != nil {
			return err
		}
		return l.sink.Publish(ctx, s)
	case l.cfg.FallTopic:
		var msg watchImpact
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode impact: %w", err)
		}
		if !msg.FallDetected {
			return nil
		}
		l.logger.Info("impact from watch", zap.Float64("g_force", msg.GForce))
		return l.sink.ReportFall(ctx)
	default:
		return fmt.Errorf("unexpected topic %q", topic)
	}
}

// merge folds a partial watch message into the last known sample.
func (l *MQTTLink) merge(msg watchTelemetry) (models.TelemetrySample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.last
	if msg.HeartRate != nil {
		if *msg.HeartRate <= 0 || *msg.HeartRate > 250 {
			return s, fmt.Errorf("heart rate %v out of range", *msg.HeartRate)
		}
		s.HeartRate = *msg.HeartRate
	}
	if msg.HRV != nil {
		s.HRV = *msg.HRV
	}
	if msg.SleepScore != nil {
		s.SleepScore = *msg.SleepScore
	}
	if msg.Activity != "" {
		s.Activity = models.Activity(msg.Activity)
	}
	if msg.Connection != "" {
		s.Connection = models.ConnectionState(msg.Connection)
	}
	s.FallDetected = false
	s.CapturedAt = time.Now()
	if msg.Timestamp > 0 {
		sec, frac := math.Modf(msg.Timestamp)
		s.CapturedAt = time.Unix(int64(sec), int64(frac*1e9))
	}
	l.last = s
	return s, nil
}

func (l *MQTTLink) setPublisher(fn publishFunc) {
	l.mu.Lock()
	l.publish = fn
	l.mu.Unlock()
}

// Trigger queues a haptic pattern for the watch and returns without
// waiting for the broker. A full queue drops the pattern.
func (l *MQTTLink) Trigger(ctx context.Context, p checkpoint.Pattern) error {
	l.mu.Lock()
	publish := l.publish
	l.mu.Unlock()
	if publish == nil {
		return fmt.Errorf("watch link not connected")
	}
	select {
	case l.haptics <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("haptic queue full, %s dropped", p)
	}
}

// drainHaptics sends queued patterns in order until ctx is done.
func (l *MQTTLink) drainHaptics(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-l.haptics:
			if err := l.sendHaptic(ctx, p); err != nil {
				l.logger.Warn("haptic not delivered", zap.String("pattern", string(p)), zap.Error(err))
			}
		}
	}
}

func (l *MQTTLink) sendHaptic(ctx context.Context, p checkpoint.Pattern) error {
	l.mu.Lock()
	publish := l.publish
	l.mu.Unlock()
	if publish == nil {
		return fmt.Errorf("watch link not connected")
	}
	payload, err := json.Marshal(hapticCommand{Type: string(p)})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return publish(ctx, l.cfg.HapticTopic, payload)
}
