package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	c.Thresholds.Aura, err = envDuration("SEIZURE_AURA_THRESHOLD", c.Thresholds.Aura)
	collect(err)
	c.Thresholds.Emergency, err = envDuration("SEIZURE_EMERGENCY_THRESHOLD", c.Thresholds.Emergency)
	collect(err)
	c.Escalation.LocationTimeout, err = envDuration("SEIZURE_LOCATION_TIMEOUT", c.Escalation.LocationTimeout)
	collect(err)
	c.Patient.ReflexEpilepsy, err = envBool("SEIZURE_REFLEX_EPILEPSY", c.Patient.ReflexEpilepsy)
	collect(err)
	c.Server.Port, err = envInt("SEIZURE_SERVER_PORT", c.Server.Port)
	collect(err)
	c.Redis.DB, err = envInt("SEIZURE_REDIS_DB", c.Redis.DB)
	collect(err)

	c.Patient.ID = envStr("SEIZURE_PATIENT_ID", c.Patient.ID)
	c.Patient.Name = envStr("SEIZURE_PATIENT_NAME", c.Patient.Name)
	c.Escalation.DispatchOrder = envStr("SEIZURE_DISPATCH_ORDER", c.Escalation.DispatchOrder)
	c.Escalation.Channel = envStr("SEIZURE_CHANNEL", c.Escalation.Channel)
	c.Escalation.WebhookURL = envStr("SEIZURE_WEBHOOK_URL", c.Escalation.WebhookURL)
	c.Escalation.WebhookToken = envStr("SEIZURE_WEBHOOK_TOKEN", c.Escalation.WebhookToken)
	c.Risk.Assessor = envStr("SEIZURE_ASSESSOR", c.Risk.Assessor)
	c.Risk.URL = envStr("SEIZURE_ASSESSOR_URL", c.Risk.URL)
	c.Risk.WasmPath = envStr("SEIZURE_WASM_PATH", c.Risk.WasmPath)
	c.Telemetry.Source = envStr("SEIZURE_TELEMETRY_SOURCE", c.Telemetry.Source)
	c.Telemetry.MQTT.Broker = envStr("SEIZURE_MQTT_BROKER", c.Telemetry.MQTT.Broker)
	c.Telemetry.MQTT.Username = envStr("SEIZURE_MQTT_USERNAME", c.Telemetry.MQTT.Username)
	c.Telemetry.MQTT.Password = envStr("SEIZURE_MQTT_PASSWORD", c.Telemetry.MQTT.Password)
	c.Store.SQLitePath = envStr("SEIZURE_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.PostgresDSN = envStr("SEIZURE_POSTGRES_DSN", c.Store.PostgresDSN)
	c.Redis.Addr = envStr("SEIZURE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envStr("SEIZURE_REDIS_PASSWORD", c.Redis.Password)
	c.Server.Token = envStr("SEIZURE_API_TOKEN", c.Server.Token)
	c.Log.Level = envStr("SEIZURE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("SEIZURE_LOG_FORMAT", c.Log.Format)

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
