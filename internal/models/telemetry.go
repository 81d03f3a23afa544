package models

import "time"

// Activity is the wearable's coarse activity classification
type Activity string

const (
	ActivityResting    Activity = "RESTING"
	ActivityWalking    Activity = "WALKING"
	ActivityExercising Activity = "EXERCISING"
	ActivitySleeping   Activity = "SLEEPING"
)

// Code returns the numeric form handed to on-device models.
func (a Activity) Code() int32 {
	switch a {
	case ActivityWalking:
		return 1
	case ActivityExercising:
		return 2
	case ActivitySleeping:
		return 3
	default:
		return 0
	}
}

// ConnectionState reports whether the watch link is up
type ConnectionState string

const (
	Connected    ConnectionState = "CONNECTED"
	Disconnected ConnectionState = "DISCONNECTED"
)

// TelemetrySample is one normalized reading from the wearable.
// Samples are consumed by the core and never persisted by it.
type TelemetrySample struct {
	DeviceID     string          `json:"device_id,omitempty"`
	HeartRate    float64         `json:"heart_rate"`
	HRV          float64         `json:"hrv"`
	Activity     Activity        `json:"activity_type"`
	SleepScore   float64         `json:"sleep_score"`
	FallDetected bool            `json:"fall_detected"`
	Connection   ConnectionState `json:"connection_state"`
	CapturedAt   time.Time       `json:"captured_at"`
}

// Stressed reports whether the sample looks like autonomic stress:
// low HRV, or tachycardia while at rest.
func (s TelemetrySample) Stressed() bool {
	if s.HRV > 0 && s.HRV < 30 {
		return true
	}
	return s.HeartRate > 100 && s.Activity == ActivityResting
}
