package escalation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrLocationUnavailable is returned by providers without a fix.
var ErrLocationUnavailable = errors.New("location unavailable")

// Location is a device position fix.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// MapsURL links to the position on Google Maps.
func (l Location) MapsURL() string {
	return "https://www.google.com/maps/search/?api=1&query=" +
		strconv.FormatFloat(l.Latitude, 'f', 6, 64) + "," +
		strconv.FormatFloat(l.Longitude, 'f', 6, 64)
}

// LocationProvider resolves the current device position. Implementations
// should honor ctx but are not required to.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (*Location, error)
}

// StaticLocator always reports the configured position.
type StaticLocator struct {
	Location Location
}

func (s StaticLocator) CurrentLocation(context.Context) (*Location, error) {
	loc := s.Location
	return &loc, nil
}

// NoLocator never has a fix.
type NoLocator struct{}

func (NoLocator) CurrentLocation(context.Context) (*Location, error) {
	return nil, ErrLocationUnavailable
}

// BuildMessage renders the single alert body sent to every contact.
func BuildMessage(patientName string, loc *Location) string {
	if patientName == "" {
		patientName = "The patient"
	}
	where := "Location unavailable"
	if loc != nil {
		where = loc.MapsURL()
	}
	return fmt.Sprintf("SEIZURE ALERT: %s is having a prolonged seizure (status epilepticus). Urgent medical help needed. Location: %s", patientName, where)
}
