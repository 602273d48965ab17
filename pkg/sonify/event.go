package sonify

import (
	"encoding/json"
	"math"
	"time"
)

// Event is one geolocated, magnitude-tagged occurrence to be sonified.
// Events carry no identity beyond their position in the collection; the
// engine treats duplicates as distinct voices.
type Event struct {
	Magnitude    float64 `json:"magnitude"`
	OccurredAtMs int64   `json:"occurred_at_ms"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	DepthKm      float64 `json:"depth_km"`
	Place        string  `json:"place,omitempty"`
}

// OccurredAt returns the event time as a time.Time in UTC.
func (e Event) OccurredAt() time.Time {
	return time.UnixMilli(e.OccurredAtMs).UTC()
}

type eventJSON struct {
	Magnitude    *float64 `json:"magnitude"`
	OccurredAtMs int64    `json:"occurred_at_ms"`
	Longitude    *float64 `json:"longitude"`
	Latitude     *float64 `json:"latitude"`
	DepthKm      *float64 `json:"depth_km"`
	Place        string   `json:"place,omitempty"`
}

// finite returns nil for NaN and infinite values.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// MarshalJSON encodes unknown (NaN or infinite) numeric attributes as null.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Magnitude:    finite(e.Magnitude),
		OccurredAtMs: e.OccurredAtMs,
		Longitude:    finite(e.Longitude),
		Latitude:     finite(e.Latitude),
		DepthKm:      finite(e.DepthKm),
		Place:        e.Place,
	})
}

// UnmarshalJSON decodes null or missing numeric attributes as NaN.
func (e *Event) UnmarshalJSON(data []byte) error {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*e = Event{
		Magnitude:    orNaN(j.Magnitude),
		OccurredAtMs: j.OccurredAtMs,
		Longitude:    orNaN(j.Longitude),
		Latitude:     orNaN(j.Latitude),
		DepthKm:      orNaN(j.DepthKm),
		Place:        j.Place,
	}
	return nil
}
