package sonify

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONUnknownMagnitude(t *testing.T) {
	ev := Event{Magnitude: math.NaN(), OccurredAtMs: baseTime, Longitude: -150, Latitude: 61, Place: "Alaska"}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"magnitude":null,"occurred_at_ms":1704067200000,"longitude":-150,"latitude":61,"depth_km":0,"place":"Alaska"}`, string(data))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(back.Magnitude))
	assert.Equal(t, "Alaska", back.Place)
}

func TestEventJSONKnownMagnitude(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"magnitude":4.5,"occurred_at_ms":5,"longitude":1,"latitude":2,"depth_km":3}`), &ev))
	assert.Equal(t, Event{Magnitude: 4.5, OccurredAtMs: 5, Longitude: 1, Latitude: 2, DepthKm: 3}, ev)

	require.NoError(t, json.Unmarshal([]byte(`{"occurred_at_ms":5}`), &ev))
	assert.True(t, math.IsNaN(ev.Magnitude), "a missing magnitude is unknown")
	assert.True(t, math.IsNaN(ev.DepthKm))
}

func TestEventJSONUnknownCoordinates(t *testing.T) {
	ev := Event{Magnitude: 3, OccurredAtMs: baseTime, Longitude: math.Inf(1), Latitude: math.NaN(), DepthKm: math.NaN()}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"magnitude":3,"occurred_at_ms":1704067200000,"longitude":null,"latitude":null,"depth_km":null}`, string(data))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 3.0, back.Magnitude)
	assert.True(t, math.IsNaN(back.Longitude))
	assert.True(t, math.IsNaN(back.Latitude))
	assert.True(t, math.IsNaN(back.DepthKm))
}

func TestScheduleMarshalsUnknownMagnitude(t *testing.T) {
	events := append(sampleEvents(), Event{Magnitude: math.NaN(), OccurredAtMs: baseTime, Latitude: math.NaN(), DepthKm: math.NaN(), Place: "unrated"})
	e := New(nil, WithLogger(discardLogger()))
	e.SetEvents(events)

	data, err := json.Marshal(e.Plan())
	require.NoError(t, err)

	var back Schedule
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Voices, len(events))
	last := back.Voices[len(events)-1].Event
	assert.True(t, math.IsNaN(last.Magnitude))
	assert.True(t, math.IsNaN(last.Latitude))
	assert.True(t, math.IsNaN(last.DepthKm))
}

func TestEventOccurredAt(t *testing.T) {
	ev := Event{OccurredAtMs: baseTime}
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ev.OccurredAt())
}
