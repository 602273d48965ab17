package feed

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeepsFeedOrder(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "week.geojson"))
	require.NoError(t, err)

	assert.Equal(t, "USGS Magnitude 2.5+ Earthquakes, Past Week", c.Title)
	assert.Equal(t, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC), c.GeneratedAt)
	require.Len(t, c.Features, 4)

	ids := make([]string, len(c.Features))
	for i, f := range c.Features {
		ids[i] = f.ID
	}
	assert.Equal(t, []string{"us7000abcd", "ak0240001", "nc75000001", "us7000efgh"}, ids)

	first := c.Features[0].Event
	assert.Equal(t, 6.1, first.Magnitude)
	assert.Equal(t, int64(1704110400000), first.OccurredAtMs)
	assert.Equal(t, 121.7, first.Longitude)
	assert.Equal(t, 23.6, first.Latitude)
	assert.Equal(t, 12.5, first.DepthKm)
	assert.Equal(t, "45 km SSE of Hualien City, Taiwan", first.Place)
}

func TestDecodeNullMagnitudeIsNaN(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "week.geojson"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(c.Features[1].Event.Magnitude))
}

func TestDecodeMissingDepthIsZero(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "week.geojson"))
	require.NoError(t, err)
	assert.Zero(t, c.Features[2].Event.DepthKm)
	assert.Equal(t, -1.2, c.Features[3].Event.DepthKm, "negative depths are kept as reported")
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "quake"},
		{"wrong type", `{"type":"Feature"}`},
		{"missing time", `{"type":"FeatureCollection","features":[{"properties":{"mag":1},"geometry":{"coordinates":[1,2]}}]}`},
		{"missing geometry", `{"type":"FeatureCollection","features":[{"properties":{"mag":1,"time":5}}]}`},
		{"short coordinates", `{"type":"FeatureCollection","features":[{"properties":{"time":5},"geometry":{"coordinates":[1]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrFeedFormat)
		})
	}
}

func TestDecodeEmptyCollection(t *testing.T) {
	c, err := Decode(strings.NewReader(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Empty(t, c.Events())
	assert.True(t, c.GeneratedAt.IsZero())
}

func TestFilterKeepsUnknownMagnitudes(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "week.geojson"))
	require.NoError(t, err)

	filtered := c.Filter(4.0)
	ids := make([]string, len(filtered.Features))
	for i, f := range filtered.Features {
		ids[i] = f.ID
	}
	assert.Equal(t, []string{"us7000abcd", "ak0240001", "us7000efgh"}, ids)
	assert.Len(t, c.Features, 4, "filter must not modify the source collection")
}

func TestFetch(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "week.geojson"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.geojson" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)

	c, err := client.Open(context.Background(), srv.URL+"/feed.geojson")
	require.NoError(t, err)
	assert.Len(t, c.Events(), 4)

	_, err = client.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Client{}).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://earthquake.usgs.gov/feed.geojson"))
	assert.True(t, IsURL("HTTP://example.com"))
	assert.False(t, IsURL("testdata/week.geojson"))
	assert.False(t, IsURL("ftp://example.com/feed"))
}
