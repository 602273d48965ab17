// Package feed decodes earthquake summary feeds in the USGS GeoJSON format
// into sonify events.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/zurustar/seismosonic/pkg/sonify"
)

// ErrFeedFormat is wrapped by every decoding failure.
var ErrFeedFormat = errors.New("malformed feed")

// maxFeedBytes bounds how much of a response body is decoded.
const maxFeedBytes = 64 << 20

// Feature is one decoded feed entry.
// ID is the feed's identifier for the event and may be empty.
type Feature struct {
	ID    string
	Event sonify.Event
}

// Collection is a decoded feed.
type Collection struct {
	Title       string
	GeneratedAt time.Time
	Features    []Feature
}

// Events returns the events in feed order.
func (c *Collection) Events() []sonify.Event {
	events := make([]sonify.Event, len(c.Features))
	for i, f := range c.Features {
		events[i] = f.Event
	}
	return events
}

// Filter returns a collection keeping features with magnitude >= minMag.
// Features with an unknown magnitude are kept.
func (c *Collection) Filter(minMag float64) *Collection {
	out := &Collection{Title: c.Title, GeneratedAt: c.GeneratedAt}
	for _, f := range c.Features {
		if f.Event.Magnitude < minMag {
			continue
		}
		out.Features = append(out.Features, f)
	}
	return out
}

type geoJSON struct {
	Type     string `json:"type"`
	Metadata struct {
		Generated int64  `json:"generated"`
		Title     string `json:"title"`
	} `json:"metadata"`
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Mag   *float64 `json:"mag"`
			Time  *int64   `json:"time"`
			Place string   `json:"place"`
		} `json:"properties"`
		Geometry *struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Decode reads a GeoJSON FeatureCollection.
// A null magnitude decodes as NaN. A feature without a time or without
// longitude and latitude is rejected.
func Decode(r io.Reader) (*Collection, error) {
	var doc geoJSON
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedFormat, err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrFeedFormat, doc.Type)
	}

	c := &Collection{
		Title:    doc.Metadata.Title,
		Features: make([]Feature, 0, len(doc.Features)),
	}
	if doc.Metadata.Generated > 0 {
		c.GeneratedAt = time.UnixMilli(doc.Metadata.Generated).UTC()
	}

	for i, f := range doc.Features {
		if f.Properties.Time == nil {
			return nil, fmt.Errorf("%w: feature %d has no time", ErrFeedFormat, i)
		}
		if f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
			return nil, fmt.Errorf("%w: feature %d has no coordinates", ErrFeedFormat, i)
		}

		ev := sonify.Event{
			Magnitude:    math.NaN(),
			OccurredAtMs: *f.Properties.Time,
			Longitude:    f.Geometry.Coordinates[0],
			Latitude:     f.Geometry.Coordinates[1],
			Place:        f.Properties.Place,
		}
		if f.Properties.Mag != nil {
			ev.Magnitude = *f.Properties.Mag
		}
		if len(f.Geometry.Coordinates) > 2 {
			ev.DepthKm = f.Geometry.Coordinates[2]
		}
		c.Features = append(c.Features, Feature{ID: f.ID, Event: ev})
	}
	return c, nil
}

// Load reads a feed from a local file.
func Load(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Client fetches feeds over HTTP.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Fetch downloads and decodes the feed at url.
func (c *Client) Fetch(ctx context.Context, url string) (*Collection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch feed: unexpected status %s", resp.Status)
	}
	return Decode(io.LimitReader(resp.Body, maxFeedBytes))
}

// Open loads a feed from an http(s) URL or a local path.
func (c *Client) Open(ctx context.Context, source string) (*Collection, error) {
	if IsURL(source) {
		return c.Fetch(ctx, source)
	}
	return Load(source)
}

// IsURL reports whether source names an http(s) resource.
func IsURL(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
