// Package control wraps the race server's HTTP control plane: starting a
// race with chosen weather, resetting it, and polling its status. The
// viewer binds these to keyboard shortcuts; tooling uses them directly.
package control

import (
	"context"
	"strings"

	"github.com/Darshbir/toyota-gr-sim/internal/httputil"
	"github.com/Darshbir/toyota-gr-sim/internal/race"
)

// Client talks to one race server.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient creates a control client for the server at baseURL. A nil
// httpClient falls back to the standard client.
func NewClient(baseURL string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// StartOptions is the weather for a fresh race. The server clamps
// out-of-range values rather than rejecting them.
type StartOptions struct {
	Rain      float64 `json:"rain"`
	TrackTemp float64 `json:"track_temp"`
	Wind      float64 `json:"wind"`
}

// StartRace asks the server to regrid and start a race under the given
// conditions.
func (c *Client) StartRace(ctx context.Context, opts StartOptions) error {
	return httputil.PostJSON(ctx, c.http, c.baseURL+"/api/start", opts, nil)
}

// Reset returns the server's race to the grid.
func (c *Client) Reset(ctx context.Context) error {
	return httputil.PostJSON(ctx, c.http, c.baseURL+"/api/reset", nil, nil)
}

// RaceStatus is the server's current phase report.
type RaceStatus struct {
	Started   bool         `json:"race_started"`
	Finished  bool         `json:"race_finished"`
	SimTime   float64      `json:"time"`
	Weather   race.Weather `json:"weather"`
	TotalLaps int          `json:"total_laps"`
}

// Status polls the server's race phase.
func (c *Client) Status(ctx context.Context) (*RaceStatus, error) {
	var status RaceStatus
	if err := httputil.GetJSON(ctx, c.http, c.baseURL+"/api/race-status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TrackURL returns the HTTP track endpoint, used as the state store's
// fallback when the stream joined too late to see the track message.
func (c *Client) TrackURL() string {
	return c.baseURL + "/api/track"
}
