package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"stopboard/internal/cache"
	"stopboard/internal/gtfs"
)

// Remote is a backend that delegates to a network prediction service.
// Predictions are real-time by definition; the service also exposes the
// static full-day schedule used to seed the offline cache.
type Remote struct {
	baseURL   string
	client    *http.Client
	cache     *ttlCache
	logger    *slog.Logger
	connected atomic.Bool
}

// NewRemote creates a prediction API client.
func NewRemote(baseURL string, logger *slog.Logger) *Remote {
	return &Remote{
		baseURL: trimSlash(baseURL),
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   newTTLCache(60 * time.Second),
		logger:  logger,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

type remoteStop struct {
	ID   string  `json:"stop_id"`
	Name string  `json:"stop_name"`
	Code string  `json:"stop_code"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (r remoteStop) stop() gtfs.Stop {
	return gtfs.Stop{ID: r.ID, Name: r.Name, Code: r.Code, Lat: r.Lat, Lon: r.Lon}
}

type remotePrediction struct {
	RouteName        string  `json:"route_name"`
	RouteColor       string  `json:"route_color"`
	Headsign         string  `json:"headsign"`
	PredictedMinutes int     `json:"predicted_minutes"`
	CurrentDelayMins float64 `json:"current_delay_minutes"`
}

type remoteArrivalsPayload struct {
	Arrivals []remotePrediction `json:"arrivals"`
}

type remoteSchedulePayload struct {
	Schedule []cache.ScheduleRow `json:"schedule"`
}

// SearchStops queries the stops endpoint.
func (r *Remote) SearchStops(ctx context.Context, query string, limit int) ([]gtfs.Stop, error) {
	if limit <= 0 {
		limit = 20
	}
	var payload []remoteStop
	params := url.Values{"search": {query}, "limit": {strconv.Itoa(limit)}}
	if err := r.getJSON(ctx, "/api/stops?"+params.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("search stops: %w", err)
	}
	stops := make([]gtfs.Stop, 0, len(payload))
	for _, s := range payload {
		stops = append(stops, s.stop())
	}
	return stops, nil
}

// GetStop fetches one stop. A 404 means logical absence: nil stop, nil error.
func (r *Remote) GetStop(ctx context.Context, id string) (*gtfs.Stop, error) {
	cacheKey := "stop:" + id
	if cached, ok := r.cache.get(cacheKey); ok {
		stop := cached.(gtfs.Stop)
		return &stop, nil
	}

	var payload remoteStop
	err := r.getJSON(ctx, "/api/stops/"+url.PathEscape(id), &payload)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stop %s: %w", id, err)
	}
	stop := payload.stop()
	r.cache.set(cacheKey, stop)
	return &stop, nil
}

// GetArrivals fetches real-time predictions for a stop.
func (r *Remote) GetArrivals(ctx context.Context, stopID string) (ArrivalsResult, error) {
	stop, err := r.GetStop(ctx, stopID)
	if err != nil {
		return ArrivalsResult{}, err
	}
	if stop == nil {
		return ArrivalsResult{
			Stop:        gtfs.Stop{ID: stopID, Name: "Unknown"},
			Timestamp:   time.Now(),
			IsConnected: true,
			Err:         "stop not found",
		}, nil
	}

	cacheKey := "arrivals:" + stopID
	if cached, ok := r.cache.get(cacheKey); ok {
		return cached.(ArrivalsResult), nil
	}

	var payload remoteArrivalsPayload
	if err := r.getJSON(ctx, "/api/predictions/stop/"+url.PathEscape(stopID)+"/arrivals", &payload); err != nil {
		return ArrivalsResult{}, fmt.Errorf("get arrivals for %s: %w", stopID, err)
	}

	arrivals := make([]gtfs.Arrival, 0, len(payload.Arrivals))
	for _, p := range payload.Arrivals {
		color := p.RouteColor
		if color == "" {
			color = "000000"
		}
		arrivals = append(arrivals, gtfs.Arrival{
			RouteShortName: p.RouteName,
			RouteColor:     color,
			Headsign:       p.Headsign,
			MinutesAway:    p.PredictedMinutes,
			IsRealtime:     true,
			DelaySeconds:   int(p.CurrentDelayMins * 60),
		})
	}

	result := ArrivalsResult{
		Stop:        *stop,
		Arrivals:    arrivals,
		Timestamp:   time.Now(),
		IsConnected: true,
	}
	r.cache.set(cacheKey, result)
	return result, nil
}

// ScheduleRows fetches the static full-day schedule for a stop.
func (r *Remote) ScheduleRows(ctx context.Context, stopID string) ([]cache.ScheduleRow, error) {
	var payload remoteSchedulePayload
	if err := r.getJSON(ctx, "/api/stops/"+url.PathEscape(stopID)+"/schedule", &payload); err != nil {
		return nil, fmt.Errorf("get schedule for %s: %w", stopID, err)
	}
	return payload.Schedule, nil
}

// Refresh probes the service health endpoint and records connectivity.
func (r *Remote) Refresh(ctx context.Context) error {
	var payload map[string]any
	if err := r.getJSON(ctx, "/api/health", &payload); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// IsReady reports the last observed connectivity. The service starts
// unknown-unready until a request succeeds.
func (r *Remote) IsReady() bool {
	return r.connected.Load()
}

type httpStatusError struct {
	status int
	url    string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.status, e.url)
}

func isNotFound(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.status == http.StatusNotFound
}

// getJSON performs a GET and decodes the JSON response, tracking
// connectivity for IsReady.
func (r *Remote) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", r.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.connected.Store(false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			r.connected.Store(false)
		}
		return &httpStatusError{status: resp.StatusCode, url: r.baseURL + path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	r.connected.Store(true)
	return nil
}
