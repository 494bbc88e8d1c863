// Package purpleair provides a client for the PurpleAir sensor API.
package purpleair

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/fer004/Sensores/internal/resilience"
)

// DefaultBaseURL is the PurpleAir v1 API root.
const DefaultBaseURL = "https://api.purpleair.com/v1"

// DefaultFields are the measurement fields requested per sensor.
var DefaultFields = []string{"pm1.0", "pm2.5"}

// Client defines the PurpleAir operations.
type Client interface {
	// GetSensor fetches the latest readings of one sensor.
	GetSensor(ctx context.Context, index int, fields []string) (*Sensor, error)
}

// Sensor is the "sensor" object of a single-sensor response. Fields that
// were not requested or not reported are nil.
type Sensor struct {
	Index     int      `json:"sensor_index"`
	Name      string   `json:"name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	LastSeen  int64    `json:"last_seen,omitempty"`
	PM1_0     *float64 `json:"pm1.0,omitempty"`
	PM2_5     *float64 `json:"pm2.5,omitempty"`
}

// SensorResponse is the envelope of GET /sensors/{index}.
type SensorResponse struct {
	APIVersion    string `json:"api_version"`
	TimeStamp     int64  `json:"time_stamp"`
	DataTimeStamp int64  `json:"data_time_stamp"`
	Sensor        Sensor `json:"sensor"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
}

// Option configures the PurpleAir client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLimiter sets a preconfigured limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a PurpleAir client authenticated with a read key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("purpleair", "get_sensor")
	}
	return c
}

// GetSensor fetches one sensor, retrying 408, 429, 5xx and network timeouts.
func (c *httpClient) GetSensor(ctx context.Context, index int, fields []string) (*Sensor, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	u := fmt.Sprintf("%s/sensors/%d?fields=%s", c.baseURL, index, url.QueryEscape(strings.Join(fields, ",")))

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "purpleair: get sensor %d", index)
	}

	var resp SensorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "purpleair: decode sensor %d", index)
	}
	if resp.Sensor.Index == 0 {
		resp.Sensor.Index = index
	}
	return &resp.Sensor, nil
}

func (c *httpClient) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), resp.StatusCode)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	statusErr := eris.Errorf("status %d: %s", resp.StatusCode, describe(body))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return nil, statusErr
}

func describe(body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if e.Description != "" {
			return e.Error + ": " + e.Description
		}
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
