package prayer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is the single failure kind for prayer API calls: transport
// problems, bad HTTP statuses and unusable payloads all surface as this.
type APIError struct {
	msg   string
	cause error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func apiErrorf(cause error, format string, args ...any) *APIError {
	return &APIError{msg: fmt.Sprintf(format, args...), cause: cause}
}

// ClientOptions configures the API client.
type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration
	// Sleep is the delay function between attempts; tests inject their own.
	Sleep func(time.Duration)
	// HTTPClient overrides the underlying client; mainly for tests.
	HTTPClient *http.Client
}

// Client queries the remote prayer times API with bounded retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	sleep      func(time.Duration)
	logger     *zap.Logger
}

// NewClient creates a Client from options, filling in production defaults.
func NewClient(opts ClientOptions, logger *zap.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		maxRetries: opts.MaxRetries,
		retryBase:  retryBase,
		sleep:      sleep,
		logger:     logger,
	}
}

// GetDate fetches the plan for a single day.
func (c *Client) GetDate(madhab, city string, day time.Time) (DayPlan, error) {
	query := url.Values{}
	query.Set("madhab", madhab)
	query.Set("city", city)
	query.Set("date", day.Format("2006-01-02"))

	body, err := c.get("/api/v1/times/date/", query)
	if err != nil {
		return DayPlan{}, err
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return DayPlan{}, apiErrorf(err, "API returned invalid JSON")
	}
	plan, err := PlanFromRecord(rec)
	if err != nil {
		return DayPlan{}, apiErrorf(err, "API payload is unusable")
	}
	return plan, nil
}

// GetRange fetches plans for [start, end]. Days the API flags as
// out-of-range are skipped without failing the whole call.
func (c *Client) GetRange(madhab, city string, start, end time.Time) ([]DayPlan, error) {
	query := url.Values{}
	query.Set("madhab", madhab)
	query.Set("city", city)
	query.Set("start", start.Format("2006-01-02"))
	query.Set("end", end.Format("2006-01-02"))

	body, err := c.get("/api/v1/times/range/", query)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []Record `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apiErrorf(err, "API returned invalid JSON")
	}

	plans := make([]DayPlan, 0, len(payload.Results))
	for _, rec := range payload.Results {
		if _, flagged := rec.Times["error"]; flagged {
			continue
		}
		plan, err := PlanFromRecord(rec)
		if err != nil {
			c.logger.Warn("Skipping unusable day in range payload",
				zap.String("date", rec.Date), zap.Error(err))
			continue
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// get performs the HTTP request with the retry policy: transport failures
// and 5xx responses retry with exponential backoff, 4xx responses are
// permanent and surface immediately.
func (c *Client) get(path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path + "?" + query.Encode()

	var lastErr *APIError
	for attempt := 0; ; attempt++ {
		body, retryable, err := c.getOnce(fullURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt >= c.maxRetries {
			return nil, lastErr
		}
		delay := c.retryBase << attempt
		c.logger.Warn("API request failed, retrying",
			zap.String("url", fullURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))
		c.sleep(delay)
	}
}

func (c *Client) getOnce(fullURL string) (body []byte, retryable bool, err *APIError) {
	resp, httpErr := c.httpClient.Get(fullURL)
	if httpErr != nil {
		return nil, true, apiErrorf(httpErr, "request failed for %s", fullURL)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, true, apiErrorf(readErr, "reading response from %s failed", fullURL)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, false, nil
	case resp.StatusCode >= 500:
		return nil, true, apiErrorf(nil, "API request failed with status %d", resp.StatusCode)
	default:
		c.logger.Warn("API rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(data))))
		return nil, false, apiErrorf(nil, "API request failed with status %d", resp.StatusCode)
	}
}
