// Package dataforseo implements the keyword metrics provider backed by the
// DataForSEO Google Ads search volume endpoint.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/enrich"
	"github.com/starford/strikezone/internal/models"
)

const (
	DefaultBaseURL      = "https://api.dataforseo.com"
	DefaultLocationCode = 2840 // United States
	DefaultLanguageCode = "en"

	searchVolumePath   = "/v3/keywords_data/google_ads/search_volume/live"
	defaultHTTPTimeout = 60 * time.Second
	maxResponseBytes   = 32 << 20
)

// Config holds the account and market settings.
type Config struct {
	BaseURL      string
	Login        string
	Password     string
	LocationCode int
	LanguageCode string
}

// Client calls the DataForSEO API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

var _ enrich.Provider = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New constructs a client, filling defaults for unset market fields.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.LocationCode == 0 {
		cfg.LocationCode = DefaultLocationCode
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchVolumeTask struct {
	Keywords       []string `json:"keywords"`
	LocationCode   int      `json:"location_code"`
	LanguageCode   string   `json:"language_code"`
	SearchPartners bool     `json:"search_partners"`
}

type apiResponse struct {
	StatusCode    int       `json:"status_code"`
	StatusMessage string    `json:"status_message"`
	Tasks         []apiTask `json:"tasks"`
}

type apiTask struct {
	StatusCode    int          `json:"status_code"`
	StatusMessage string       `json:"status_message"`
	Result        []resultItem `json:"result"`
}

type resultItem struct {
	Keyword          string   `json:"keyword"`
	SearchVolume     *int     `json:"search_volume"`
	CompetitionIndex *float64 `json:"competition_index"`
	CPC              *float64 `json:"cpc"`
	Competition      *string  `json:"competition"`
}

// FetchMetrics requests search volume, competition index and CPC for a
// batch of keywords. Failures are returned as *apperr.ProviderError.
func (c *Client) FetchMetrics(ctx context.Context, keywords []string) ([]models.KeywordMetrics, error) {
	if len(keywords) > enrich.MaxBatchSize {
		return nil, &apperr.ConfigurationError{
			Field:  "enrichment.batch_size",
			Reason: fmt.Sprintf("batch of %d exceeds %d keywords", len(keywords), enrich.MaxBatchSize),
		}
	}
	if len(keywords) == 0 {
		return nil, nil
	}

	body, err := json.Marshal([]searchVolumeTask{{
		Keywords:       keywords,
		LocationCode:   c.cfg.LocationCode,
		LanguageCode:   c.cfg.LanguageCode,
		SearchPartners: false,
	}})
	if err != nil {
		return nil, &apperr.ProviderError{Kind: apperr.KindResponse, Err: fmt.Errorf("encode body: %w", err)}
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, searchVolumePath)
	if err != nil {
		return nil, &apperr.ProviderError{Kind: apperr.KindResponse, Err: fmt.Errorf("build url: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &apperr.ProviderError{Kind: apperr.KindResponse, Err: fmt.Errorf("new request: %w", err)}
	}
	req.SetBasicAuth(c.cfg.Login, c.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(resp, raw)
	}

	var payload apiResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &apperr.ProviderError{Kind: apperr.KindResponse, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := apiError(payload.StatusCode, payload.StatusMessage); err != nil {
		return nil, err
	}
	if len(payload.Tasks) == 0 {
		return nil, &apperr.ProviderError{Kind: apperr.KindResponse, Err: errors.New("response has no tasks")}
	}
	task := payload.Tasks[0]
	if err := apiError(task.StatusCode, task.StatusMessage); err != nil {
		return nil, err
	}

	fetchedAt := c.now().UTC()
	out := make([]models.KeywordMetrics, 0, len(task.Result))
	for _, item := range task.Result {
		if strings.TrimSpace(item.Keyword) == "" {
			continue
		}
		m := models.KeywordMetrics{
			Keyword:    strings.ToLower(strings.TrimSpace(item.Keyword)),
			Volume:     item.SearchVolume,
			Difficulty: item.CompetitionIndex,
			CPC:        item.CPC,
			FetchedAt:  fetchedAt,
		}
		if item.Competition != nil {
			m.CompetitionLevel = *item.Competition
		}
		out = append(out, m)
	}
	return out, nil
}

// apiError maps a DataForSEO status code (20000 is success) onto a
// ProviderError.
func apiError(code int, message string) error {
	if code == 0 || code == 20000 {
		return nil
	}
	err := fmt.Errorf("api status %d: %s", code, strings.TrimSpace(message))
	switch {
	case code >= 40100 && code < 40200:
		return &apperr.ProviderError{Kind: apperr.KindAuth, Err: err}
	case code == 40202:
		return &apperr.ProviderError{Kind: apperr.KindRateLimit, Err: err}
	case code >= 50000:
		return &apperr.ProviderError{Kind: apperr.KindUnavailable, Err: err}
	default:
		return &apperr.ProviderError{Kind: apperr.KindResponse, Err: err}
	}
}

func statusError(resp *http.Response, body []byte) error {
	pe := &apperr.ProviderError{
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("http %d: %s", resp.StatusCode, snippet(body)),
	}
	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		pe.Kind = apperr.KindAuth
	case code == http.StatusTooManyRequests:
		pe.Kind = apperr.KindRateLimit
		pe.RetryAfter, _ = parseRetryAfter(resp.Header.Get("Retry-After"))
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		pe.Kind = apperr.KindTimeout
	case code >= http.StatusInternalServerError:
		pe.Kind = apperr.KindUnavailable
		pe.RetryAfter, _ = parseRetryAfter(resp.Header.Get("Retry-After"))
	default:
		pe.Kind = apperr.KindResponse
	}
	return pe
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return &apperr.ProviderError{Kind: apperr.KindCanceled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &apperr.ProviderError{Kind: apperr.KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &apperr.ProviderError{Kind: apperr.KindTimeout, Err: err}
	}
	return &apperr.ProviderError{Kind: apperr.KindUnavailable, Err: err}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
