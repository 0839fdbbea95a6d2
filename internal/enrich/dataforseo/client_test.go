package dataforseo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/enrich"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Login: "user@example.com", Password: "secret"},
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
}

func TestFetchMetrics_Success(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != searchVolumePath {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user@example.com" || pass != "secret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		var tasks []searchVolumeTask
		if err := json.NewDecoder(r.Body).Decode(&tasks); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if len(tasks) != 1 || tasks[0].LocationCode != 2840 || tasks[0].LanguageCode != "en" || tasks[0].SearchPartners {
			t.Errorf("task = %+v", tasks)
		}
		if len(tasks[0].Keywords) != 2 {
			t.Errorf("keywords = %v", tasks[0].Keywords)
		}
		_, _ = w.Write([]byte(`{
			"status_code": 20000,
			"tasks": [{
				"status_code": 20000,
				"result": [
					{"keyword": "Best Shoes", "search_volume": 880, "competition_index": 37, "cpc": 1.25, "competition": "MEDIUM"},
					{"keyword": "rare shoes", "search_volume": null, "competition_index": null, "cpc": null, "competition": null}
				]
			}]
		}`))
	})

	got, err := c.FetchMetrics(context.Background(), []string{"best shoes", "rare shoes"})
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	m := got[0]
	if m.Keyword != "best shoes" || *m.Volume != 880 || *m.Difficulty != 37 || *m.CPC != 1.25 || m.CompetitionLevel != "MEDIUM" {
		t.Errorf("metrics = %+v", m)
	}
	if !m.FetchedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("fetched at = %v", m.FetchedAt)
	}
	if got[1].Volume != nil || got[1].Difficulty != nil {
		t.Errorf("null fields should stay absent: %+v", got[1])
	}
}

func TestFetchMetrics_StatusClassification(t *testing.T) {
	cases := []struct {
		status     int
		retryAfter string
		kind       apperr.ProviderKind
		delay      time.Duration
	}{
		{http.StatusUnauthorized, "", apperr.KindAuth, 0},
		{http.StatusForbidden, "", apperr.KindAuth, 0},
		{http.StatusTooManyRequests, "3", apperr.KindRateLimit, 3 * time.Second},
		{http.StatusGatewayTimeout, "", apperr.KindTimeout, 0},
		{http.StatusServiceUnavailable, "", apperr.KindUnavailable, 0},
		{http.StatusBadRequest, "", apperr.KindResponse, 0},
	}
	for _, tc := range cases {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if tc.retryAfter != "" {
				w.Header().Set("Retry-After", tc.retryAfter)
			}
			http.Error(w, "nope", tc.status)
		})
		_, err := c.FetchMetrics(context.Background(), []string{"k"})
		var pe *apperr.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: err = %v, want ProviderError", tc.status, err)
		}
		if pe.Kind != tc.kind || pe.StatusCode != tc.status || pe.RetryAfter != tc.delay {
			t.Errorf("status %d: got kind=%s code=%d retry=%v", tc.status, pe.Kind, pe.StatusCode, pe.RetryAfter)
		}
	}
}

func TestFetchMetrics_APIStatusCodes(t *testing.T) {
	cases := map[int]apperr.ProviderKind{
		40100: apperr.KindAuth,
		40104: apperr.KindAuth,
		40202: apperr.KindRateLimit,
		50000: apperr.KindUnavailable,
		40501: apperr.KindResponse,
	}
	for code, kind := range cases {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status_code": 20000,
				"tasks":       []map[string]any{{"status_code": code, "status_message": "task error"}},
			})
		})
		_, err := c.FetchMetrics(context.Background(), []string{"k"})
		var pe *apperr.ProviderError
		if !errors.As(err, &pe) || pe.Kind != kind {
			t.Errorf("api code %d: err = %v, want kind %s", code, err, kind)
		}
	}
}

func TestFetchMetrics_RejectsOversizeBatch(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	kws := make([]string, enrich.MaxBatchSize+1)
	_, err := c.FetchMetrics(context.Background(), kws)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestFetchMetrics_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.FetchMetrics(ctx, []string{"k"})
	var pe *apperr.ProviderError
	if !errors.As(err, &pe) || pe.Kind != apperr.KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestClient_WithEnrichClient(t *testing.T) {
	var calls int
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var tasks []searchVolumeTask
		_ = json.NewDecoder(r.Body).Decode(&tasks)
		items := make([]map[string]any, 0, len(tasks[0].Keywords))
		for _, kw := range tasks[0].Keywords {
			items = append(items, map[string]any{"keyword": kw, "search_volume": 10})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status_code": 20000,
			"tasks":       []map[string]any{{"status_code": 20000, "result": items}},
		})
	})
	ec, err := enrich.New(c, enrich.WithWorkers(1))
	if err != nil {
		t.Fatal(err)
	}
	kws := make([]string, 1200)
	for i := range kws {
		kws[i] = "kw" + strconv.Itoa(i)
	}
	report, err := ec.Enrich(context.Background(), kws, enrich.NewCache())
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 || report.FetchedCount != 1200 {
		t.Errorf("calls = %d fetched = %d", calls, report.FetchedCount)
	}
}
