package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://www.Instagram.com/someone/", "www.instagram.com"},
		{"no scheme", "instagram.com/someone", "instagram.com"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveScrape(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(scrapesTotal.WithLabelValues("login_wall"))
	ObserveScrape("login_wall", 3*time.Second)
	if got := testutil.ToFloat64(scrapesTotal.WithLabelValues("login_wall")); got != before+1 {
		t.Errorf("expected login_wall scrapes to be %f, got %f", before+1, got)
	}
	if val := testutil.CollectAndCount(scrapeDurationSeconds); val <= 0 {
		t.Errorf("expected scrape duration to be observed, got %d", val)
	}
}

func TestObserveBatchAndFollowers(t *testing.T) {
	Init()
	beforeOK := testutil.ToFloat64(batchTargetsTotal.WithLabelValues("success"))
	beforeErr := testutil.ToFloat64(batchTargetsTotal.WithLabelValues("error"))
	ObserveBatch(3, 2, time.Minute)
	if got := testutil.ToFloat64(batchTargetsTotal.WithLabelValues("success")); got != beforeOK+3 {
		t.Errorf("expected %f successes, got %f", beforeOK+3, got)
	}
	if got := testutil.ToFloat64(batchTargetsTotal.WithLabelValues("error")); got != beforeErr+2 {
		t.Errorf("expected %f errors, got %f", beforeErr+2, got)
	}

	SetFollowerCount("someone", 1234)
	if got := testutil.ToFloat64(profileFollowers.WithLabelValues("someone")); got != 1234 {
		t.Errorf("expected follower gauge 1234, got %f", got)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before+1 {
		t.Errorf("expected %f active workers, got %f", before+1, got)
	}
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before {
		t.Errorf("expected %f active workers, got %f", before, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"https://www.instagram.com/a/", "instagram.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
