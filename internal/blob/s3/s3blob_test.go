package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

type fakeBlobWriter struct {
	mu          sync.Mutex
	path        string
	body        []byte
	contentType string
	err         error
}

func (f *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.path, f.body, f.contentType = path, b, contentType
	return nil
}

func sampleRun() domain.ComparisonRun {
	return domain.ComparisonRun{
		ID:    "0b7d6c7e-1111-4d5e-9a7b-2c3d4e5f6a7b",
		Query: "bitcoin 100k",
		Comparisons: []domain.Comparison{{
			Title: "Bitcoin above $100k by December?",
			Platforms: map[domain.Platform]domain.Quote{
				domain.PlatformKalshi:     {Probability: 0.4, URL: "https://kalshi.com/markets/kxbtc"},
				domain.PlatformPolymarket: {Probability: 0.45, URL: "https://polymarket.com/event/btc"},
			},
			Spread: 0.05,
		}},
		Errors:      []domain.PlatformError{{Platform: domain.PlatformPredictIt, Err: errors.New("upstream error: HTTP 502")}},
		MarketCount: 12,
		Duration:    830 * time.Millisecond,
		CreatedAt:   time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("EST", -5*3600)),
	}
}

func TestRunArchiverPath(t *testing.T) {
	a := NewRunArchiver(&fakeBlobWriter{}, "")
	// 23:30 EST is the next day in UTC.
	want := "runs/2026/03/08/0b7d6c7e-1111-4d5e-9a7b-2c3d4e5f6a7b.json"
	if got := a.Path(sampleRun()); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if got := NewRunArchiver(&fakeBlobWriter{}, "history/").Path(sampleRun()); !strings.HasPrefix(got, "history/2026/03/08/") {
		t.Errorf("Path() with custom prefix = %q", got)
	}
}

func TestRunArchiverArchive(t *testing.T) {
	w := &fakeBlobWriter{}
	a := NewRunArchiver(w, "runs")

	key, err := a.Archive(context.Background(), sampleRun())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if key != w.path {
		t.Errorf("returned key %q, uploaded to %q", key, w.path)
	}
	if w.contentType != "application/json" {
		t.Errorf("content type = %q", w.contentType)
	}

	var doc struct {
		ID          string `json:"id"`
		DurationMs  int64  `json:"duration_ms"`
		MarketCount int    `json:"market_count"`
		Comparisons []struct {
			Platforms map[string]struct {
				Probability float64 `json:"probability"`
			} `json:"platforms"`
		} `json:"comparisons"`
		Errors []struct {
			Platform string `json:"platform"`
			Error    string `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(w.body, &doc); err != nil {
		t.Fatalf("decode archived body: %v", err)
	}
	if doc.ID != sampleRun().ID || doc.DurationMs != 830 || doc.MarketCount != 12 {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Comparisons) != 1 || doc.Comparisons[0].Platforms["kalshi"].Probability != 0.4 {
		t.Errorf("comparisons = %+v", doc.Comparisons)
	}
	if len(doc.Errors) != 1 || doc.Errors[0].Platform != "predictit" {
		t.Errorf("errors = %+v", doc.Errors)
	}
}

func TestRunArchiverPropagatesWriteError(t *testing.T) {
	a := NewRunArchiver(&fakeBlobWriter{err: errors.New("bucket gone")}, "runs")
	if _, err := a.Archive(context.Background(), sampleRun()); err == nil {
		t.Fatal("Archive should fail when the writer fails")
	}
}

func TestWriterPutAgainstFakeS3(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body, ctype = r.Method, r.URL.Path, b, r.Header.Get("Content-Type")
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "archive",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte(`{"id":"r1"}`)
	if err := NewWriter(c).Put(context.Background(), "runs/2026/01/02/r1.json", bytes.NewReader(payload), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/archive/runs/2026/01/02/r1.json" {
		t.Errorf("path = %s", path)
	}
	if !bytes.Contains(body, payload) {
		t.Errorf("body = %q, want it to carry %q", body, payload)
	}
	if ctype != "application/json" {
		t.Errorf("content type = %q", ctype)
	}
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("New without bucket should fail")
	}
	if _, err := New(context.Background(), ClientConfig{Bucket: "b"}); err == nil {
		t.Error("New without region should fail")
	}
}

func TestWithScheme(t *testing.T) {
	tests := map[string]string{
		"https://e2.example.com": "https://e2.example.com",
		"http://localhost:9000":  "http://localhost:9000",
		"s3.example.com":         "https://s3.example.com",
	}
	for in, want := range tests {
		if got := withScheme(in); got != want {
			t.Errorf("withScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
