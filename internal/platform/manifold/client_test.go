package manifold

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

const searchBody = `[
  {"id":"resolved","question":"Old question","isResolved":true,"resolution":"YES","probability":1},
  {"id":"closed","question":"Closed question","closeTime":1000,"probability":0.4},
  {"id":"open1","question":"Will the Fed cut rates in March?","probability":0.73,"volume":1234.5,"closeTime":4102444800000,"textDescription":"Resolves YES if..."},
  {"id":"multi","question":"Who wins?","outcomeType":"MULTIPLE_CHOICE","url":"https://manifold.markets/u/who-wins","answers":[{"text":"A","probability":0.2},{"text":"B","probability":0.6},{"text":"Other","probability":0.9,"isOther":true}]}
]`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0/search-markets":
			if got := r.URL.Query().Get("term"); got != "fed" {
				t.Errorf("term = %q, want %q", got, "fed")
			}
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("limit = %q, want %q", got, "10")
			}
			w.Write([]byte(searchBody))
		case "/v0/market/open1":
			w.Write([]byte(`{"id":"open1","question":"Will the Fed cut rates in March?","probability":0.73}`))
		case "/v0/market/done":
			w.Write([]byte(`{"id":"done","question":"Done","isResolved":true,"resolution":"NO","probability":0}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSearchMarkets(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient(platform.Config{BaseURL: srv.URL})
	c.now = func() time.Time { return time.UnixMilli(2000) }

	got, err := c.SearchMarkets(context.Background(), "fed")
	if err != nil {
		t.Fatalf("SearchMarkets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (resolved and closed dropped): %+v", len(got), got)
	}

	m := got[0]
	if m.Platform != domain.PlatformManifold || m.ID != "open1" {
		t.Errorf("market = %s, want manifold:open1", m.Key())
	}
	if m.Probability != 0.73 {
		t.Errorf("Probability = %v, want 0.73", m.Probability)
	}
	if m.URL != "https://manifold.markets/market/open1" {
		t.Errorf("URL = %q", m.URL)
	}
	if m.Volume == nil || *m.Volume != 1234.5 {
		t.Errorf("Volume = %v, want 1234.5", m.Volume)
	}
	if m.Description != "Resolves YES if..." {
		t.Errorf("Description = %q", m.Description)
	}

	multi := got[1]
	if math.Abs(multi.Probability-0.6) > 1e-9 {
		t.Errorf("multiple choice Probability = %v, want leading answer 0.6", multi.Probability)
	}
	if multi.URL != "https://manifold.markets/u/who-wins" {
		t.Errorf("URL = %q, want payload url", multi.URL)
	}
}

func TestGetMarket(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := NewClient(platform.Config{BaseURL: srv.URL})
	ctx := context.Background()

	m, err := c.GetMarket(ctx, "open1")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.Title != "Will the Fed cut rates in March?" || m.Resolved {
		t.Errorf("market = %+v", m)
	}

	done, err := c.GetMarket(ctx, "done")
	if err != nil {
		t.Fatalf("GetMarket(done): %v", err)
	}
	if !done.Resolved || done.Resolution != "NO" {
		t.Errorf("Resolved = %v Resolution = %q, want true NO", done.Resolved, done.Resolution)
	}

	if _, err := c.GetMarket(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetMarket(missing) = %v, want ErrNotFound", err)
	}
}
