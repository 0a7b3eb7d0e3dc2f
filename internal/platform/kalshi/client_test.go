package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/platform"
)

const eventsBody = `{"events":[
  {"event_ticker": "KXFEDDECISION-25MAR", "title": "Fed decision in March 2025", "markets": [
    {"ticker": "KXFEDDECISION-25MAR-C25", "event_ticker": "KXFEDDECISION-25MAR", "title": "Fed decision in March 2025", "yes_sub_title": "Cut 25bps", "last_price": 62, "volume": 1500},
    {"ticker": "KXFEDDECISION-25MAR-H0", "event_ticker": "KXFEDDECISION-25MAR", "title": "Fed decision in March 2025", "yes_sub_title": "Hold", "yes_bid": 30, "yes_ask": 34}
  ]},
  {"event_ticker": "KXBTC-25", "title": "Bitcoin above 100k", "markets": [
    {"ticker": "KXBTC-25-T100", "event_ticker": "KXBTC-25", "title": "Bitcoin above 100k", "last_price": 45}
  ]}
]}`

func TestSearchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("status") != "open" || q.Get("with_nested_markets") != "true" {
			t.Errorf("query = %v", q)
		}
		if r.Header.Get("KALSHI-ACCESS-KEY") != "" {
			t.Error("unsigned client sent auth headers")
		}
		w.Write([]byte(eventsBody))
	}))
	defer srv.Close()

	c := NewClient(platform.Config{BaseURL: srv.URL}, "")
	got, err := c.SearchMarkets(context.Background(), "fed march")
	if err != nil {
		t.Fatalf("SearchMarkets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}

	cut := got[0]
	if cut.ID != "KXFEDDECISION-25MAR-C25" || cut.Platform != domain.PlatformKalshi {
		t.Errorf("key = %s", cut.Key())
	}
	if cut.Title != "Fed decision in March 2025: Cut 25bps" {
		t.Errorf("Title = %q", cut.Title)
	}
	if cut.Probability != 0.62 {
		t.Errorf("Probability = %v, want last price 0.62", cut.Probability)
	}
	if cut.URL != "https://kalshi.com/markets/kxfeddecision" {
		t.Errorf("URL = %q", cut.URL)
	}
	if cut.Volume == nil || *cut.Volume != 1500 {
		t.Errorf("Volume = %v, want 1500", cut.Volume)
	}

	if hold := got[1]; hold.Probability != 0.32 {
		t.Errorf("hold Probability = %v, want bid/ask midpoint 0.32", hold.Probability)
	}
}

func TestSearchMarketsFollowsCursor(t *testing.T) {
	pages := map[string]string{
		"": `{"cursor":"p2","events":[
  {"event_ticker":"KXBTC-25","title":"Bitcoin above 100k","markets":[{"ticker":"KXBTC-25-T100","title":"Bitcoin above 100k","last_price":45}]}
]}`,
		"p2": `{"cursor":"p3","events":[
  {"event_ticker":"KXFED-25","title":"Fed cuts in June","markets":[{"ticker":"KXFED-25-JUN","title":"Fed cuts in June","last_price":40}]}
]}`,
		"p3": `{"cursor":"","events":[
  {"event_ticker":"KXFED-26","title":"Fed cuts in July","markets":[{"ticker":"KXFED-26-JUL","title":"Fed cuts in July","last_price":20}]}
]}`,
	}
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := r.URL.Query().Get("cursor")
		cursors = append(cursors, cur)
		body, ok := pages[cur]
		if !ok {
			t.Errorf("unexpected cursor %q", cur)
			body = `{"events":[]}`
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	t.Run("reads every page", func(t *testing.T) {
		cursors = nil
		c := NewClient(platform.Config{BaseURL: srv.URL}, "")
		got, err := c.SearchMarkets(context.Background(), "fed")
		if err != nil {
			t.Fatalf("SearchMarkets: %v", err)
		}
		if len(got) != 2 || got[0].ID != "KXFED-25-JUN" || got[1].ID != "KXFED-26-JUL" {
			t.Errorf("markets = %+v", got)
		}
		if len(cursors) != 3 {
			t.Errorf("requested cursors %q, want 3 pages", cursors)
		}
	})

	t.Run("stops at the search limit", func(t *testing.T) {
		cursors = nil
		c := NewClient(platform.Config{BaseURL: srv.URL, SearchLimit: 1}, "")
		got, err := c.SearchMarkets(context.Background(), "fed")
		if err != nil {
			t.Fatalf("SearchMarkets: %v", err)
		}
		if len(got) != 1 || got[0].ID != "KXFED-25-JUN" {
			t.Errorf("markets = %+v", got)
		}
		if len(cursors) != 2 {
			t.Errorf("requested cursors %q, want 2 pages", cursors)
		}
	})
}

func TestGetMarketSettled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/KXBTC-25-T100":
			w.Write([]byte(`{"market": {"ticker": "KXBTC-25-T100", "event_ticker": "KXBTC-25", "title": "Bitcoin above 100k", "status": "settled", "result": "yes", "last_price": 99}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"not_found","message":"market not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(platform.Config{BaseURL: srv.URL}, "")
	m, err := c.GetMarket(context.Background(), "KXBTC-25-T100")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if !m.Resolved || m.Resolution != "YES" || m.Probability != 1 {
		t.Errorf("market = %+v, want resolved YES at 1", m)
	}

	if _, err := c.GetMarket(context.Background(), "NOPE"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetMarket(NOPE) = %v, want ErrNotFound", err)
	}
}

func TestSignedRequests(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("KALSHI-ACCESS-KEY"); got != "key-id" {
			t.Errorf("KALSHI-ACCESS-KEY = %q", got)
		}
		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		if ts != "1700000000000" {
			t.Errorf("KALSHI-ACCESS-TIMESTAMP = %q", ts)
		}
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		if err != nil {
			t.Errorf("decode signature: %v", err)
		}
		hash := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
		if err := rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
			t.Errorf("signature does not verify: %v", err)
		}
		w.Write([]byte(`{"market": {"ticker": "T1", "title": "Signed"}}`))
	}))
	defer srv.Close()

	c := NewClient(platform.Config{BaseURL: srv.URL + "/trade-api/v2"}, "key-id")
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	if err := c.SetRSAPrivateKey(pemBytes); err != nil {
		t.Fatalf("SetRSAPrivateKey: %v", err)
	}
	if _, err := c.GetMarket(context.Background(), "T1"); err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
}

func TestSetRSAPrivateKeyRejectsGarbage(t *testing.T) {
	c := NewClient(platform.Config{}, "id")
	if err := c.SetRSAPrivateKey([]byte("not a pem")); err == nil {
		t.Error("SetRSAPrivateKey(garbage) = nil, want error")
	}
}
