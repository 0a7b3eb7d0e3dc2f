package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error {
	return errors.New("not implemented")
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func startHub(t *testing.T) (*httptest.Server, *chanBus) {
	t.Helper()
	bus := &chanBus{ch: make(chan []byte, 4)}
	hub := NewHub(bus, []string{"comparisons"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, bus
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

const event = `{"type":"comparison_run","run_id":"r1","comparisons":[{"title":"Fed","spread":0.04}]}`

func TestHubJSONFrames(t *testing.T) {
	srv, bus := startHub(t)
	conn := dial(t, srv, "")

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if mt != websocket.TextMessage || !strings.Contains(string(data), `"hub_status"`) {
		t.Fatalf("hello = %d %s", mt, data)
	}

	bus.ch <- []byte(event)
	mt, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if mt != websocket.TextMessage || string(data) != event {
		t.Errorf("event = %d %s", mt, data)
	}
}

func TestHubProtoFrames(t *testing.T) {
	srv, bus := startHub(t)
	conn := dial(t, srv, "?encoding=proto")

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	// Malformed payloads are skipped, not forwarded.
	bus.ch <- []byte(`not json`)
	bus.ch <- []byte(event)

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", mt)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := st.AsMap()
	if got["run_id"] != "r1" || got["type"] != "comparison_run" {
		t.Errorf("decoded = %v", got)
	}
	comps := got["comparisons"].([]any)
	if spread := comps[0].(map[string]any)["spread"]; spread != 0.04 {
		t.Errorf("spread = %v", spread)
	}
}

func TestHubRejectsUnknownEncoding(t *testing.T) {
	srv, _ := startHub(t)
	resp, err := http.Get(srv.URL + "/ws?encoding=xml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNewFrame(t *testing.T) {
	f, err := newFrame([]byte(`{"a":1,"b":[true,"x",null]}`))
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(f.json, &back); err != nil || back["a"] != 1.0 {
		t.Errorf("json = %s", f.json)
	}
	if len(f.proto) == 0 {
		t.Error("empty proto frame")
	}
	if _, err := newFrame([]byte(`[1,2]`)); err == nil {
		t.Error("array payload accepted")
	}
}
