package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream/ws" + query
	return websocket.DefaultDialer.Dial(url, header)
}

// TestWebSocketStream verifies metadata then keyframe batches over a WebSocket.
func TestWebSocketStream(t *testing.T) {
	handler, kfCache := testHandler(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go kfCache.Start(ctx)
	waitForCache(t, kfCache)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "?step=1&trail=0", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var meta metadataMessage
	if err := conn.ReadJSON(&meta); err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.Type != "metadata" || meta.BodyCount != 9 {
		t.Errorf("metadata = %+v", meta)
	}

	var batch keyframeBatchMessage
	if err := conn.ReadJSON(&batch); err != nil {
		t.Fatalf("read batch: %v", err)
	}
	if batch.Type != "keyframe_batch" || len(batch.Bodies) != 9 {
		t.Errorf("batch type %q with %d bodies", batch.Type, len(batch.Bodies))
	}
	for _, b := range batch.Bodies {
		if b.Tr != nil {
			t.Errorf("%s: trail sent with trail=0", b.N)
		}
	}
}

// TestWebSocketRejections verifies validation, origin and per-IP limits.
func TestWebSocketRejections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	cfg.AllowedOrigins = []string{"https://orrery.example"}
	handler, _ := testHandler(cfg)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	if _, resp, err := dialWS(t, srv, "?step=0", nil); err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("step=0: err=%v resp=%v, want 400", err, resp)
	}

	bad := http.Header{"Origin": {"https://evil.example"}}
	if _, resp, err := dialWS(t, srv, "", bad); err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin: err=%v resp=%v, want 403", err, resp)
	}

	good := http.Header{"Origin": {"https://orrery.example"}}
	first, _, err := dialWS(t, srv, "", good)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer first.Close()

	// The first stream holds the only slot for 127.0.0.1.
	time.Sleep(50 * time.Millisecond)
	_, resp, err := dialWS(t, srv, "", good)
	if err == nil || resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second dial: err=%v resp=%v, want 429", err, resp)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"] == "" {
		t.Errorf("429 body = %v (%v)", body, err)
	}
}
