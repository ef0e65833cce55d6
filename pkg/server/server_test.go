package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/bind"
	"github.com/vango-dev/tapas/pkg/catalog"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const counterPage = `<html><head></head><body><button data-tapas-id="1">+</button><span data-tapas-id="2"></span></body></html>`

const counterBindings = `
- id: "1"
  events: {name: click, value: "'x'", action: click}
- id: "2"
  selectors: [{selector: custom, name: clicks, args: ["'clicks'"]}]
  text: {value: "#clicks"}
`

func counterFactory(t *testing.T) Factory {
	return func(context.Context) (*Page, error) {
		doc, err := dom.ParseString(counterPage)
		if err != nil {
			return nil, err
		}
		reducer, err := store.OpsReducer([]store.Op{{Type: "CLICK", Op: "append", Path: "clicks"}})
		if err != nil {
			return nil, err
		}
		st := store.New(reducer, map[string]any{"clicks": []any{}})
		cat := catalog.New()
		cat.Actions.Register("click", catalog.Dispatch("CLICK"))

		ctl := bind.New(doc, st, cat)
		ds, err := bind.Decode(strings.NewReader(counterBindings))
		if err != nil {
			return nil, err
		}
		if err := ctl.BindAll(ds); err != nil {
			return nil, err
		}
		if err := ctl.Bootstrap(); err != nil {
			return nil, err
		}
		return &Page{Controller: ctl, Close: st.Close}, nil
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(counterFactory(t),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRegistry(prometheus.NewRegistry()),
		WithConfig(&Config{HeartbeatInterval: time.Hour, CleanupInterval: time.Hour}),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Error(err)
		}
		ts.Close()
	})
	return srv, ts
}

var sessionAttr = regexp.MustCompile(`data-session="([^"]+)"`)

func openPage(t *testing.T, ts *httptest.Server) (string, string) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / = %d: %s", resp.StatusCode, body)
	}
	m := sessionAttr.FindSubmatch(body)
	if m == nil {
		t.Fatalf("no session id in page: %s", body)
	}
	return string(m[1]), string(body)
}

func dial(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + id
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(msg, v); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
}

type wirePatch struct {
	Op    string `json:"op"`
	Path  []int  `json:"path"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

type wireFrame struct {
	Type    string      `json:"type"`
	Seq     uint64      `json:"seq"`
	Patches []wirePatch `json:"patches"`
	Code    string      `json:"code"`
}

func TestPageAndEvents(t *testing.T) {
	srv, ts := newTestServer(t)
	id, body := openPage(t, ts)

	if !strings.Contains(body, `<span data-tapas-id="2">0</span>`) {
		t.Errorf("page should be bootstrapped: %s", body)
	}
	if !strings.Contains(body, `<script src="/tapas.js" data-session="`+id+`" defer="">`) {
		t.Errorf("page should load the client: %s", body)
	}
	if srv.Sessions().Count() != 1 {
		t.Fatalf("sessions = %d", srv.Sessions().Count())
	}

	conn := dial(t, ts, id)
	// html > body > button
	click := ClientFrame{Type: FrameEvent, Path: []int{0, 1, 0}, Event: "click"}
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(click); err != nil {
			t.Fatal(err)
		}
		var f wireFrame
		readFrame(t, conn, &f)
		want := wireFrame{
			Type:    FramePatches,
			Seq:     uint64(i + 1),
			Patches: []wirePatch{{Op: "SetText", Path: []int{0, 1, 1}, Value: []string{"1", "2"}[i]}},
		}
		if diff := cmp.Diff(want, f); diff != "" {
			t.Errorf("frame %d (-want +got):\n%s", i, diff)
		}
	}

	if err := conn.WriteJSON(ClientFrame{Type: FrameEvent, Path: []int{9, 9}, Event: "click"}); err != nil {
		t.Fatal(err)
	}
	var f wireFrame
	readFrame(t, conn, &f)
	if f.Type != FrameError || f.Code != "E034" {
		t.Errorf("bad path frame = %+v", f)
	}

	if err := conn.WriteJSON(ClientFrame{Type: FramePing}); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn, &f)
	if f.Type != FramePong {
		t.Errorf("ping answer = %+v", f)
	}
}

func TestUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/ws?session=nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	openPage(t, ts)

	tests := []struct {
		path     string
		contains string
	}{
		{"/healthz", "ok"},
		{"/tapas.js", "data-tapas-id"},
		{"/metrics", "tapas_sessions_created_total 1"},
	}
	for _, tt := range tests {
		resp, err := ts.Client().Get(ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), tt.contains) {
			t.Errorf("GET %s = %d, missing %q", tt.path, resp.StatusCode, tt.contains)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/tapas.js", nil)
	req.Header.Set("If-None-Match", clientETag)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional GET = %d, want 304", resp.StatusCode)
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	srv, ts := newTestServer(t)
	id, _ := openPage(t, ts)

	m := srv.Sessions()
	if n := m.cleanupExpired(time.Now()); n != 0 {
		t.Fatalf("fresh session expired")
	}
	if n := m.cleanupExpired(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if m.Get(id) != nil || m.Count() != 0 {
		t.Error("expired session still registered")
	}
}

func TestConnectedSessionsDoNotExpire(t *testing.T) {
	srv, ts := newTestServer(t)
	id, _ := openPage(t, ts)
	dial(t, ts, id)

	sess := srv.Sessions().Get(id)
	deadline := time.Now().Add(5 * time.Second)
	for !sess.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.Sessions().cleanupExpired(time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("connected session expired")
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`"x"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q) = %v", tt.header, got)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	c := &Config{AllowedOrigins: []string{"https://app.example"}}
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://host.test", true},
		{"https://app.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://host.test/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := c.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v", tt.origin, got)
		}
	}
}

func TestReloadBroadcast(t *testing.T) {
	srv, ts := newTestServer(t)
	id, _ := openPage(t, ts)
	openPage(t, ts) // never connects

	conn := dial(t, ts, id)
	if err := conn.WriteJSON(ClientFrame{Type: FramePing}); err != nil {
		t.Fatal(err)
	}
	var f struct {
		Type    string `json:"type"`
		File    string `json:"file"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	readFrame(t, conn, &f)

	if n := srv.Reload("static/site.css"); n != 1 {
		t.Errorf("Reload reached %d sessions, want 1", n)
	}
	readFrame(t, conn, &f)
	if f.Type != FrameReload || f.File != "static/site.css" {
		t.Errorf("reload frame = %+v", f)
	}

	srv.ReportError(errors.New("E042").WithDetail("field colour").WithLocation("bindings.yaml", 4, 3))
	readFrame(t, conn, &f)
	if f.Type != FrameError || f.Code != "E042" {
		t.Errorf("error frame = %+v", f)
	}
	if want := "bindings.yaml:4:3: E042: Unknown binding key: field colour"; f.Message != want {
		t.Errorf("error message = %q, want %q", f.Message, want)
	}
}
