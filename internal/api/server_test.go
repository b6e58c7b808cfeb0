package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/admission"
	"github.com/oakmere/conductor-core/internal/device"
	"github.com/oakmere/conductor-core/internal/execution"
	"github.com/oakmere/conductor-core/internal/infrastructure/config"
	"github.com/oakmere/conductor-core/internal/infrastructure/logging"
	"github.com/oakmere/conductor-core/internal/run"
)

// stubDriver completes immediately unless release is set, in which case
// Execute signals started, waits for release, then emits and returns.
type stubDriver struct {
	caps    []string
	emits   []map[string]any
	result  map[string]any
	err     error
	release chan struct{}
	started chan string
}

func (d *stubDriver) Capabilities() []string { return d.caps }

func (d *stubDriver) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	if d.started != nil {
		d.started <- goal.RequestID
	}
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, device.ErrCanceled
		}
	}
	for _, p := range d.emits {
		emit(p)
	}
	return d.result, d.err
}

// runNotify captures finished runs for assertions.
type runNotify struct {
	finished chan run.Run
}

func (n *runNotify) RunFinished(r run.Run) {
	select {
	case n.finished <- r:
	default:
	}
}

// testServer builds a Server backed by a real execution manager and a
// stub pump driver.
func testServer(t *testing.T, driver device.Driver) (*Server, *execution.Manager, *runNotify) {
	t.Helper()

	actions := action.NewRegistry()
	if err := actions.Register(action.Kind{
		Name: "pump.transfer",
		Params: []action.Param{
			{Name: "volume", Type: action.TypeFloat, Required: true},
			{Name: "rate", Type: action.TypeFloat, Default: 1.0},
		},
	}); err != nil {
		t.Fatalf("register kind: %v", err)
	}

	devices := device.NewRegistry()
	if err := devices.Register("pump-01", "Pump", driver); err != nil {
		t.Fatalf("register device: %v", err)
	}

	manager, err := execution.NewManager(execution.Options{
		Actions:   actions,
		Devices:   devices,
		Admission: admission.NewController(devices, 8, nil),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(manager.Close)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	notify := &runNotify{finished: make(chan run.Run, 1)}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:       log,
		Manager:      manager,
		Orchestrator: run.NewOrchestrator(manager, nil, nil),
		Devices:      devices,
		Actions:      actions,
		Notifier:     notify,
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, manager, notify
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp healthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Service != "conductor" || resp.Version != "test" {
		t.Errorf("unexpected health body: %+v", resp)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestRequestIDPreservesClient(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestSubmitActionAccepted(t *testing.T) {
	srv, manager, _ := testServer(t, &stubDriver{
		caps:   []string{"pump.transfer"},
		result: map[string]any{"dispensed": 10.0},
	})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{"volume": 10.0},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp submitActionResponse
	decodeBody(t, rec, &resp)
	if !strings.HasPrefix(resp.RequestID, "act-") {
		t.Fatalf("request_id = %q, want act- prefix", resp.RequestID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := manager.Await(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if final.State != execution.StateSucceeded {
		t.Errorf("state = %q, want succeeded", final.State)
	}
}

func TestSubmitActionUnknownKind(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.explode",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var e Error
	decodeBody(t, rec, &e)
	if e.Code != ErrCodeUnknownActionKind {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeUnknownActionKind)
	}
}

func TestSubmitActionMissingParameter(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var e Error
	decodeBody(t, rec, &e)
	if e.Code != ErrCodeInvalidParameters {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeInvalidParameters)
	}
}

func TestSubmitActionUnknownDevice(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-99",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{"volume": 1.0},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitActionInvalidJSON(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetActionNotFound(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/actions/act-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var e Error
	decodeBody(t, rec, &e)
	if e.Code != ErrCodeUnknownRequest {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeUnknownRequest)
	}
}

func TestCancelAction(t *testing.T) {
	driver := &stubDriver{
		caps:    []string{"pump.transfer"},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	srv, manager, _ := testServer(t, driver)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{"volume": 10.0},
	})
	var resp submitActionResponse
	decodeBody(t, rec, &resp)
	<-driver.started

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/actions/"+resp.RequestID+"/cancel", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := manager.Await(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if final.State != execution.StateCanceled {
		t.Errorf("state = %q, want canceled", final.State)
	}
}

func TestActionResultNotTerminal(t *testing.T) {
	driver := &stubDriver{
		caps:    []string{"pump.transfer"},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	srv, _, _ := testServer(t, driver)
	defer close(driver.release)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{"volume": 10.0},
	})
	var resp submitActionResponse
	decodeBody(t, rec, &resp)
	<-driver.started

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/actions/"+resp.RequestID+"/result", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	var e Error
	decodeBody(t, rec, &e)
	if e.Code != ErrCodeNotTerminal {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotTerminal)
	}
}

func TestListKinds(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/actions/kinds", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var kinds []action.Kind
	decodeBody(t, rec, &kinds)
	if len(kinds) != 1 || kinds[0].Name != "pump.transfer" {
		t.Errorf("kinds = %+v", kinds)
	}
}

func TestListDevices(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var devices []deviceSummary
	decodeBody(t, rec, &devices)
	if len(devices) != 1 {
		t.Fatalf("devices = %+v", devices)
	}
	d := devices[0]
	if d.ID != "pump-01" || !d.Available || len(d.Capabilities) != 1 || d.Capabilities[0] != "pump.transfer" {
		t.Errorf("device = %+v", d)
	}
}

func TestSetAvailability(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodPut, "/api/v1/devices/pump-01/availability",
		setAvailabilityRequest{Available: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{"volume": 1.0},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("submit status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	var e Error
	decodeBody(t, rec, &e)
	if e.Code != ErrCodeDeviceUnavailable {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeDeviceUnavailable)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/devices/pump-01/availability",
		setAvailabilityRequest{Available: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitRunAccepted(t *testing.T) {
	srv, _, notify := testServer(t, &stubDriver{
		caps:   []string{"pump.transfer"},
		result: map[string]any{"dispensed": 5.0},
	})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", submitRunRequest{
		Policy: run.PolicyAbortOnFirstFailure,
		Steps: []runStepRequest{
			{DeviceID: "pump-01", ActionKind: "pump.transfer", Parameters: map[string]any{"volume": 5.0}},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp submitRunResponse
	decodeBody(t, rec, &resp)
	if !strings.HasPrefix(resp.RunID, "run-") {
		t.Fatalf("run_id = %q, want run- prefix", resp.RunID)
	}

	select {
	case final := <-notify.finished:
		if final.Status != run.StatusSucceeded {
			t.Errorf("status = %q, want succeeded", final.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitRunUnknownPolicy(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", submitRunRequest{
		Policy: "best_effort",
		Steps: []runStepRequest{
			{DeviceID: "pump-01", ActionKind: "pump.transfer"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWebSocketFeedbackStream(t *testing.T) {
	driver := &stubDriver{
		caps: []string{"pump.transfer"},
		emits: []map[string]any{
			{"dispensed": 2.5},
			{"dispensed": 5.0},
		},
		result:  map[string]any{"dispensed": 5.0},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	srv, _, _ := testServer(t, driver)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/actions", submitActionRequest{
		DeviceID:   "pump-01",
		ActionKind: "pump.transfer",
		Parameters: map[string]any{"volume": 5.0},
	})
	var resp submitActionResponse
	decodeBody(t, rec, &resp)
	<-driver.started

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/actions/" + resp.RequestID + "/feedback"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Let the driver emit now that the stream is attached.
	close(driver.release)

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var sawFeedback bool
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case WSTypeFeedback:
			sawFeedback = true
		case WSTypeState:
			payload, ok := msg.Payload.(map[string]any)
			if !ok {
				t.Fatalf("state payload = %T", msg.Payload)
			}
			if payload["state"] != string(execution.StateSucceeded) {
				t.Errorf("terminal state = %v, want succeeded", payload["state"])
			}
		default:
			t.Errorf("unexpected message type %q", msg.Type)
		}
		if msg.Type == WSTypeState {
			// Close frame follows; drain it.
			if _, _, err := conn.ReadMessage(); err == nil {
				t.Error("expected close after state message")
			}
			break
		}
	}
	if !sawFeedback {
		t.Error("no feedback messages received")
	}
}

func TestWebSocketFeedbackUnknownRequest(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/actions/act-missing/feedback"
	//nolint:bodyclose // Error path; resp body closed by dialer
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %v, want 404", resp)
	}
}

func TestServerStartAndClose(t *testing.T) {
	srv, _, _ := testServer(t, &stubDriver{caps: []string{"pump.transfer"}})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
