package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/afeedhshaji/mobai-relay/pkg/llm"
)

// fakeResponder returns err when set, otherwise echoes through the offline
// responder and remembers the last message.
type fakeResponder struct {
	err  error
	last string
}

func (f *fakeResponder) Reply(ctx context.Context, message string) (string, error) {
	f.last = message
	if f.err != nil {
		return "", f.err
	}
	return llm.NewOffline().Reply(ctx, message)
}

func mustNewTestHandlers(t *testing.T, r llm.Responder, token string) http.Handler {
	t.Helper()
	return NewHandlers(r, token).Routes()
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func Test_HandlePing(t *testing.T) {
	h := mustNewTestHandlers(t, llm.NewOffline(), "")

	w := do(h, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp PingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func Test_HandleAssist_Echo(t *testing.T) {
	h := mustNewTestHandlers(t, llm.NewOffline(), "")

	for _, tc := range []struct{ path, body string }{
		{"/assist", `{"message": "hello"}`},
		{"/chat", `{"prompt": "hello"}`},
	} {
		w := do(h, http.MethodPost, tc.path, tc.body, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", tc.path, w.Code)
		}
		var resp AssistResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("%s: failed to decode response: %v", tc.path, err)
		}
		if resp.Reply != "(mock) I understood: hello" {
			t.Errorf("%s: unexpected reply %q", tc.path, resp.Reply)
		}
	}
}

func Test_HandleAssist_Validation(t *testing.T) {
	h := mustNewTestHandlers(t, llm.NewOffline(), "")

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "empty body", body: "", wantError: "no message provided"},
		{name: "empty object", body: `{}`, wantError: "no message provided"},
		{name: "blank message", body: `{"message": "   "}`, wantError: "no message provided"},
		{name: "malformed", body: `{"message":`, wantError: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/assist", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if resp.Error != tt.wantError {
				t.Errorf("expected error '%s', got '%s'", tt.wantError, resp.Error)
			}
		})
	}
}

func Test_HandleAssist_InvalidMethod(t *testing.T) {
	h := mustNewTestHandlers(t, llm.NewOffline(), "")

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			w := do(h, method, "/assist", "", nil)
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected status 405, got %d", w.Code)
			}
		})
	}
}

func Test_HandleAssist_Token(t *testing.T) {
	h := mustNewTestHandlers(t, llm.NewOffline(), "dev-token")

	w := do(h, http.MethodPost, "/assist", `{"message":"hi"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", w.Code)
	}
	w = do(h, http.MethodPost, "/assist", `{"message":"hi"}`, map[string]string{TokenHeader: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 with wrong token, got %d", w.Code)
	}
	w = do(h, http.MethodPost, "/assist", `{"message":"hi"}`, map[string]string{TokenHeader: "dev-token"})
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 with token, got %d", w.Code)
	}
	w = do(h, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("ping must stay public, got %d", w.Code)
	}
}

func Test_HandleAssist_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"busy", llm.ErrServerBusy, http.StatusServiceUnavailable, "SERVER_BUSY"},
		{"transient", &llm.UpstreamError{Provider: "openai", Kind: llm.KindTransient, Attempts: 4, Err: errors.New("503")}, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"fatal", &llm.UpstreamError{Provider: "openai", Kind: llm.KindFatal, Attempts: 1, Err: errors.New("401")}, http.StatusBadGateway, "UPSTREAM_REJECTED"},
		{"configuration", &llm.ConfigurationError{Provider: "openai", Reason: "API key not set"}, http.StatusInternalServerError, "MISCONFIGURED"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustNewTestHandlers(t, &fakeResponder{err: tt.err}, "")
			w := do(h, http.MethodPost, "/assist", `{"message":"hi"}`, nil)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Code)
			}
			if tt.wantCode == "SERVER_BUSY" && w.Header().Get("Retry-After") == "" {
				t.Error("busy response should carry Retry-After")
			}
		})
	}
}

func Test_HandleAssist_ClientGone(t *testing.T) {
	h := mustNewTestHandlers(t, &fakeResponder{err: context.Canceled}, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/assist", bytes.NewReader([]byte(`{"message":"hi"}`))).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != statusClientClosed {
		t.Errorf("expected status %d, got %d", statusClientClosed, w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
}

func Test_CORS(t *testing.T) {
	h := mustNewTestHandlers(t, llm.NewOffline(), "dev-token")

	w := do(h, http.MethodOptions, "/assist", "", map[string]string{"Origin": "http://localhost"})
	if w.Code != http.StatusNoContent {
		t.Errorf("expected preflight status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func Test_Server_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(ln.Addr().String(), llm.NewOffline(), "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/assist", "application/json", bytes.NewReader([]byte(`{"message":"over the wire"}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var body AssistResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body.Reply != "(mock) I understood: over the wire" {
		t.Errorf("unexpected reply %q", body.Reply)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
