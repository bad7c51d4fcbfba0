package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
	"phobos.org.uk/groqbridge/internal/testutil"
)

func newTestServer(t *testing.T, b *Bridge) *httpexpect.Expect {
	t.Helper()
	srv := httptest.NewServer(b.Router())
	t.Cleanup(srv.Close)
	return httpexpect.Default(t, srv.URL)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, testutil.MockGroqScript())
	e := newTestServer(t, b)

	obj := e.GET("/status").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	obj.HasValue("type", "groqbridge").
		HasValue("version", "test").
		HasValue("state", "idle").
		ContainsKey("uptime_seconds")
	obj.Value("current_invocation").IsNull()
	obj.Value("config").Object().
		HasValue("model", "mixtral-8x7b-32768").
		HasValue("python_path", testutil.Shell)
}

func TestModelsEndpoint(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, testutil.MockGroqScript())
	b.config.Model = "llama"
	e := newTestServer(t, b)

	models := e.GET("/models").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("models").Array()

	models.Length().IsEqual(3)
	models.Value(0).Object().
		HasValue("name", "mixtral").
		HasValue("id", "mixtral-8x7b-32768").
		HasValue("default", false)
	models.Value(1).Object().
		HasValue("id", "llama3-8b-8192").
		HasValue("default", true)
	models.Value(2).Object().
		HasValue("id", "gemma2-9b-it")
}

func TestInvokeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			body:       `{"prompt":"why is the sky blue","model":"gemma"}`,
			wantStatus: http.StatusOK,
			wantBody:   `answer: why is the sky blue`,
		},
		{
			name:       "script failure is still a response",
			body:       `{"prompt":"fail"}`,
			wantStatus: http.StatusOK,
			wantBody:   `"exit_code":2`,
		},
		{
			name:       "empty prompt",
			body:       `{}`,
			wantStatus: http.StatusOK,
			wantBody:   `"status":"succeeded"`,
		},
		{
			name:       "invalid json",
			body:       `{invalid`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Invalid JSON",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, _ := newTestBridge(t, testutil.MockGroqScript())

			req := httptest.NewRequest("POST", "/invoke", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			b.Router().ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			require.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestInvokeEndpointMissingScript(t *testing.T) {
	t.Parallel()

	b, dir := newTestBridge(t, testutil.MockGroqScript())
	b.config.ScriptPath = filepath.Join(dir, "nope.py")
	e := newTestServer(t, b)

	e.POST("/invoke").
		WithJSON(map[string]any{"prompt": "hi"}).
		Expect().
		Status(http.StatusUnprocessableEntity).
		JSON().Object().
		HasValue("error", "path_not_found").
		Value("message").String().Contains("script not found")
}

func TestBusyAndShutdownGuard(t *testing.T) {
	t.Parallel()

	b, dir := newTestBridge(t, gatedScript)
	e := newTestServer(t, b)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Invoke(context.Background(), "a long prompt that goes on well past the fifty character preview", "")
	}()

	testutil.Eventually(t, 5*time.Second, func() bool { return b.State() == StateWorking })

	current := e.GET("/status").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("state", "working").
		Value("current_invocation").Object()
	current.Value("prompt_preview").String().HasSuffix("...")
	current.HasValue("model_id", "mixtral-8x7b-32768")

	e.POST("/invoke").
		WithJSON(map[string]any{"prompt": "second"}).
		Expect().
		Status(http.StatusConflict).
		JSON().Object().
		HasValue("error", "busy")

	e.POST("/shutdown").
		Expect().
		Status(http.StatusConflict).
		JSON().Object().
		HasValue("error", "invocation_in_progress")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "release"), nil, 0644))
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("invocation did not finish")
	}

	e.GET("/status").Expect().JSON().Object().HasValue("state", "idle")
}

func TestLastInvocationEndpoint(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, testutil.MockGroqScript())
	e := newTestServer(t, b)

	e.GET("/invocations/last").
		Expect().
		Status(http.StatusNotFound).
		JSON().Object().
		HasValue("error", "not_found")

	id := e.POST("/invoke").
		WithJSON(map[string]any{"prompt": "hello"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("invocation_id").String().Raw()

	last := e.GET("/invocations/last").
		Expect().
		Status(http.StatusOK).
		JSON().Object()
	last.HasValue("invocation_id", id).
		HasValue("phase", "succeeded").
		HasValue("prompt_preview", "hello").
		NotContainsKey("prompt")
	last.Value("result").Object().HasValue("stdout_lines", 2)
}

func TestLogsEndpoint(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, testutil.MockGroqScript())
	e := newTestServer(t, b)

	id := e.POST("/invoke").
		WithJSON(map[string]any{"prompt": "fail"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("invocation_id").String().Raw()

	entries := e.GET("/logs").
		WithQuery("invocation_id", id).
		WithQuery("level", "error").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("entries").Array()

	// stderr line and the final failure
	entries.Length().IsEqual(2)
	entries.Value(0).Object().HasValue("message", "script stderr")
	entries.Value(1).Object().HasValue("message", "script failed")

	e.GET("/logs").
		WithQuery("limit", "0").
		Expect().
		Status(http.StatusBadRequest)

	e.GET("/logs").
		WithQuery("since", "last tuesday").
		Expect().
		Status(http.StatusBadRequest)

	e.GET("/logs/stats").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("error").Number().Gt(0)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	b, dir := newTestBridge(t, testutil.MockGroqScript())
	e := newTestServer(t, b)

	e.POST("/invoke").WithJSON(map[string]any{"prompt": "hi"}).Expect().Status(http.StatusOK)

	b.config.ScriptPath = filepath.Join(dir, "missing.py")
	e.POST("/invoke").WithJSON(map[string]any{"prompt": "hi"}).Expect().Status(http.StatusUnprocessableEntity)

	body := e.GET("/metrics").
		Expect().
		Status(http.StatusOK).
		Body()
	body.Contains(`groqbridge_invocations_total{kind="",model="mixtral-8x7b-32768",status="succeeded"} 1`)
	body.Contains(`groqbridge_rejected_total 1`)
	body.Contains(`groqbridge_in_flight 0`)
	body.Contains(`go_goroutines`)
}

func TestShutdownWhenIdle(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, testutil.MockGroqScript())
	e := newTestServer(t, b)

	e.POST("/shutdown").
		WithJSON(map[string]any{"timeout_seconds": 1}).
		Expect().
		Status(http.StatusAccepted).
		JSON().Object().
		HasValue("drain_timeout", 1)
}
