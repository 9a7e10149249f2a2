package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/registry"
	"github.com/edirooss/procexecd/internal/supervisor"
	"github.com/edirooss/procexecd/pkg/procexec"
)

func newTestRouter(t *testing.T) (*gin.Engine, *supervisor.Supervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	store, err := outputstore.New(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	sup := supervisor.New(zap.NewNop(), reg, store, -1)
	t.Cleanup(func() { _ = sup.Shutdown() })

	h := &handlers{sup: sup, store: store}
	r := gin.New()
	api := r.Group("/api/processes")
	{
		api.GET("", h.listProcesses)
		api.GET("/:pid", h.getProcess)
		api.GET("/:pid/output", h.getOutput)
		api.POST("/:pid/stop", h.stopProcess)
		api.POST("/:pid/clean", h.cleanProcess)
	}
	return r, sup
}

func decodeEnvelope(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestListProcessesEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, true, env["success"])
}

func TestListProcessesInvalidStatus(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes?status=bogus", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, false, env["success"])
}

func TestGetProcessNotFoundReturns404(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes/ghost1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, false, env["success"])
}

func TestGetProcessFound(t *testing.T) {
	r, sup := newTestRouter(t)
	rec, err := sup.StartProcess(procexec.SpawnSpec{Command: "echo", Argv: []string{"echo", "hi"}, Directory: t.TempDir()})
	require.NoError(t, err)
	_, ok := sup.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes/"+rec.PID, nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, true, env["success"])
}

func TestGetOutputRejectsInvalidTail(t *testing.T) {
	r, sup := newTestRouter(t)
	rec, err := sup.StartProcess(procexec.SpawnSpec{Command: "echo", Argv: []string{"echo", "hi"}, Directory: t.TempDir()})
	require.NoError(t, err)
	_, ok := sup.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes/"+rec.PID+"/output?tail=notanumber", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOutputDefaultsToStdoutOnly(t *testing.T) {
	r, sup := newTestRouter(t)
	rec, err := sup.StartProcess(procexec.SpawnSpec{Command: "echo", Argv: []string{"echo", "hi"}, Directory: t.TempDir()})
	require.NoError(t, err)
	_, ok := sup.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/processes/"+rec.PID+"/output", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	data := env["data"].(map[string]any)
	_, hasStdout := data["stdout"]
	_, hasStderr := data["stderr"]
	assert.True(t, hasStdout)
	assert.False(t, hasStderr)
}

func TestStopProcessRejectsMalformedBody(t *testing.T) {
	r, sup := newTestRouter(t)
	rec, err := sup.StartProcess(procexec.SpawnSpec{Command: "sleep", Argv: []string{"sleep", "30"}, Directory: t.TempDir()})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/processes/"+rec.PID+"/stop", nil)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	// no body with a JSON content-type fails ShouldBindJSON
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanProcessAlwaysReturns200(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/processes/ghost1/clean", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	data := env["data"].(map[string]any)
	assert.Equal(t, string(procexec.CleanOutcomeNotFound), data["result"])
}
