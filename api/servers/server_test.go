package servers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) RegisterRoutes(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("echo"))
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
}

func newTestServer(t *testing.T, pprof bool) (*Server, http.Handler) {
	t.Helper()
	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:  "127.0.0.1:0",
		EnablePprof: pprof,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, echoHandler{})
	require.NoError(t, err)
	return srv, srv.Router()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRoutes(t *testing.T) {
	_, h := newTestServer(t, false)

	rr := get(h, "/echo")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "echo", rr.Body.String())

	rr = get(h, "/livez")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, get(h, "/debug/pprof/").Code)
}

func TestDrainUndrain(t *testing.T) {
	_, h := newTestServer(t, false)

	assert.JSONEq(t, `{"status":"ready"}`, get(h, "/readyz").Body.String())

	assert.JSONEq(t, `{"status":"draining"}`, get(h, "/drain").Body.String())
	assert.JSONEq(t, `{"status":"already draining"}`, get(h, "/drain").Body.String())

	rr := get(h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"not ready"}`, rr.Body.String())

	assert.JSONEq(t, `{"status":"ready"}`, get(h, "/undrain").Body.String())
	assert.JSONEq(t, `{"status":"already ready"}`, get(h, "/undrain").Body.String())
	assert.Equal(t, http.StatusOK, get(h, "/readyz").Code)
}

func TestRecoversFromPanics(t *testing.T) {
	_, h := newTestServer(t, false)
	assert.Equal(t, http.StatusInternalServerError, get(h, "/panic").Code)
}

func TestPprof(t *testing.T) {
	_, h := newTestServer(t, true)
	assert.Equal(t, http.StatusOK, get(h, "/debug/pprof/").Code)
}
