package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/sources"
	tu "github.com/desertthunder/dird/internal/testing"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pathHandler struct {
	routes []string
}

func (h pathHandler) Routes() []string { return h.routes }

func (h pathHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "handled "+r.URL.Path)
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func TestBasicRouter(t *testing.T) {
	t.Run("method filtering", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle("get", "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "pong")
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pong", rec.Body.String())

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		tag := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(tag("outer"), tag("inner"))
		r.Handler(pathHandler{routes: []string{"/a", "/b"}})

		for _, path := range []string{"/a", "/b"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, "handled "+path, rec.Body.String())
		}
		assert.Equal(t, []string{"outer", "inner", "outer", "inner"}, order)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewBasicRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Recover", func(t *testing.T) {
		var buf bytes.Buffer
		h := Recover(log.New(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, buf.String(), "handler panicked")
	})

	t.Run("Logging", func(t *testing.T) {
		var buf bytes.Buffer
		h := Logging(log.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = io.WriteString(w, "short and stout")
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))
		out := buf.String()
		assert.Contains(t, out, "path=/pot")
		assert.Contains(t, out, "status=418")
		assert.Contains(t, out, "bytes=15")
	})
}

func TestRoutes(t *testing.T) {
	snap := sources.Snapshot{
		Sources: []models.SourceConfig{
			{Name: "people", Backend: "csv"},
			{Name: "corp", Backend: "ldap"},
		},
		Profiles: []models.Profile{{Name: "default"}},
	}
	registry := tu.NewStaticRegistry(snap, tu.NewMockSource("people"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveGeneration(1, 1)

	router := NewRouter(registry, reg, quietLogger())

	t.Run("GET /status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var status Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.EqualValues(t, 1, status.Generation)
		assert.Equal(t, 1, status.Loaded)
		assert.Equal(t, []SourceStatus{
			{Name: "corp", Backend: "ldap", Loaded: false},
			{Name: "people", Backend: "csv", Loaded: true},
		}, status.Sources)
		assert.Equal(t, []string{"default"}, status.Profiles)
	})

	t.Run("GET /metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "dird_registry_generation 1")
	})

	t.Run("POST /status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	registry := tu.NewStaticRegistry(sources.Snapshot{})
	srv := New(ln.Addr().String(), NewRouter(registry, prometheus.NewRegistry(), quietLogger()), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/status")
		return err == nil
	}, time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), `{"generation":1`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("server did not stop")
	}
}
