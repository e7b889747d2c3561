package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/snapshot"
	"github.com/zsiec/ndikit/pkg/ndi"
)

type fakeRuntime struct {
	version string
	cpu     bool
	running bool
}

func (f fakeRuntime) Version() (string, error) {
	if f.version == "" {
		return "", ndi.ErrNullPointer
	}
	return f.version, nil
}
func (f fakeRuntime) IsSupportedCPU() bool { return f.cpu }
func (f fakeRuntime) IsRunning() bool      { return f.running }

type fakeSources struct {
	sources []ndi.Source
	last    time.Time
}

func (f *fakeSources) Sources() []ndi.Source   { return f.sources }
func (f *fakeSources) LastRefresh() time.Time  { return f.last }
func (f *fakeSources) Interval() time.Duration { return time.Minute }
func (f *fakeSources) Lookup(name string) (ndi.Source, bool) {
	for _, s := range f.sources {
		if s.Name == name {
			return s, true
		}
	}
	return ndi.Source{}, false
}

type captureCall struct {
	name    string
	format  ndi.ImageFormat
	quality int
}

type fakeSnapshots struct {
	img    *snapshot.Image
	status *snapshot.Status
	err    error
	calls  []captureCall
}

func (f *fakeSnapshots) Capture(_ context.Context, name string, format ndi.ImageFormat, quality int) (*snapshot.Image, error) {
	f.calls = append(f.calls, captureCall{name, format, quality})
	return f.img, f.err
}

func (f *fakeSnapshots) Status(_ context.Context, name string) (*snapshot.Status, error) {
	return f.status, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		HTTPPort:        0,
		HTTP3Port:       0,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestNew_RegistersCheckersForDeps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tests := []struct {
		name       string
		deps       Deps
		wantChecks []string
	}{
		{name: "no deps"},
		{
			name:       "runtime only",
			deps:       Deps{Runtime: fakeRuntime{running: true, cpu: true}},
			wantChecks: []string{"ndi_runtime"},
		},
		{
			name: "everything",
			deps: Deps{
				Runtime: fakeRuntime{running: true, cpu: true},
				Sources: &fakeSources{last: time.Now()},
				Redis:   client,
			},
			wantChecks: []string{"ndi_runtime", "ndi_discovery", "redis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testServerConfig(), testLogger(), tt.deps)
			results := s.HealthManager().RunChecks(context.Background())

			var names []string
			for name := range results {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tt.wantChecks, names)
		})
	}
}

func TestRegisterRoutes(t *testing.T) {
	s := New(testServerConfig(), testLogger(), Deps{})
	calls := 0
	s.RegisterRoutes(func(r *mux.Router) {
		calls++
		r.HandleFunc("/extra", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("extra"))
		}).Methods(http.MethodGet)
	})

	rr := serve(s, http.MethodGet, "/extra")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "extra", rr.Body.String())

	serve(s, http.MethodGet, "/extra")
	assert.Equal(t, 1, calls)
}

func TestStartAndShutdown(t *testing.T) {
	s := New(testServerConfig(), testLogger(), Deps{Runtime: fakeRuntime{version: "6.0", running: true, cpu: true}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/live", s.Addr().(*net.TCPAddr).Port))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bytes.Contains(body, []byte(`"alive"`)))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStart_HTTP3MissingCertificates(t *testing.T) {
	cfg := testServerConfig()
	cfg.EnableHTTP3 = true
	cfg.TLSCertFile = "/nonexistent/cert.pem"
	cfg.TLSKeyFile = "/nonexistent/key.pem"
	s := New(cfg, testLogger(), Deps{})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load TLS certificates")
}
