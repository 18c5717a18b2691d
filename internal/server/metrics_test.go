package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/lifeassist/internal/instrumentation"
)

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name     string
		config   MetricsServerConfig
		wantAddr string
		wantErr  string
	}{
		{
			name:     "explicit addr",
			config:   MetricsServerConfig{Addr: ":9091", Enabled: true, InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus)},
			wantAddr: ":9091",
		},
		{
			name:     "default addr",
			config:   MetricsServerConfig{Enabled: true, InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus)},
			wantAddr: DefaultMetricsAddr,
		},
		{
			name:    "nil provider",
			config:  MetricsServerConfig{Addr: ":9090", Enabled: true},
			wantErr: "instrumentation provider is required",
		},
		{
			name:    "disabled provider",
			config:  MetricsServerConfig{Addr: ":9090", Enabled: true, InstrumentationProvider: createDisabledProvider(t)},
			wantErr: "instrumentation provider is not enabled",
		},
		{
			name:    "push exporter",
			config:  MetricsServerConfig{Addr: ":9090", Enabled: true, InstrumentationProvider: createTestProvider(t, instrumentation.ExporterStdout)},
			wantErr: "prometheus exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(tt.config)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, srv.Addr())
			assert.Empty(t, srv.BoundAddr())
		})
	}
}

func TestMetricsServer_ServesScrapes(t *testing.T) {
	provider := createTestProvider(t, instrumentation.ExporterPrometheus)
	provider.Metrics().RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultSuccess)

	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	require.NoError(t, err)

	ready := make(chan struct{})
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.StartWithReadySignal(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ready:
	case err := <-serveErr:
		t.Fatalf("metrics server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not become ready")
	}
	base := "http://" + srv.BoundAddr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "oauth_token_refresh_total")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-serveErr)
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    ":9090",
		Enabled:                 true,
		InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func createTestProvider(t *testing.T, exporter string) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "lifeassist-test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: exporter,
		TracingExporter: instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })
	return provider
}

func createDisabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName: "lifeassist-test",
	})
	require.NoError(t, err)
	return provider
}
