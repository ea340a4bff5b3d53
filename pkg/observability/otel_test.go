package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takumi-1234/postsearch/internal/config"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("サービス名が空", func(t *testing.T) {
		_, err := Setup(ctx, config.ObservabilityConfig{})
		assert.Error(t, err)
	})

	t.Run("メトリクスを Prometheus 形式で公開する", func(t *testing.T) {
		p, err := Setup(ctx, config.ObservabilityConfig{ServiceName: "post-search-test"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Shutdown(ctx) })

		counter, err := p.Meter().Int64Counter("posts_searched")
		require.NoError(t, err)
		counter.Add(ctx, 2)

		rec := httptest.NewRecorder()
		p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "posts_searched")
	})

	t.Run("nil Provider", func(t *testing.T) {
		var p *Provider
		rec := httptest.NewRecorder()
		p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NoError(t, p.Shutdown(ctx))
		assert.NotNil(t, p.Meter())
	})
}

func TestTraceOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ObservabilityConfig
		wantOpts int
		wantErr  bool
	}{
		{name: "host:port", cfg: config.ObservabilityConfig{TracingEndpoint: "collector:4318"}, wantOpts: 1},
		{name: "insecure 指定", cfg: config.ObservabilityConfig{TracingEndpoint: "collector:4318", TracingInsecure: true}, wantOpts: 2},
		{name: "http スキームとパス", cfg: config.ObservabilityConfig{TracingEndpoint: "http://collector:4318/custom/v1/traces"}, wantOpts: 3},
		{name: "https スキーム", cfg: config.ObservabilityConfig{TracingEndpoint: "https://collector:4318"}, wantOpts: 1},
		{name: "不正な URL", cfg: config.ObservabilityConfig{TracingEndpoint: "http://[::1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := traceOptions(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, opts, tt.wantOpts)
		})
	}
}
