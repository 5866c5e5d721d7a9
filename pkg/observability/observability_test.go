package observability

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue 读取 Counter 的当前值
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("info", "json", &buf).Info("resolved", "backend", "local")
	assert.Contains(t, buf.String(), `"backend":"local"`)

	buf.Reset()
	NewLogger("info", "text", &buf).Info("resolved", "backend", "local")
	assert.Contains(t, buf.String(), "backend=local")

	buf.Reset()
	NewLogger("warn", "text", &buf).Info("hidden")
	assert.Empty(t, buf.String())
}

func TestMetricsForTesting(t *testing.T) {
	// 两次创建不会因为重复注册而 panic
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()

	m1.Resolutions.WithLabelValues("found").Inc()
	m1.CacheLookups.WithLabelValues("hit").Add(2)

	assert.Equal(t, float64(1), counterValue(t, m1.Resolutions.WithLabelValues("found")))
	assert.Equal(t, float64(2), counterValue(t, m1.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(0), counterValue(t, m2.Resolutions.WithLabelValues("found")))
}
