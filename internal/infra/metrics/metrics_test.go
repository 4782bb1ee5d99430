package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/api/leaderboard", "/api/leaderboard"},
		{"/api/staff/123456789/stats", "/api/staff/:id/stats"},
		{"/api/subjects/42/punishments", "/api/subjects/:id/punishments"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func TestSourceLabel(t *testing.T) {
	before := testutil.ToFloat64(PunishmentsTotal.WithLabelValues("warn", Source(true)))
	PunishmentsTotal.WithLabelValues("warn", Source(true)).Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(PunishmentsTotal.WithLabelValues("warn", "auto")))
	assert.Equal(t, "manual", Source(false))
}
