package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileNearestRank(t *testing.T) {
	samples := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		name string
		p    float64
		want int64
	}{
		{"p50 of ten samples", 0.50, 50},
		{"p95 of ten samples", 0.95, 100},
		{"p99 of ten samples", 0.99, 100},
		{"p0 clamps to first", 0.0, 10},
		{"p100 clamps to last", 1.0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(samples, tt.p))
		})
	}
}

func TestPercentileSingleSample(t *testing.T) {
	samples := []int64{42}
	assert.Equal(t, int64(42), Percentile(samples, 0.50))
	assert.Equal(t, int64(42), Percentile(samples, 0.99))
}

func TestPercentileEmpty(t *testing.T) {
	assert.Equal(t, int64(0), Percentile(nil, 0.95))
}

func TestComputeStats(t *testing.T) {
	stats := computeStats(10, 2, 4, []int64{30, 10, 20})

	assert.Equal(t, int64(10), stats.RequestCount)
	assert.Equal(t, int64(2), stats.ErrorCount)
	assert.Equal(t, int64(20), stats.P50)
	assert.Equal(t, int64(30), stats.P95)
	assert.InDelta(t, 0.4, stats.CacheHitRate, 1e-9)
}

func TestComputeStatsNoRequests(t *testing.T) {
	stats := computeStats(0, 0, 0, nil)
	assert.Zero(t, stats.CacheHitRate)
	assert.Zero(t, stats.P50)
}
