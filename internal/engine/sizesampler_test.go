package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeSampler_Percentile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		sizes []int64
		p     int
		want  int64
	}{
		{"no samples", nil, 90, 0},
		{"single sample", []int64{4096}, 90, 4096},
		{"p0 is minimum", []int64{30, 10, 20}, 0, 10},
		{"p100 is maximum", []int64{30, 10, 20}, 100, 30},
		{"p50 of five values", []int64{1, 2, 3, 4, 5}, 50, 3},
		{"p90 of ten values", []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 90, 10},
		{"unsorted input is sorted first", []int64{5, 1, 4, 2, 3}, 50, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSizeSampler()
			for _, sz := range tt.sizes {
				s.Observe(sz)
			}
			assert.Equal(t, tt.want, s.Percentile(tt.p))
		})
	}
}

func TestSizeSampler_ChunkSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		sizes []int64
		want  int64
	}{
		{"no samples defaults to 128KiB", nil, 128 * 1024},
		{"p90 at 32KiB band", []int64{16 * 1024, 32 * 1024}, 64 * 1024},
		{"p90 at 128KiB band", []int64{64 * 1024, 128 * 1024}, 128 * 1024},
		{"p90 at 512KiB band", []int64{256 * 1024, 512 * 1024}, 256 * 1024},
		{"p90 at 2MiB band", []int64{1024 * 1024, 2 * 1024 * 1024}, 512 * 1024},
		{"p90 above 2MiB band", []int64{4 * 1024 * 1024, 8 * 1024 * 1024}, 1024 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSizeSampler()
			for _, sz := range tt.sizes {
				s.Observe(sz)
			}
			assert.Equal(t, tt.want, s.ChunkSize())
		})
	}
}

func TestSizeSampler_Observe_SamplingBoundary(t *testing.T) {
	t.Parallel()

	s := NewSizeSampler()
	for i := int64(1); i <= fullKeepCount; i++ {
		s.Observe(i)
	}
	assert.Equal(t, int64(fullKeepCount), s.Count())
	assert.Len(t, s.samples, fullKeepCount, "first fullKeepCount files are all kept")

	for i := int64(fullKeepCount + 1); i <= 300; i++ {
		s.Observe(i)
	}
	assert.Equal(t, int64(300), s.Count())
	assert.Less(t, len(s.samples), 300, "sampling kicks in past fullKeepCount")
	assert.LessOrEqual(t, len(s.samples), maxSamples, "retained set never exceeds maxSamples")
}

func TestIsPowerOfTwo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want bool
	}{
		{0, false},
		{-8, false},
		{1, true},
		{2, true},
		{3, false},
		{64 * 1024, true},
		{100 * 1024, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPowerOfTwo(tt.n), "IsPowerOfTwo(%d)", tt.n)
	}
}
