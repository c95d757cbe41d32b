package priority

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	t.Run("mean of three inputs", func(t *testing.T) {
		assert.InDelta(t, 0.5, Compute(0.2, 0.5, 0.8), 1e-9)
		assert.InDelta(t, 1.0, Compute(1, 1, 1), 1e-9)
		assert.InDelta(t, 0.0, Compute(0, 0, 0), 1e-9)
	})

	t.Run("inputs are clamped before averaging", func(t *testing.T) {
		assert.InDelta(t, 1.0, Compute(3, 2, 1), 1e-9)
		assert.InDelta(t, 0.0, Compute(-1, -5, 0), 1e-9)
		assert.InDelta(t, 1.0/3, Compute(math.NaN(), 1, math.Inf(-1)), 1e-9)
	})

	t.Run("means on a band floor land in that band", func(t *testing.T) {
		cases := []struct {
			dims [3]float64
			want float64
			band Band
		}{
			{[3]float64{0.9, 0.9, 0.6}, 0.8, BandCritical},
			{[3]float64{0.7, 0.7, 0.4}, 0.6, BandHigh},
			{[3]float64{0.1, 0.1, 0.4}, 0.2, BandLow},
			{[3]float64{0.3, 0.5, 0.4}, 0.4, BandModerate},
		}
		for _, tc := range cases {
			got := Compute(tc.dims[0], tc.dims[1], tc.dims[2])
			assert.Equal(t, tc.want, got, "%v", tc.dims)
			assert.Equal(t, tc.band, Classify(got), "%v", tc.dims)
		}
	})
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.1))
	assert.Equal(t, 1.0, Clamp(1.1))
	assert.Equal(t, 0.42, Clamp(0.42))
	assert.Equal(t, 0.0, Clamp(math.NaN()))
	assert.Equal(t, 1.0, Clamp(math.Inf(1)))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		score float64
		want  Band
	}{
		{1.0, BandCritical},
		{0.8, BandCritical},
		{0.7999, BandHigh},
		{0.6, BandHigh},
		{0.5999, BandModerate},
		{0.4, BandModerate},
		{0.3999, BandLow},
		{0.2, BandLow},
		{0.1999, BandMinimal},
		{0.0, BandMinimal},
		{-3, BandMinimal},
		{7, BandCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.score), "score %v", tc.score)
	}
}

func TestBandFloorAgreesWithClassify(t *testing.T) {
	for _, b := range Bands() {
		assert.Equal(t, b, Classify(b.Floor()), "floor of %s", b)
	}
	assert.Len(t, Bands(), 5)
}

func TestBandCeiling(t *testing.T) {
	assert.Equal(t, 0.8, BandHigh.Ceiling())
	assert.Equal(t, 0.2, BandMinimal.Ceiling())
	assert.Greater(t, BandCritical.Ceiling(), 1.0)
	for _, b := range Bands()[1:] {
		assert.NotEqual(t, b, Classify(b.Ceiling()), "ceiling of %s is exclusive", b)
	}
	assert.Zero(t, Band("Urgent").Ceiling())
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand(" high ")
	require.NoError(t, err)
	assert.Equal(t, BandHigh, b)
	assert.True(t, b.Valid())

	_, err = ParseBand("urgent")
	assert.Error(t, err)
	assert.False(t, Band("urgent").Valid())
}
