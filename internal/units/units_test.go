package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountToNative(t *testing.T) {
	tests := []struct {
		name    string
		display float64
		want    int64
		wantErr bool
	}{
		{name: "whole units", display: 100, want: 100_000_000},
		{name: "six decimals", display: 0.000001, want: 1},
		{name: "rounds half up", display: 0.0000015, want: 2},
		{name: "zero", display: 0, want: 0},
		{name: "typical coverage", display: 2500.75, want: 2_500_750_000},
		{name: "negative rejected", display: -1, wantErr: true},
		{name: "nan rejected", display: math.NaN(), wantErr: true},
		{name: "inf rejected", display: math.Inf(1), wantErr: true},
		{name: "overflow rejected", display: 1e19, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountToNative(tt.display)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, display := range []float64{0, 0.5, 1, 99.999999, 1000, 123456.789} {
		native, err := AmountToNative(display)
		require.NoError(t, err)
		assert.InDelta(t, display, AmountToDisplay(native), 1.0/AmountScale)
	}
}

func TestLevelToNative(t *testing.T) {
	tests := []struct {
		name    string
		metres  float64
		want    int64
		wantErr bool
	}{
		{name: "metres to centimetres", metres: 3.5, want: 350},
		{name: "sub-centimetre rounds", metres: 1.004, want: 100},
		{name: "zero", metres: 0, want: 0},
		{name: "flood stage", metres: 12.87, want: 1287},
		{name: "negative rejected", metres: -0.1, wantErr: true},
		{name: "nan rejected", metres: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LevelToNative(tt.metres)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelToDisplay(t *testing.T) {
	assert.Equal(t, 3.5, LevelToDisplay(350))
	assert.Equal(t, 0.0, LevelToDisplay(0))
}
