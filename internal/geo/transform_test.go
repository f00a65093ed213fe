package geo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

func TestProj4ForEPSG(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{4326, "+proj=longlat +datum=WGS84 +no_defs"},
		{26917, "+proj=utm +zone=17 +datum=NAD83 +units=m +no_defs"},
		{32616, "+proj=utm +zone=16 +datum=WGS84 +units=m +no_defs"},
		{6346, "+proj=utm +zone=17 +datum=NAD83 +units=m +no_defs"},
	}
	for _, tt := range tests {
		got, err := proj4ForEPSG(tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := proj4ForEPSG(102003)
	assert.ErrorIs(t, err, usgserr.ErrCRSTransform)
}

func TestTransformBoundsIdentity(t *testing.T) {
	b := Bounds{MinX: -84, MinY: 39, MaxX: -83, MaxY: 40}
	got, err := TransformBounds(b, "EPSG:4326", "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestTransformBoundsToUTM(t *testing.T) {
	// The central meridian of UTM zone 17 is -81 degrees, which by
	// definition lands at easting 500000. The equator lands at
	// northing 0 in the northern hemisphere.
	b := Bounds{MinX: -81, MinY: 0, MaxX: -81, MaxY: 0.001}
	got, err := TransformBounds(b, "EPSG:4326", "EPSG:26917")
	require.NoError(t, err)
	assert.InDelta(t, 500000, got.MinX, 1)
	assert.InDelta(t, 0, got.MinY, 1)
	assert.Greater(t, got.MaxY, got.MinY)
}

func TestTransformBoundsRoundTrip(t *testing.T) {
	b := Bounds{MinX: -84.2, MinY: 39.1, MaxX: -83.8, MaxY: 39.6}
	utm, err := TransformBounds(b, "EPSG:4326", "EPSG:26917")
	require.NoError(t, err)
	back, err := TransformBounds(utm, "EPSG:26917", "EPSG:4326")
	require.NoError(t, err)
	assert.InDelta(t, b.MinX, back.MinX, 1e-6)
	assert.InDelta(t, b.MinY, back.MinY, 1e-6)
	assert.InDelta(t, b.MaxX, back.MaxX, 1e-6)
	assert.InDelta(t, b.MaxY, back.MaxY, 1e-6)
}

func TestTransformBoundsUnsupported(t *testing.T) {
	b := Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	_, err := TransformBounds(b, "EPSG:4326", "ESRI:102003")
	assert.True(t, errors.Is(err, usgserr.ErrCRSTransform))
}
