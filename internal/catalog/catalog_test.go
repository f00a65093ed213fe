package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

func TestDataset(t *testing.T) {
	name, format, err := Dataset("dem", "regular")
	require.NoError(t, err)
	assert.Equal(t, "Digital Elevation Model (DEM) 1 meter", name)
	assert.Equal(t, "GeoTIFF", format)

	name, format, err = Dataset("lidar", "regular")
	require.NoError(t, err)
	assert.Equal(t, "Lidar Point Cloud (LPC)", name)
	assert.Contains(t, format, "LAS")

	_, _, err = Dataset("bathymetry", "regular")
	assert.ErrorIs(t, err, usgserr.ErrMissingConfigKey)
}

func TestProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Digital Elevation Model (DEM) 1 meter", r.URL.Query().Get("datasets"))
		assert.Equal(t, "-82,39,-81,40", r.URL.Query().Get("bbox"))
		assert.Equal(t, "GeoTIFF", r.URL.Query().Get("prodFormats"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"total": 2,
			"items": [
				{
					"title": "USGS 1 Meter 17 x31y442 OH Columbus",
					"publicationDate": "2020-06-30",
					"prodFormats": "GeoTIFF",
					"downloadURL": "https://example.com/Projects/OH_Columbus_2019/TIFF/USGS_1M_17_x31y442.tif"
				},
				{
					"title": "USGS 1 Meter 17 x32y442 OH Columbus",
					"publicationDate": "2020-06-30",
					"prodFormats": "GeoTIFF",
					"downloadURL": "https://example.com/Projects/OH_Columbus_2019/TIFF/USGS_1M_17_x32y442.tif"
				}
			]
		}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	bbox := geo.Bounds{MinX: -82, MinY: 39, MaxX: -81, MaxY: 40}
	products, err := c.Products(context.Background(), bbox, "Digital Elevation Model (DEM) 1 meter", "GeoTIFF")
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.Equal(t, "USGS 1 Meter 17 x31y442 OH Columbus", products[0].Title)
	assert.Equal(t, "https://example.com/Projects/OH_Columbus_2019/TIFF/USGS_1M_17_x31y442.tif", products[0].URL)
	assert.Equal(t, "GeoTIFF", products[0].Format)
}

func TestProductsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 0, "items": []}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	products, err := c.Products(context.Background(), geo.Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, "x", "y")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestProductsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.Products(context.Background(), geo.Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, "x", "y")
	assert.ErrorIs(t, err, usgserr.ErrConnectionFailed)
}

func TestProductsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.Products(context.Background(), geo.Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, "x", "y")
	assert.ErrorIs(t, err, usgserr.ErrConnectionFailed)
}
