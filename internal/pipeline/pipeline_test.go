package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ces0157/usgs-data-tool/internal/catalog"
	"github.com/ces0157/usgs-data-tool/internal/config"
	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/transfer"
)

// stubRasters is a minimal geo.RasterEngine whose operations write
// marker files.
type stubRasters struct{}

func (stubRasters) Info(path string) (*geo.RasterInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &geo.RasterInfo{Path: path, Width: 10, Height: 10, Authority: "EPSG:26917"}, nil
}

func (stubRasters) WarpMerge(dst string, srcs []string, targetAuthority, resampling string) error {
	return os.WriteFile(dst, []byte("raster"), 0o644)
}

func (stubRasters) Crop(dst, src string, win geo.Bounds, outWidth, outHeight int) error {
	return os.WriteFile(dst, []byte("raster"), 0o644)
}

func (stubRasters) Warp(dst, src, targetAuthority, resampling string) error {
	return os.WriteFile(dst, []byte("raster"), 0o644)
}

func (stubRasters) Convert(dst, src string, opts geo.ConvertOptions) error {
	return os.WriteFile(dst, []byte("raster"), 0o644)
}

func (stubRasters) MinMax(path string) (float64, float64, error) { return 0, 100, nil }

func (stubRasters) MultiplyBand(dst, src string, factor float64) error {
	return os.WriteFile(dst, []byte("raster"), 0o644)
}

// stubClouds is the point-cloud counterpart.
type stubClouds struct{}

func (stubClouds) Info(path string) (*geo.PointCloudInfo, error) {
	return &geo.PointCloudInfo{
		Path:  path,
		WKT:   `PROJCS["NAD83 / UTM zone 17N",AUTHORITY["EPSG","26917"]]`,
		Count: 1000,
	}, nil
}

func (stubClouds) Merge(dst string, srcs []string) (int64, error) {
	return 1000, os.WriteFile(dst, []byte("laz"), 0o644)
}

func (stubClouds) Reproject(dst, src, srcAuthority, dstAuthority string) error {
	return os.WriteFile(dst, []byte("laz"), 0o644)
}

func (stubClouds) Crop(dst, src string, win geo.Bounds) error {
	return os.WriteFile(dst, []byte("laz"), 0o644)
}

// newCatalogServer serves a TNM-shaped response whose download URLs
// point at fileSrv.
func newCatalogServer(t *testing.T, fileURL string, names ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total": `, len(names), `, "items": [`)
		for i, name := range names {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"title": %q, "publicationDate": "2020-06-30", "prodFormats": "GeoTIFF", "downloadURL": %q}`,
				name, fileURL+"/Projects/ProjA/"+name)
		}
		fmt.Fprint(w, `]}`)
	}))
}

func newTestPipeline(cfg *config.Config, catSrv, fileSrv *httptest.Server) *Pipeline {
	return &Pipeline{
		Config:      cfg,
		Log:         slog.Default(),
		Catalog:     &catalog.Client{BaseURL: catSrv.URL, HTTPClient: catSrv.Client()},
		Downloader:  &transfer.Downloader{Client: fileSrv.Client(), Log: slog.Default(), MinFreeBytes: 1},
		Rasters:     stubRasters{},
		PointClouds: stubClouds{},
	}
}

func baseConfig(outputDir string) *config.Config {
	cfg := config.Default()
	cfg.AOI = []float64{-82, 39, -81, 40}
	cfg.OutputDir = outputDir
	cfg.DEMMergeMethod = "project"
	cfg.DEMResolution = "none"
	cfg.CRSMismatch = config.MismatchProceed
	return cfg
}

func TestRunDEM(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile bytes"))
	}))
	defer fileSrv.Close()
	catSrv := newCatalogServer(t, fileSrv.URL, "tile1.tif", "tile2.tif")
	defer catSrv.Close()

	outputDir := t.TempDir()
	cfg := baseConfig(outputDir)
	cfg.Type = "dem"

	p := newTestPipeline(cfg, catSrv, fileSrv)
	require.NoError(t, p.Run(context.Background()))

	projDir := filepath.Join(outputDir, "dem", "ProjA")
	assert.FileExists(t, filepath.Join(projDir, "tile1.tif"))
	assert.FileExists(t, filepath.Join(projDir, "tile2.tif"))
	assert.FileExists(t, filepath.Join(projDir, "merged.tif"))
	assert.FileExists(t, filepath.Join(outputDir, "manifest.db"))
}

func TestRunDEMDeleteOriginals(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile bytes"))
	}))
	defer fileSrv.Close()
	catSrv := newCatalogServer(t, fileSrv.URL, "tile1.tif", "tile2.tif")
	defer catSrv.Close()

	outputDir := t.TempDir()
	cfg := baseConfig(outputDir)
	cfg.Type = "dem"
	cfg.DEMMerge = "merge-delete"

	p := newTestPipeline(cfg, catSrv, fileSrv)
	require.NoError(t, p.Run(context.Background()))

	entries, err := os.ReadDir(filepath.Join(outputDir, "dem", "ProjA"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "merged.tif", entries[0].Name())
}

func TestRunLidarWithFilter(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("cloud bytes"))
	}))
	defer fileSrv.Close()
	catSrv := newCatalogServer(t, fileSrv.URL, "tileA.laz", "tileB.laz")
	defer catSrv.Close()

	outputDir := t.TempDir()
	cfg := baseConfig(outputDir)
	cfg.Type = "lidar"
	cfg.MergeLidar = "merge-delete"

	p := newTestPipeline(cfg, catSrv, fileSrv)
	require.NoError(t, p.Run(context.Background()))

	projDir := filepath.Join(outputDir, "lidar", "ProjA")
	assert.FileExists(t, filepath.Join(projDir, "merged.laz"))
	assert.FileExists(t, filepath.Join(projDir, "merged_filtered.laz"))
	assert.NoFileExists(t, filepath.Join(projDir, "tileA.laz"))
	assert.NoFileExists(t, filepath.Join(projDir, "tileB.laz"))
}

func TestRunResumesExistingDownloads(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh bytes"))
	}))
	defer fileSrv.Close()
	catSrv := newCatalogServer(t, fileSrv.URL, "tile1.tif")
	defer catSrv.Close()

	outputDir := t.TempDir()
	projDir := filepath.Join(outputDir, "dem", "ProjA")
	require.NoError(t, os.MkdirAll(projDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "tile1.tif"), []byte("cached bytes"), 0o644))

	cfg := baseConfig(outputDir)
	cfg.Type = "dem"
	cfg.DEMMerge = "no-merge"

	p := newTestPipeline(cfg, catSrv, fileSrv)
	require.NoError(t, p.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(projDir, "tile1.tif"))
	require.NoError(t, err)
	assert.Equal(t, "cached bytes", string(data))
}

func TestDownloadBasename(t *testing.T) {
	assert.Equal(t, "USGS_1M_17_x31y442.tif",
		downloadBasename("https://example.com/Projects/OH/TIFF/USGS_1M_17_x31y442.tif?token=abc"))
}
