package dem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// fakeRaster implements geo.RasterEngine over plain files: every
// operation writes a marker file at dst and records the call, so tests
// can assert on the produced tree without GDAL.
type fakeRaster struct {
	infos      map[string]*geo.RasterInfo // keyed by base name, overrides defaults
	failInfo   map[string]error           // keyed by base name
	warpMerges [][]string
	crops      []cropCall
	warps      []string
	converts   []convertCall
	multiplied map[string]float64
}

type cropCall struct {
	dst, src      string
	win           geo.Bounds
	width, height int
}

type convertCall struct {
	dst, src string
	opts     geo.ConvertOptions
}

func newFakeRaster() *fakeRaster {
	return &fakeRaster{
		infos:      make(map[string]*geo.RasterInfo),
		failInfo:   make(map[string]error),
		multiplied: make(map[string]float64),
	}
}

func (f *fakeRaster) Info(path string) (*geo.RasterInfo, error) {
	base := filepath.Base(path)
	if err, ok := f.failInfo[base]; ok {
		return nil, err
	}
	if info, ok := f.infos[base]; ok {
		cp := *info
		cp.Path = path
		return &cp, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, path, err)
	}
	return &geo.RasterInfo{Path: path, Width: 10, Height: 10, Authority: "EPSG:26917"}, nil
}

func (f *fakeRaster) WarpMerge(dst string, srcs []string, targetAuthority, resampling string) error {
	f.warpMerges = append(f.warpMerges, append([]string{dst}, srcs...))
	return touch(dst)
}

func (f *fakeRaster) Crop(dst, src string, win geo.Bounds, outWidth, outHeight int) error {
	f.crops = append(f.crops, cropCall{dst: dst, src: src, win: win, width: outWidth, height: outHeight})
	return touch(dst)
}

func (f *fakeRaster) Warp(dst, src, targetAuthority, resampling string) error {
	f.warps = append(f.warps, dst)
	return touch(dst)
}

func (f *fakeRaster) Convert(dst, src string, opts geo.ConvertOptions) error {
	f.converts = append(f.converts, convertCall{dst: dst, src: src, opts: opts})
	return touch(dst)
}

func (f *fakeRaster) MinMax(path string) (float64, float64, error) {
	return 120.5, 410.25, nil
}

func (f *fakeRaster) MultiplyBand(dst, src string, factor float64) error {
	f.multiplied[filepath.Base(src)] = factor
	return touch(dst)
}

func touch(path string) error {
	return os.WriteFile(path, []byte("raster"), 0o644)
}
