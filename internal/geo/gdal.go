package geo

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// GDALRasters implements RasterEngine on top of the GDAL runtime via
// godal. All cgo crossings for raster work live in this file.
type GDALRasters struct{}

var registerDrivers sync.Once

// NewGDALRasters registers the GDAL drivers once and returns the engine.
func NewGDALRasters() *GDALRasters {
	registerDrivers.Do(godal.RegisterAll)
	return &GDALRasters{}
}

func (g *GDALRasters) Info(path string) (*RasterInfo, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	info := &RasterInfo{Path: path, Width: st.SizeX, Height: st.SizeY}

	if sr := ds.SpatialRef(); sr != nil {
		if wkt, err := sr.WKT(); err == nil {
			info.WKT = wkt
		}
		if code, ok := DetectAuthority(info.WKT); ok {
			info.Authority = code
		}
	}

	if st.NBands > 0 {
		band := ds.Bands()[0]
		info.BandUnit = band.Metadata("UNITTYPE")
		if nd, ok := band.NoData(); ok {
			info.NoData = nd
			info.HasNoData = true
		}
	}
	return info, nil
}

func (g *GDALRasters) WarpMerge(dst string, srcs []string, targetAuthority, resampling string) error {
	datasets := make([]*godal.Dataset, 0, len(srcs))
	defer func() {
		for _, ds := range datasets {
			ds.Close()
		}
	}()
	for _, src := range srcs {
		ds, err := godal.Open(src)
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, src, err)
		}
		datasets = append(datasets, ds)
	}

	switches := []string{
		"-of", "GTiff",
		"-t_srs", targetAuthority,
		"-r", resampling,
	}
	out, err := godal.Warp(dst, datasets, switches)
	if err != nil {
		return fmt.Errorf("%w: warp to %s: %v", usgserr.ErrMerge, dst, err)
	}
	return out.Close()
}

func (g *GDALRasters) Warp(dst, src, targetAuthority, resampling string) error {
	return g.WarpMerge(dst, []string{src}, targetAuthority, resampling)
}

func (g *GDALRasters) Crop(dst, src string, win Bounds, outWidth, outHeight int) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, src, err)
	}
	defer ds.Close()

	// gdal_translate -projwin takes the window upper-left first; raster
	// rows run top-down so maxY leads.
	switches := []string{
		"-projwin", ftoa(win.MinX), ftoa(win.MaxY), ftoa(win.MaxX), ftoa(win.MinY),
		"-r", ResampleCubic,
	}
	if outWidth > 0 && outHeight > 0 {
		switches = append(switches, "-outsize", strconv.Itoa(outWidth), strconv.Itoa(outHeight))
	}
	out, err := ds.Translate(dst, switches)
	if err != nil {
		return fmt.Errorf("crop %s: %w", src, err)
	}
	return out.Close()
}

func (g *GDALRasters) Convert(dst, src string, opts ConvertOptions) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, src, err)
	}
	defer ds.Close()

	var switches []string
	switch opts.Format {
	case "png":
		outputType := "UInt16"
		if opts.Depth == 8 {
			outputType = "Byte"
		}
		switches = []string{"-of", "PNG", "-ot", outputType}
	case "r16":
		// ENVI writes the raw grid plus the .hdr sidecar terrain
		// importers expect.
		switches = []string{"-of", "ENVI", "-ot", "UInt16"}
	default:
		return fmt.Errorf("unsupported output format %q", opts.Format)
	}
	switches = append(switches,
		"-scale", ftoa(opts.ScaleMin), ftoa(opts.ScaleMax), "0", ftoa(opts.ScaleTo),
	)

	out, err := ds.Translate(dst, switches)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "driver") {
			return fmt.Errorf("%w: %s: %v", usgserr.ErrDriverUnavailable, opts.Format, err)
		}
		return fmt.Errorf("convert %s: %w", src, err)
	}
	return out.Close()
}

func (g *GDALRasters) MinMax(path string) (float64, float64, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands == 0 {
		return 0, 0, fmt.Errorf("%w: %s has no bands", usgserr.ErrInvalidInput, path)
	}
	band := ds.Bands()[0]
	buf := make([]float64, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return 0, 0, fmt.Errorf("read band: %w", err)
	}

	nodata, hasNodata := band.NoData()
	first := true
	var min, max float64
	for _, v := range buf {
		if hasNodata && v == nodata {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if first {
		return 0, 0, fmt.Errorf("%w: %s holds only nodata", usgserr.ErrInvalidInput, path)
	}
	return min, max, nil
}

func (g *GDALRasters) MultiplyBand(dst, src string, factor float64) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", usgserr.ErrInvalidInput, src, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands == 0 {
		return fmt.Errorf("%w: %s has no bands", usgserr.ErrInvalidInput, src)
	}
	band := ds.Bands()[0]
	buf := make([]float64, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return fmt.Errorf("read band: %w", err)
	}

	nodata, hasNodata := band.NoData()
	for i, v := range buf {
		if hasNodata && v == nodata {
			continue
		}
		buf[i] = v * factor
	}

	out, err := godal.Create(godal.GTiff, dst, 1, godal.Float32, st.SizeX, st.SizeY)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", usgserr.ErrDriverUnavailable, dst, err)
	}
	defer out.Close()

	if gt, err := ds.GeoTransform(); err == nil {
		if err := out.SetGeoTransform(gt); err != nil {
			return fmt.Errorf("set geotransform: %w", err)
		}
	}
	if sr := ds.SpatialRef(); sr != nil {
		if err := out.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("set spatial ref: %w", err)
		}
	}

	outBand := out.Bands()[0]
	if hasNodata {
		if err := outBand.SetNoData(nodata); err != nil {
			return fmt.Errorf("set nodata: %w", err)
		}
	}
	if err := outBand.Write(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return fmt.Errorf("write band: %w", err)
	}
	if err := outBand.SetMetadata("UNITTYPE", "metre"); err != nil {
		return fmt.Errorf("set unit metadata: %w", err)
	}
	return nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
