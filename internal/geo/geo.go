// Package geo isolates every call into the geospatial runtimes (GDAL for
// rasters, PDAL for point clouds) behind small interfaces. The merge
// engines only ever see RasterEngine and PointCloudEngine, which keeps
// them testable without cgo or an installed toolchain.
package geo

import (
	"regexp"
	"strings"
)

// Bounds is an axis-aligned bounding box. For an area of interest the
// coordinates are WGS84 lon/lat; after TransformBounds they are in the
// working CRS.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Valid reports whether the box has positive extent on both axes.
func (b Bounds) Valid() bool {
	return b.MinX < b.MaxX && b.MinY < b.MaxY
}

// RasterInfo describes a raster on disk.
type RasterInfo struct {
	Path      string
	Width     int
	Height    int
	Authority string // "EPSG:26917", empty when undetectable
	WKT       string // full spatial reference text
	BandUnit  string // vertical unit of band 1, empty when unset
	NoData    float64
	HasNoData bool
}

// PointCloudInfo describes a point-cloud file.
type PointCloudInfo struct {
	Path  string
	WKT   string // spatial reference text, empty when absent
	Count int64
}

// ConvertOptions drives a raster format conversion. Band values are
// rescaled linearly from [ScaleMin, ScaleMax] to [0, ScaleTo].
type ConvertOptions struct {
	Format   string // "png" or "r16"
	Depth    int    // 8 or 16, PNG only
	ScaleMin float64
	ScaleMax float64
	ScaleTo  float64
}

// RasterEngine is the set of raster primitives the DEM pipeline invokes.
// Implementations must leave source files untouched.
type RasterEngine interface {
	// Info opens the raster read-only and reports its shape and
	// spatial/vertical metadata.
	Info(path string) (*RasterInfo, error)

	// WarpMerge mosaics srcs into a single GeoTIFF at dst, reprojected
	// to targetAuthority with the given resampling kernel.
	WarpMerge(dst string, srcs []string, targetAuthority, resampling string) error

	// Crop extracts the window win (given in the raster's own CRS,
	// minX/maxY upper-left) into dst. A non-zero outWidth/outHeight
	// resamples the window to that pixel grid in the same operation.
	Crop(dst, src string, win Bounds, outWidth, outHeight int) error

	// Warp reprojects src into dst under the given authority code.
	Warp(dst, src, targetAuthority, resampling string) error

	// Convert re-encodes src per opts.
	Convert(dst, src string, opts ConvertOptions) error

	// MinMax computes the band-1 extremes, ignoring nodata.
	MinMax(path string) (min, max float64, err error)

	// MultiplyBand writes a copy of src with every non-nodata band-1
	// value multiplied by factor, vertical unit metadata set to "metre".
	MultiplyBand(dst, src string, factor float64) error
}

// PointCloudEngine is the set of point-cloud primitives the LiDAR
// pipeline invokes.
type PointCloudEngine interface {
	// Info reads the file's header metadata.
	Info(path string) (*PointCloudInfo, error)

	// Merge concatenates srcs into one compressed point cloud at dst
	// and returns the number of points written.
	Merge(dst string, srcs []string) (int64, error)

	// Reproject rewrites src into dst with coordinates transformed from
	// srcAuthority to dstAuthority.
	Reproject(dst, src, srcAuthority, dstAuthority string) error

	// Crop writes the points of src inside win (working CRS) to dst.
	Crop(dst, src string, win Bounds) error
}

// ResampleCubic is the resampling kernel every warp and crop uses.
const ResampleCubic = "cubic"

// WGS84 is the authority code every mosaic is unified into.
const WGS84 = "EPSG:4326"

// epsgTag matches both WKT1 (AUTHORITY["EPSG","4326"]) and WKT2
// (ID["EPSG",4326]) authority tags.
var epsgTag = regexp.MustCompile(`(?:AUTHORITY|ID)\[\"EPSG\",\s*\"?(\d+)\"?\]`)

// DetectAuthority scans spatial reference text for the horizontal EPSG
// authority tag and returns it as "EPSG:<code>". A compound reference
// lists the vertical system (VERT_CS/VERTCRS) after the horizontal one,
// so only tags before the first VERT section are considered; within
// that, the last tag wins (a projected WKT writes its own authority
// after its nested geographic one).
func DetectAuthority(wkt string) (string, bool) {
	horizontal := wkt
	if idx := strings.Index(wkt, "VERT"); idx >= 0 {
		horizontal = wkt[:idx]
	}
	matches := epsgTag.FindAllStringSubmatch(horizontal, -1)
	if len(matches) == 0 {
		return "", false
	}
	return "EPSG:" + matches[len(matches)-1][1], true
}
