// Package config holds the run configuration assembled from flags and
// an optional JSON defaults file.
package config

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"

	"github.com/ces0157/usgs-data-tool/internal/geo"
)

// CRS mismatch policies (see dem.MismatchPolicy).
const (
	MismatchPrompt  = "prompt"
	MismatchAbort   = "abort"
	MismatchProceed = "proceed"
)

// Config mirrors the CLI surface. Field names follow the original
// tool's config keys so existing config files keep working.
type Config struct {
	AOI            []float64 `json:"aoi"` // minLon, minLat, maxLon, maxLat
	Type           string    `json:"type"`
	OutputDir      string    `json:"output_dir"`
	DEMSpec        string    `json:"dem_spec"`
	DEMOutput      string    `json:"dem_output"`
	PNGPrecision   int       `json:"png_precision"`
	DEMMerge       string    `json:"dem_merge"`
	DEMMergeMethod string    `json:"dem_merge_method"`
	DEMFilterType  string    `json:"dem_filter_type"`
	DEMResolution  string    `json:"dem_resolution"`
	MergeLidar     string    `json:"merge_lidar"`
	LidarFilter    string    `json:"lidar_filter"`
	LidarReproject string    `json:"lidar_reproject"`
	CRSMismatch    string    `json:"crs_mismatch"`
}

// Default returns the flag defaults of the original CLI.
func Default() *Config {
	return &Config{
		DEMSpec:        "regular",
		DEMOutput:      "tif",
		PNGPrecision:   16,
		DEMMerge:       "merge-keep",
		DEMMergeMethod: "all",
		DEMFilterType:  "none",
		DEMResolution:  "auto",
		MergeLidar:     "merge-keep",
		LidarFilter:    "filter",
		LidarReproject: "none",
		CRSMismatch:    MismatchPrompt,
	}
}

// Load reads a JSON defaults file. Unknown keys are ignored; known keys
// overwrite the receiver's current values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	root, err := oj.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid JSON in config %s: %w", path, err)
	}
	fields, ok := root.(map[string]any)
	if !ok {
		return fmt.Errorf("config %s: top level must be an object", path)
	}

	if v, ok := fields["aoi"].([]any); ok {
		aoi := make([]float64, 0, len(v))
		for _, n := range v {
			f, err := toFloat(n)
			if err != nil {
				return fmt.Errorf("config %s: aoi: %w", path, err)
			}
			aoi = append(aoi, f)
		}
		c.AOI = aoi
	}
	setString(fields, "type", &c.Type)
	setString(fields, "output_dir", &c.OutputDir)
	setString(fields, "dem_spec", &c.DEMSpec)
	setString(fields, "dem_output", &c.DEMOutput)
	setString(fields, "dem_merge", &c.DEMMerge)
	setString(fields, "dem_merge_method", &c.DEMMergeMethod)
	setString(fields, "dem_filter_type", &c.DEMFilterType)
	setString(fields, "dem_resolution", &c.DEMResolution)
	setString(fields, "merge_lidar", &c.MergeLidar)
	setString(fields, "lidar_filter", &c.LidarFilter)
	setString(fields, "lidar_reproject", &c.LidarReproject)
	setString(fields, "crs_mismatch", &c.CRSMismatch)
	if v, ok := fields["png_precision"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return fmt.Errorf("config %s: png_precision: %w", path, err)
		}
		c.PNGPrecision = int(f)
	}
	return nil
}

// Validate checks required fields and choice values.
func (c *Config) Validate() error {
	if len(c.AOI) != 4 {
		return fmt.Errorf("aoi requires exactly 4 values (minLon minLat maxLon maxLat), got %d", len(c.AOI))
	}
	bbox := c.BBox()
	if !bbox.Valid() {
		return fmt.Errorf("aoi minimums must be strictly below maximums")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"type", c.Type, []string{"dem", "lidar", "both"}},
		{"dem-spec", c.DEMSpec, []string{"regular", "seamless"}},
		{"dem-output", c.DEMOutput, []string{"tif", "png", "r16"}},
		{"dem-merge", c.DEMMerge, []string{"no-merge", "merge-keep", "merge-delete"}},
		{"dem-merge-method", c.DEMMergeMethod, []string{"project", "all", "both"}},
		{"dem-filter-type", c.DEMFilterType, []string{"none", "merge", "all"}},
		{"merge-lidar", c.MergeLidar, []string{"no-merge", "merge-keep", "merge-delete"}},
		{"lidar-filter", c.LidarFilter, []string{"no-filter", "filter"}},
		{"lidar-reproject", c.LidarReproject, []string{"none", "auto"}},
		{"crs-mismatch", c.CRSMismatch, []string{MismatchPrompt, MismatchAbort, MismatchProceed}},
	}
	for _, chk := range checks {
		ok := false
		for _, a := range chk.allowed {
			if chk.value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("invalid --%s %q (choose from %v)", chk.name, chk.value, chk.allowed)
		}
	}

	if c.PNGPrecision != 8 && c.PNGPrecision != 16 {
		return fmt.Errorf("png precision must be 8 or 16, got %d", c.PNGPrecision)
	}
	return nil
}

// BBox returns the AOI as a bounds value. Call only after Validate.
func (c *Config) BBox() geo.Bounds {
	if len(c.AOI) != 4 {
		return geo.Bounds{}
	}
	return geo.Bounds{MinX: c.AOI[0], MinY: c.AOI[1], MaxX: c.AOI[2], MaxY: c.AOI[3]}
}

func setString(fields map[string]any, key string, dst *string) {
	if v, ok := fields[key].(string); ok {
		*dst = v
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
