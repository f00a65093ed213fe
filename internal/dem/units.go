package dem

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ces0157/usgs-data-tool/internal/geo"
)

// USSurveyFootToMeter is the conversion factor applied to foot-based
// elevation bands before merging.
const USSurveyFootToMeter = 0.3048006096012192

// UnitSource records which detection step resolved a raster's vertical
// unit.
type UnitSource string

const (
	UnitFromBand        UnitSource = "band"
	UnitFromVerticalCRS UnitSource = "vertical_crs"
	UnitFromHeuristic   UnitSource = "heuristic"
	UnitUnknown         UnitSource = "unknown"
	UnitError           UnitSource = "error"
)

// UnitDetection is the result of inspecting a raster's vertical unit
// metadata.
type UnitDetection struct {
	Unit    string // empty when unresolved
	Source  UnitSource
	Details string
}

// vertUnit pulls the unit name out of a vertical coordinate system
// block, WKT1 (VERT_CS ... UNIT["foot",...]) or WKT2
// (VERTCRS ... LENGTHUNIT["metre",...]).
var vertUnit = regexp.MustCompile(`(?:UNIT|LENGTHUNIT)\[\"([^\"]+)\"`)

// DetectVerticalUnit resolves path's vertical unit. Detection order:
// explicit band metadata, then a vertical CRS inside a compound spatial
// reference, then the USGS one-meter product naming convention. An
// unresolved unit is not an error; the merge proceeds assuming meters.
func DetectVerticalUnit(engine geo.RasterEngine, path string) UnitDetection {
	info, err := engine.Info(path)
	if err != nil {
		return UnitDetection{Source: UnitError, Details: err.Error()}
	}

	if info.BandUnit != "" {
		return UnitDetection{Unit: info.BandUnit, Source: UnitFromBand}
	}

	if idx := strings.Index(info.WKT, "VERT"); idx >= 0 {
		if m := vertUnit.FindStringSubmatch(info.WKT[idx:]); m != nil {
			return UnitDetection{
				Unit:    m[1],
				Source:  UnitFromVerticalCRS,
				Details: "compound spatial reference",
			}
		}
	}

	// USGS 1-meter DEM tiles (USGS_1M_<zone>_<tile>_...) are meters by
	// product definition even when the metadata is silent.
	base := strings.ToUpper(filepath.Base(path))
	if strings.HasPrefix(base, "USGS_1M") || strings.Contains(base, "_1M_") {
		return UnitDetection{
			Unit:    "metre",
			Source:  UnitFromHeuristic,
			Details: "USGS one-meter product naming",
		}
	}

	return UnitDetection{Source: UnitUnknown}
}

// IsFootUnit reports whether a detected unit name denotes a foot-based
// vertical unit.
func IsFootUnit(unit string) bool {
	lower := strings.ToLower(unit)
	if lower == "ft" {
		return true
	}
	return strings.Contains(lower, "foot") || strings.Contains(lower, "feet")
}

// ConvertToMeters writes a sibling copy of path with every non-nodata
// band value multiplied by factor (US survey foot by default) and the
// vertical unit set to metre. The original file is untouched; the new
// path is returned.
func ConvertToMeters(engine geo.RasterEngine, path string, factor float64) (string, error) {
	if factor <= 0 {
		factor = USSurveyFootToMeter
	}
	ext := filepath.Ext(path)
	dst := strings.TrimSuffix(path, ext) + "_meters.tif"
	if err := engine.MultiplyBand(dst, path, factor); err != nil {
		return "", fmt.Errorf("convert %s to meters: %w", path, err)
	}
	return dst, nil
}
