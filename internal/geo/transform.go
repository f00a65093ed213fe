package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// proj4ForEPSG maps the authority codes USGS elevation products actually
// ship in onto proj4 definitions usable by the pure-Go transformer.
// NAD83 and WGS84 UTM zones are generated, everything else is a fixed
// table entry.
func proj4ForEPSG(code int) (string, error) {
	switch {
	case code == 4326:
		return "+proj=longlat +datum=WGS84 +no_defs", nil
	case code == 4269:
		return "+proj=longlat +datum=NAD83 +no_defs", nil
	case code == 3857:
		return "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs", nil
	case code == 5070:
		return "+proj=aea +lat_0=23 +lon_0=-96 +lat_1=29.5 +lat_2=45.5 +x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs", nil
	case code >= 26901 && code <= 26923: // NAD83 / UTM 1N-23N
		return fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs", code-26900), nil
	case code >= 32601 && code <= 32660: // WGS84 / UTM north
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), nil
	case code >= 6330 && code <= 6352: // NAD83(2011) / UTM 1N-23N
		return fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs", code-6329), nil
	}
	return "", fmt.Errorf("%w: no proj4 definition for EPSG:%d", usgserr.ErrCRSTransform, code)
}

// ParseAuthority splits an "EPSG:NNNN" code into its numeric part.
func ParseAuthority(authority string) (int, error) {
	s, ok := strings.CutPrefix(authority, "EPSG:")
	if !ok {
		return 0, fmt.Errorf("%w: unsupported authority %q", usgserr.ErrCRSTransform, authority)
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad authority %q", usgserr.ErrCRSTransform, authority)
	}
	return code, nil
}

// TransformBounds converts the corners of b from one authority code to
// another. Only the two corner points are transformed, matching how the
// crop window is handed to the raster engine.
func TransformBounds(b Bounds, fromAuthority, toAuthority string) (Bounds, error) {
	if fromAuthority == toAuthority {
		return b, nil
	}

	from, err := parseSR(fromAuthority)
	if err != nil {
		return Bounds{}, err
	}
	to, err := parseSR(toAuthority)
	if err != nil {
		return Bounds{}, err
	}

	trans, err := from.NewTransform(to)
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: %s -> %s: %v", usgserr.ErrCRSTransform, fromAuthority, toAuthority, err)
	}

	minX, minY, err := trans(b.MinX, b.MinY)
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: %v", usgserr.ErrCRSTransform, err)
	}
	maxX, maxY, err := trans(b.MaxX, b.MaxY)
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: %v", usgserr.ErrCRSTransform, err)
	}

	return Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}, nil
}

func parseSR(authority string) (*proj.SR, error) {
	code, err := ParseAuthority(authority)
	if err != nil {
		return nil, err
	}
	p4, err := proj4ForEPSG(code)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(p4)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", usgserr.ErrCRSTransform, p4, err)
	}
	return sr, nil
}
