package geo

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// PDALPointClouds implements PointCloudEngine by driving the pdal
// executable with pipeline JSON on stdin, the same way the pipelines are
// expressed in PDAL's own documentation. There is no maintained pure-Go
// LAZ writer, so the executable is treated as the point-cloud runtime.
type PDALPointClouds struct {
	// Binary is the pdal executable, "pdal" by default.
	Binary string
}

func NewPDALPointClouds() *PDALPointClouds {
	return &PDALPointClouds{Binary: "pdal"}
}

func (p *PDALPointClouds) Info(path string) (*PointCloudInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", usgserr.ErrInvalidInput, path, err)
	}

	out, err := p.run([]string{"info", "--metadata", path}, nil)
	if err != nil {
		return nil, err
	}
	root, err := oj.Parse(out)
	if err != nil {
		return nil, fmt.Errorf("%w: pdal info output: %v", usgserr.ErrProcessingEngine, err)
	}

	info := &PointCloudInfo{Path: path}
	if v := first(root, "$.metadata.count"); v != nil {
		switch n := v.(type) {
		case int64:
			info.Count = n
		case float64:
			info.Count = int64(n)
		}
	}
	// Prefer the compound reference, it carries the vertical system too.
	for _, sel := range []string{"$.metadata.srs.compoundwkt", "$.metadata.srs.wkt"} {
		if v, ok := first(root, sel).(string); ok && v != "" {
			info.WKT = v
			break
		}
	}
	return info, nil
}

func (p *PDALPointClouds) Merge(dst string, srcs []string) (int64, error) {
	stages := make([]any, 0, len(srcs)+1)
	for _, src := range srcs {
		if _, err := os.Stat(src); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", usgserr.ErrInvalidInput, src, err)
		}
		stages = append(stages, map[string]any{"type": "readers.las", "filename": src})
	}
	stages = append(stages, map[string]any{
		"type":        "writers.las",
		"filename":    dst,
		"compression": "laszip",
	})
	if err := p.pipeline(stages); err != nil {
		return 0, err
	}

	merged, err := p.Info(dst)
	if err != nil {
		return 0, err
	}
	return merged.Count, nil
}

func (p *PDALPointClouds) Reproject(dst, src, srcAuthority, dstAuthority string) error {
	return p.pipeline([]any{
		map[string]any{"type": "readers.las", "filename": src},
		map[string]any{
			"type":    "filters.reprojection",
			"in_srs":  srcAuthority,
			"out_srs": dstAuthority,
		},
		map[string]any{
			"type":        "writers.las",
			"filename":    dst,
			"compression": "laszip",
		},
	})
}

func (p *PDALPointClouds) Crop(dst, src string, win Bounds) error {
	bounds := fmt.Sprintf("([%s,%s],[%s,%s])",
		ftoa(win.MinX), ftoa(win.MaxX), ftoa(win.MinY), ftoa(win.MaxY))
	return p.pipeline([]any{
		map[string]any{"type": "readers.las", "filename": src},
		map[string]any{"type": "filters.crop", "bounds": bounds},
		map[string]any{
			"type":        "writers.las",
			"filename":    dst,
			"compression": "laszip",
		},
	})
}

func (p *PDALPointClouds) pipeline(stages []any) error {
	doc := oj.JSON(map[string]any{"pipeline": stages})
	_, err := p.run([]string{"pipeline", "--stdin"}, []byte(doc))
	return err
}

func (p *PDALPointClouds) run(args []string, stdin []byte) ([]byte, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdal"
	}
	cmd := exec.Command(bin, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: pdal %s: %v: %s",
			usgserr.ErrProcessingEngine, args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// first evaluates a jsonpath selector and returns the first match.
func first(root any, selector string) any {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil
	}
	if results := x.Get(root); len(results) > 0 {
		return results[0]
	}
	return nil
}
