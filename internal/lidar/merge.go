// Package lidar merges per-project point-cloud tiles into compressed
// point clouds, with optional reprojection into the DEM stage's zone and
// cropping to the area of interest.
package lidar

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/project"
	"github.com/ces0157/usgs-data-tool/internal/retain"
	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// legacyMarker flags tiles whose spatial reference metadata cannot be
// trusted; they are excluded from reprojection.
const legacyMarker = "legacy"

// Merger is the point-cloud counterpart of the DEM engine: simpler, no
// unit normalization and no format fan-out.
type Merger struct {
	Engine    geo.PointCloudEngine
	Retention *retain.Policy
	Log       *slog.Logger
}

func NewMerger(engine geo.PointCloudEngine, retention *retain.Policy, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{Engine: engine, Retention: retention, Log: log}
}

// Merge concatenates each project's tiles into <project>/merged.laz and
// returns the merged path per project directory. Single-file groups run
// the same pipeline so the naming stays uniform. A failed project is
// logged and skipped; the error for the stage aggregates the failures
// but does not stop the remaining projects.
func (m *Merger) Merge(set *project.Set, keepOriginals bool) (map[string]string, error) {
	merged := make(map[string]string)
	var failures []error

	for _, g := range set.Groups() {
		if len(g.Files) == 0 {
			continue
		}
		dst := filepath.Join(g.Dir, "merged.laz")
		m.Log.Info("merging point clouds", "project", g.Name, "tiles", len(g.Files))

		count, err := m.Engine.Merge(dst, g.Files)
		if err != nil {
			m.Log.Error("point cloud merge failed", "project", g.Name, "error", err)
			failures = append(failures, fmt.Errorf("project %s: %w", g.Name, err))
			continue
		}
		m.Log.Info("merged point clouds", "project", g.Name, "output", dst, "points", count)
		m.record(dst, retain.RoleMerged, g.Name)
		merged[g.Dir] = dst

		if !keepOriginals {
			removed := m.Retention.Purge(g.Dir, "laz", true)
			m.Log.Info("removed original tiles", "project", g.Name, "count", removed)
		}
	}
	return merged, errors.Join(failures...)
}

// Reproject rewrites each non-legacy tile into targetAuthority,
// detecting the source EPSG from the tile's spatial reference text. A
// tile with no detectable reference, or one that fails to reproject, is
// logged and excluded without aborting the batch.
func (m *Merger) Reproject(set *project.Set, targetAuthority string) (map[string][]string, error) {
	if targetAuthority == "" {
		return nil, fmt.Errorf("%w: no target authority for reprojection", usgserr.ErrMissingMetadata)
	}

	out := make(map[string][]string)
	for _, g := range set.Groups() {
		for _, file := range g.Files {
			if strings.Contains(strings.ToLower(file), legacyMarker) {
				m.Log.Warn("legacy tile lacks reliable reference, skipping reprojection", "path", file)
				continue
			}

			info, err := m.Engine.Info(file)
			if err != nil {
				m.Log.Warn("skipping unreadable point cloud", "path", file, "error", err)
				continue
			}
			srcAuth, ok := geo.DetectAuthority(info.WKT)
			if !ok {
				m.Log.Warn("no EPSG authority in spatial reference, skipping", "path", file)
				continue
			}
			if srcAuth == targetAuthority {
				out[g.Dir] = append(out[g.Dir], file)
				continue
			}

			dst := strings.TrimSuffix(file, filepath.Ext(file)) + "_reprojected.laz"
			if err := m.Engine.Reproject(dst, file, srcAuth, targetAuthority); err != nil {
				m.Log.Warn("reprojection failed, excluding tile", "path", file, "error", err)
				continue
			}
			m.record(dst, retain.RoleIntermediate, g.Name)
			out[g.Dir] = append(out[g.Dir], dst)
		}
	}
	return out, nil
}

// Crop cuts each merged point cloud down to the AOI, transformed into
// the cloud's own working CRS, writing <dir>/<outputName>.
func (m *Merger) Crop(merged map[string]string, outputName string, aoi geo.Bounds) error {
	for dir, src := range merged {
		info, err := m.Engine.Info(src)
		if err != nil {
			m.Log.Warn("skipping crop of unreadable point cloud", "path", src, "error", err)
			continue
		}
		auth, ok := geo.DetectAuthority(info.WKT)
		if !ok {
			m.Log.Warn("no EPSG authority in merged point cloud, skipping crop", "path", src)
			continue
		}

		win, err := geo.TransformBounds(aoi, geo.WGS84, auth)
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, outputName)
		if err := m.Engine.Crop(dst, src, win); err != nil {
			return err
		}
		m.record(dst, retain.RoleFiltered, filepath.Base(dir))
		m.Log.Info("cropped point cloud", "output", dst)
	}
	return nil
}

func (m *Merger) record(path, role, projectName string) {
	if m.Retention == nil || m.Retention.Manifest == nil {
		return
	}
	if err := m.Retention.Manifest.Record(path, role, projectName); err != nil {
		m.Log.Warn("could not record artifact", "path", path, "error", err)
	}
}
