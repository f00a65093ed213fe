// Package dem merges downloaded elevation rasters into analysis-ready
// artifacts: unit-normalized, mosaicked to a common CRS, optionally
// cropped to the area of interest, rescaled and re-encoded.
package dem

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/project"
	"github.com/ces0157/usgs-data-tool/internal/retain"
)

// Scope selects how downloaded tiles are grouped for merging.
type Scope string

const (
	// ScopeProject merges within each source project.
	ScopeProject Scope = "project"
	// ScopeAll merges every tile into one top-level artifact.
	ScopeAll Scope = "all"
	// ScopeBoth merges per project first, then merges those outputs.
	ScopeBoth Scope = "both"
)

// Output encodings.
const (
	FormatTIF = "tif"
	FormatPNG = "png"
	FormatR16 = "r16"
)

// Request is the configuration bundle driving one DEM merge pass.
type Request struct {
	Scope         Scope
	KeepOriginals bool
	Format        string // tif, png or r16
	Precision     int    // 8 or 16, PNG only
	Crop          bool
	AOI           geo.Bounds // WGS84 lon/lat, only read when Crop is set
	Resolution    Resolution
}

func (r Request) validate() error {
	switch r.Scope {
	case ScopeProject, ScopeAll, ScopeBoth:
	default:
		return fmt.Errorf("unknown merge scope %q", r.Scope)
	}
	switch r.Format {
	case FormatTIF, FormatPNG, FormatR16:
	default:
		return fmt.Errorf("unknown output format %q", r.Format)
	}
	if r.Format == FormatPNG && r.Precision != 8 && r.Precision != 16 {
		return fmt.Errorf("png precision must be 8 or 16, got %d", r.Precision)
	}
	if r.Crop && !r.AOI.Valid() {
		return fmt.Errorf("invalid area of interest: min must be strictly below max on both axes")
	}
	return nil
}

// Result reports what a merge pass produced. Authority is the
// representative source zone, which the LiDAR stage aligns to when both
// data types are requested together.
type Result struct {
	Authority string
	Outputs   []string
}

// Merger is the DEM merge/crop/rescale/convert engine. All work is
// synchronous and sequential; the only suspension point is the CRS
// mismatch policy inside the Reconciler.
type Merger struct {
	Engine     geo.RasterEngine
	Reconciler *Reconciler
	Retention  *retain.Policy
	Log        *slog.Logger
}

func NewMerger(engine geo.RasterEngine, rec *Reconciler, retention *retain.Policy, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{Engine: engine, Reconciler: rec, Retention: retention, Log: log}
}

// Merge runs the pass described by req over the grouped tiles. demRoot
// is the <output>/dem directory, one level above the project
// directories.
func (m *Merger) Merge(set *project.Set, demRoot string, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	switch req.Scope {
	case ScopeProject:
		return m.mergePerProject(set, req)
	case ScopeAll:
		return m.mergeAll(set, demRoot, req)
	default:
		return m.mergeBoth(set, demRoot, req)
	}
}

func (m *Merger) mergePerProject(set *project.Set, req Request) (*Result, error) {
	res := &Result{}
	for _, g := range set.Groups() {
		_, auth, outs, err := m.mergeGroup(g, req, false)
		if err != nil {
			return nil, err
		}
		if res.Authority == "" {
			res.Authority = auth
		}
		res.Outputs = append(res.Outputs, outs...)

		if !req.KeepOriginals && len(g.Files) > 1 {
			m.Retention.Purge(g.Dir, req.Format, true)
		}
	}
	return res, nil
}

func (m *Merger) mergeAll(set *project.Set, demRoot string, req Request) (*Result, error) {
	files := set.AllFiles()
	if len(files) == 0 {
		return &Result{}, nil
	}

	inputs, temps := m.normalizeUnits(files)
	dst := filepath.Join(demRoot, "merged.tif")
	auth, err := m.Reconciler.WarpAndMerge(dst, inputs)
	if err != nil {
		return nil, err
	}
	m.record(dst, retain.RoleMerged, "")
	m.removeTemps(temps)

	outs, err := m.finishMerged(demRoot, dst, auth, req, "")
	if err != nil {
		return nil, err
	}

	if !req.KeepOriginals {
		for _, g := range set.Groups() {
			m.Retention.RemoveTree(g.Dir)
		}
		m.Retention.Purge(demRoot, req.Format, true)
	}

	return &Result{Authority: auth, Outputs: append([]string{dst}, outs...)}, nil
}

func (m *Merger) mergeBoth(set *project.Set, demRoot string, req Request) (*Result, error) {
	if set.Len() == 0 {
		return &Result{}, nil
	}

	// First pass merges within projects, deferring crop/convert so the
	// per-project artifacts can later be matched to the same target as
	// the global one.
	type pass1 struct {
		group   *project.Group
		primary string
		merged  bool
	}
	var reps []pass1
	var primaries []string
	for _, g := range set.Groups() {
		primary, _, _, err := m.mergeGroup(g, req, true)
		if err != nil {
			return nil, err
		}
		reps = append(reps, pass1{group: g, primary: primary, merged: len(g.Files) > 1})
		primaries = append(primaries, primary)
	}

	// Per-project mosaics are already meters, but a single-file
	// project's stand-in is its raw tile and may still be foot-based.
	inputs, temps := m.normalizeUnits(primaries)
	topDst := filepath.Join(demRoot, "merged.tif")
	topAuth, err := m.Reconciler.WarpAndMerge(topDst, inputs)
	if err != nil {
		return nil, err
	}
	m.record(topDst, retain.RoleMerged, "")
	m.removeTemps(temps)

	res := &Result{Authority: topAuth, Outputs: []string{topDst}}

	outs, err := m.finishMerged(demRoot, topDst, topAuth, req, "")
	if err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, outs...)

	for _, r := range reps {
		if r.merged {
			pouts, err := m.finishMerged(r.group.Dir, r.primary, topAuth, req, r.group.Name)
			if err != nil {
				return nil, err
			}
			res.Outputs = append(res.Outputs, r.primary)
			res.Outputs = append(res.Outputs, pouts...)
			if !req.KeepOriginals {
				m.Retention.Purge(r.group.Dir, req.Format, true)
			}
			continue
		}
		pouts, err := m.finishSingle(r.group, r.primary, req)
		if err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, pouts...)
	}

	if !req.KeepOriginals {
		m.Retention.Purge(demRoot, req.Format, true)
	}
	return res, nil
}

// mergeGroup merges one project's tiles. A single-file group is a valid
// terminal state: the merge step is skipped and the lone tile (or its
// cropped/converted derivative) is the artifact. deferFinish postpones
// crop/convert for the two-pass "both" scope.
func (m *Merger) mergeGroup(g *project.Group, req Request, deferFinish bool) (primary, authority string, outputs []string, err error) {
	if len(g.Files) == 1 {
		file := g.Files[0]
		m.Log.Info("only one tile in project, no merge needed", "project", g.Name)
		if info, ierr := m.Engine.Info(file); ierr == nil {
			authority = info.Authority
		}
		if deferFinish {
			return file, authority, nil, nil
		}
		outputs, err = m.finishSingle(g, file, req)
		return file, authority, outputs, err
	}

	inputs, temps := m.normalizeUnits(g.Files)
	dst := filepath.Join(g.Dir, "merged.tif")
	authority, err = m.Reconciler.WarpAndMerge(dst, inputs)
	if err != nil {
		return "", "", nil, err
	}
	m.record(dst, retain.RoleMerged, g.Name)
	m.removeTemps(temps)
	m.Log.Info("merged project tiles", "project", g.Name, "tiles", len(g.Files), "output", dst)

	if deferFinish {
		return dst, authority, []string{dst}, nil
	}
	outputs, err = m.finishMerged(g.Dir, dst, authority, req, g.Name)
	if err != nil {
		return "", "", nil, err
	}
	return dst, authority, append([]string{dst}, outputs...), nil
}

// normalizeUnits substitutes a meters-converted sibling for every
// foot-based tile so the mosaic never averages incompatible vertical
// scales. Unresolved units pass through with a warning; meters pass
// through untouched.
func (m *Merger) normalizeUnits(files []string) (inputs, temps []string) {
	for _, f := range files {
		det := DetectVerticalUnit(m.Engine, f)
		switch {
		case det.Source == UnitError:
			// Leave it in; the reconciler logs and skips unreadable
			// inputs itself.
			inputs = append(inputs, f)
		case IsFootUnit(det.Unit):
			m.Log.Info("converting foot-based tile to meters", "path", f, "unit", det.Unit, "source", det.Source)
			converted, err := ConvertToMeters(m.Engine, f, USSurveyFootToMeter)
			if err != nil {
				m.Log.Warn("unit conversion failed, merging original", "path", f, "error", err)
				inputs = append(inputs, f)
				continue
			}
			m.record(converted, retain.RoleIntermediate, "")
			inputs = append(inputs, converted)
			temps = append(temps, converted)
		case det.Source == UnitUnknown:
			m.Log.Warn("vertical unit unresolved, assuming meters", "path", f)
			inputs = append(inputs, f)
		default:
			inputs = append(inputs, f)
		}
	}
	return inputs, temps
}

// finishMerged applies the optional crop and format conversion to a
// merged GeoTIFF and returns the artifacts it created.
func (m *Merger) finishMerged(dir, mergedTif, mergeAuthority string, req Request, projectName string) ([]string, error) {
	var outputs []string
	sources := []string{mergedTif}

	if req.Crop {
		filtered := filepath.Join(dir, "merged_filtered.tif")
		if err := m.cropMerged(filtered, mergedTif, mergeAuthority, req, dir); err != nil {
			return nil, err
		}
		m.record(filtered, retain.RoleFiltered, projectName)
		sources = append(sources, filtered)
		outputs = append(outputs, filtered)
	}

	if req.Format != FormatTIF {
		for _, src := range sources {
			dst := strings.TrimSuffix(src, ".tif") + "." + req.Format
			if err := m.convert(dst, src, req); err != nil {
				return nil, err
			}
			m.record(dst, retain.RoleConverted, projectName)
			outputs = append(outputs, dst)
		}
	}
	return outputs, nil
}

// cropMerged extracts the AOI window from a merged raster. When the
// inputs came from a projected zone the merged WGS84 raster is first
// warped back into that zone so the window is cut in linear units.
func (m *Merger) cropMerged(dst, src, mergeAuthority string, req Request, dir string) error {
	workAuth := mergeAuthority
	if workAuth == "" {
		m.Log.Warn("no source authority recorded, cropping in geographic coordinates", "path", src)
		workAuth = geo.WGS84
	}

	cropSrc := src
	if workAuth != geo.WGS84 {
		warped := filepath.Join(dir, "warped.tif")
		if err := m.Engine.Warp(warped, src, workAuth, geo.ResampleCubic); err != nil {
			return err
		}
		defer m.removeTemps([]string{warped})
		cropSrc = warped
	}

	win, err := geo.TransformBounds(req.AOI, geo.WGS84, workAuth)
	if err != nil {
		return err
	}

	info, err := m.Engine.Info(cropSrc)
	if err != nil {
		return err
	}
	size := req.Resolution.Resolve(info.Width, info.Height)
	if size > 0 {
		m.Log.Info("resampling crop window", "edge", size, "native_width", info.Width, "native_height", info.Height)
	}
	return m.Engine.Crop(dst, cropSrc, win, size, size)
}

// finishSingle applies crop/convert to a lone tile, producing the
// heightmap1[_filtered] naming.
func (m *Merger) finishSingle(g *project.Group, file string, req Request) ([]string, error) {
	return m.ProcessTile(g.Dir, g.Name, file, 1, req)
}

// ProcessTile crops and/or converts one raw tile in place, producing
// heightmap<index>[_filtered].<ext> artifacts. The download stage uses
// it for per-file filtering, the merge stage for single-tile projects.
// Resolution rescaling applies only to merged mosaics, never here.
func (m *Merger) ProcessTile(dir, projectName, file string, index int, req Request) ([]string, error) {
	var outputs []string
	stem := fmt.Sprintf("heightmap%d", index)

	var filtered string
	if req.Crop {
		info, err := m.Engine.Info(file)
		if err != nil {
			m.Log.Warn("skipping crop of unreadable tile", "path", file, "error", err)
			return nil, nil
		}
		workAuth := info.Authority
		if workAuth == "" {
			m.Log.Warn("no authority on tile, cropping in geographic coordinates", "path", file)
			workAuth = geo.WGS84
		}
		win, err := geo.TransformBounds(req.AOI, geo.WGS84, workAuth)
		if err != nil {
			return nil, err
		}
		filtered = filepath.Join(dir, stem+"_filtered.tif")
		if err := m.Engine.Crop(filtered, file, win, 0, 0); err != nil {
			return nil, err
		}
		m.record(filtered, retain.RoleFiltered, projectName)
		outputs = append(outputs, filtered)
	}

	if req.Format != FormatTIF {
		dst := filepath.Join(dir, stem+"."+req.Format)
		if err := m.convert(dst, file, req); err != nil {
			return nil, err
		}
		m.record(dst, retain.RoleConverted, projectName)
		outputs = append(outputs, dst)

		if filtered != "" {
			dst := filepath.Join(dir, stem+"_filtered."+req.Format)
			if err := m.convert(dst, filtered, req); err != nil {
				return nil, err
			}
			m.record(dst, retain.RoleConverted, projectName)
			outputs = append(outputs, dst)
		}
	}
	return outputs, nil
}

// convert re-encodes src, rescaling band values linearly from their
// observed range onto the full integer range of the target encoding.
func (m *Merger) convert(dst, src string, req Request) error {
	min, max, err := m.Engine.MinMax(src)
	if err != nil {
		return err
	}

	depth := 16
	to := 65535.0
	if req.Format == FormatPNG && req.Precision == 8 {
		depth = 8
		to = 255.0
	}
	return m.Engine.Convert(dst, src, geo.ConvertOptions{
		Format:   req.Format,
		Depth:    depth,
		ScaleMin: min,
		ScaleMax: max,
		ScaleTo:  to,
	})
}

func (m *Merger) record(path, role, projectName string) {
	if m.Retention == nil || m.Retention.Manifest == nil {
		return
	}
	if err := m.Retention.Manifest.Record(path, role, projectName); err != nil {
		m.Log.Warn("could not record artifact", "path", path, "error", err)
	}
}

func (m *Merger) removeTemps(paths []string) {
	if m.Retention == nil {
		return
	}
	m.Retention.Remove(paths)
}
