package dem

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// MismatchPolicy decides whether a merge over inputs with differing
// horizontal coordinate systems may proceed. The decision is injected so
// the engine never blocks on terminal input by itself.
type MismatchPolicy interface {
	// Resolve is given the distinct authority codes found across the
	// inputs and returns true to proceed with the merge.
	Resolve(codes []string) (bool, error)
}

// AutoAbort declines every mismatched merge. The default in headless
// contexts.
type AutoAbort struct{}

func (AutoAbort) Resolve([]string) (bool, error) { return false, nil }

// AutoConfirm accepts every mismatched merge.
type AutoConfirm struct{}

func (AutoConfirm) Resolve([]string) (bool, error) { return true, nil }

// Prompt asks the operator on the attached terminal. Anything other than
// an explicit yes aborts.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p Prompt) Resolve(codes []string) (bool, error) {
	fmt.Fprintf(p.Out, "Inputs use differing coordinate systems: %s\n", strings.Join(codes, ", "))
	fmt.Fprint(p.Out, "Merging may spatially distort the output. Continue? [y/N]: ")

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Reconciler mosaics a set of rasters into one WGS84 GeoTIFF, gating on
// its MismatchPolicy when the inputs disagree about their horizontal CRS.
type Reconciler struct {
	Engine geo.RasterEngine
	Policy MismatchPolicy
	Log    *slog.Logger
}

func NewReconciler(engine geo.RasterEngine, policy MismatchPolicy, log *slog.Logger) *Reconciler {
	if policy == nil {
		policy = AutoAbort{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{Engine: engine, Policy: policy, Log: log}
}

// WarpAndMerge mosaics inputs into dst with cubic resampling, unified
// into geographic WGS84. It returns the representative authority code of
// the inputs (the source zone, for aligning the LiDAR stage later).
// Unreadable inputs are skipped with a warning; zero readable inputs is
// a merge failure.
func (r *Reconciler) WarpAndMerge(dst string, inputs []string) (string, error) {
	var usable []string
	var distinct []string
	seen := make(map[string]bool)
	representative := ""

	for _, input := range inputs {
		info, err := r.Engine.Info(input)
		if err != nil {
			r.Log.Warn("skipping unreadable input", "path", input, "error", err)
			continue
		}
		usable = append(usable, input)

		if info.Authority == "" {
			r.Log.Warn("could not determine coordinate system", "path", input)
			continue
		}
		if representative == "" {
			representative = info.Authority
		}
		if !seen[info.Authority] {
			seen[info.Authority] = true
			distinct = append(distinct, info.Authority)
		}
	}

	if len(usable) == 0 {
		return "", fmt.Errorf("%w: no readable inputs for %s", usgserr.ErrMerge, dst)
	}

	if len(distinct) > 1 {
		proceed, err := r.Policy.Resolve(distinct)
		if err != nil {
			return "", fmt.Errorf("resolve crs mismatch: %w", err)
		}
		if !proceed {
			return "", fmt.Errorf("%w: inputs use differing coordinate systems %s",
				usgserr.ErrAborted, strings.Join(distinct, ", "))
		}
		r.Log.Warn("merging across coordinate systems", "codes", distinct)
	}

	if err := r.Engine.WarpMerge(dst, usable, geo.WGS84, geo.ResampleCubic); err != nil {
		return "", err
	}
	return representative, nil
}
