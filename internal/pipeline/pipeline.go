// Package pipeline wires the catalog, transfer and merge stages into
// the single-pass batch run the CLI invokes. Stages run strictly
// sequentially; the DEM result is passed explicitly into the LiDAR
// stage rather than through shared state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/ces0157/usgs-data-tool/internal/catalog"
	"github.com/ces0157/usgs-data-tool/internal/config"
	"github.com/ces0157/usgs-data-tool/internal/dem"
	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/lidar"
	"github.com/ces0157/usgs-data-tool/internal/project"
	"github.com/ces0157/usgs-data-tool/internal/retain"
	"github.com/ces0157/usgs-data-tool/internal/transfer"
	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// Pipeline is the assembled tool. Engines are injected so the whole
// orchestration is testable with fakes.
type Pipeline struct {
	Config      *config.Config
	Log         *slog.Logger
	Catalog     *catalog.Client
	Downloader  *transfer.Downloader
	Rasters     geo.RasterEngine
	PointClouds geo.PointCloudEngine
}

// New assembles a production pipeline: TNM catalog, HTTP transfer, GDAL
// rasters and PDAL point clouds.
func New(cfg *config.Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		Config:      cfg,
		Log:         log,
		Catalog:     catalog.NewClient(),
		Downloader:  transfer.NewDownloader(log),
		Rasters:     geo.NewGDALRasters(),
		PointClouds: geo.NewPDALPointClouds(),
	}
}

// Run executes one full pass: catalog query, download, merge, cleanup.
// DEM and LiDAR stage failures are isolated from each other; an
// operator abort at the CRS gate is fatal for the whole invocation.
func (p *Pipeline) Run(ctx context.Context) error {
	cfg := p.Config
	outputDir := strings.TrimRight(cfg.OutputDir, "/")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	manifest, err := retain.OpenManifest(filepath.Join(outputDir, "manifest.db"))
	if err != nil {
		p.Log.Warn("artifact manifest unavailable, falling back to name-based retention", "error", err)
		manifest = nil
	} else {
		defer manifest.Close()
	}

	fsys := osfs.New("/")
	retention := retain.NewPolicy(fsys, manifest, p.Log)
	reconciler := dem.NewReconciler(p.Rasters, p.mismatchPolicy(), p.Log)
	demMerger := dem.NewMerger(p.Rasters, reconciler, retention, p.Log)
	lidarMerger := lidar.NewMerger(p.PointClouds, retention, p.Log)

	var kinds []project.Kind
	switch cfg.Type {
	case "dem":
		kinds = []project.Kind{project.DEM}
	case "lidar":
		kinds = []project.Kind{project.Lidar}
	default: // both; DEM first so its zone can steer LiDAR reprojection
		kinds = []project.Kind{project.DEM, project.Lidar}
	}

	var demResult *dem.Result
	var stageErrs []error
	for _, kind := range kinds {
		set, err := p.acquire(ctx, kind, outputDir, manifest, demMerger)
		if err != nil {
			stageErrs = append(stageErrs, fmt.Errorf("%s stage: %w", kind, err))
			continue
		}

		if kind == project.DEM {
			res, err := p.runDEM(set, outputDir, demMerger)
			if err != nil {
				if errors.Is(err, usgserr.ErrAborted) {
					return err
				}
				stageErrs = append(stageErrs, fmt.Errorf("dem stage: %w", err))
				continue
			}
			demResult = res
			continue
		}

		if err := p.runLidar(set, lidarMerger, demResult); err != nil {
			if errors.Is(err, usgserr.ErrAborted) {
				return err
			}
			stageErrs = append(stageErrs, fmt.Errorf("lidar stage: %w", err))
		}
	}
	return errors.Join(stageErrs...)
}

func (p *Pipeline) mismatchPolicy() dem.MismatchPolicy {
	switch p.Config.CRSMismatch {
	case config.MismatchProceed:
		return dem.AutoConfirm{}
	case config.MismatchAbort:
		return dem.AutoAbort{}
	default:
		return dem.Prompt{In: os.Stdin, Out: os.Stderr}
	}
}

// acquire queries the catalog for one data kind and downloads every
// product into its project directory, seeding the grouping from files a
// previous run already fetched.
func (p *Pipeline) acquire(ctx context.Context, kind project.Kind, outputDir string, manifest *retain.Manifest, demMerger *dem.Merger) (*project.Set, error) {
	cfg := p.Config

	spec := "regular"
	if kind == project.DEM {
		spec = cfg.DEMSpec
	}
	datasetName, format, err := catalog.Dataset(string(kind), spec)
	if err != nil {
		return nil, err
	}

	products, err := p.Catalog.Products(ctx, cfg.BBox(), datasetName, format)
	if err != nil {
		return nil, err
	}
	p.Log.Info("catalog query complete", "kind", kind, "files", len(products))

	set, err := project.Discover(osfs.New("/"), outputDir, kind)
	if err != nil {
		return nil, err
	}

	for _, prod := range products {
		if prod.URL == "" {
			p.Log.Warn("product without download URL, skipping", "title", prod.Title)
			continue
		}
		projectName, err := project.Name(prod.URL)
		if err != nil {
			p.Log.Warn("could not derive project from URL, skipping", "url", prod.URL, "error", err)
			continue
		}

		dir := filepath.Join(outputDir, string(kind), projectName)
		dest := filepath.Join(dir, downloadBasename(prod.URL))
		group := set.Append(projectName, dir, dest)

		if err := p.Downloader.Fetch(ctx, prod.URL, dest); err != nil {
			return nil, err
		}
		if manifest != nil {
			if err := manifest.Record(dest, retain.RoleOriginal, projectName); err != nil {
				p.Log.Warn("could not record download", "path", dest, "error", err)
			}
		}

		if kind == project.DEM && (cfg.DEMOutput != dem.FormatTIF || cfg.DEMFilterType == "all") {
			req := dem.Request{
				Format:    cfg.DEMOutput,
				Precision: cfg.PNGPrecision,
				Crop:      cfg.DEMFilterType == "all",
				AOI:       cfg.BBox(),
			}
			if _, err := demMerger.ProcessTile(dir, projectName, dest, len(group.Files), req); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

func (p *Pipeline) runDEM(set *project.Set, outputDir string, merger *dem.Merger) (*dem.Result, error) {
	cfg := p.Config
	if cfg.DEMMerge == "no-merge" {
		return nil, nil
	}

	resolution, err := dem.ParseResolution(cfg.DEMResolution)
	if err != nil {
		return nil, err
	}
	req := dem.Request{
		Scope:         dem.Scope(cfg.DEMMergeMethod),
		KeepOriginals: cfg.DEMMerge == "merge-keep",
		Format:        cfg.DEMOutput,
		Precision:     cfg.PNGPrecision,
		Crop:          cfg.DEMFilterType == "merge" || cfg.DEMFilterType == "all",
		AOI:           cfg.BBox(),
		Resolution:    resolution,
	}
	return merger.Merge(set, filepath.Join(outputDir, "dem"), req)
}

func (p *Pipeline) runLidar(set *project.Set, merger *lidar.Merger, demResult *dem.Result) error {
	cfg := p.Config
	if cfg.MergeLidar == "no-merge" {
		return nil
	}

	mergeSet := set
	if cfg.LidarReproject == "auto" {
		if demResult == nil || demResult.Authority == "" {
			p.Log.Warn("no DEM authority available, skipping point cloud reprojection")
		} else {
			reprojected, err := merger.Reproject(set, demResult.Authority)
			if err != nil {
				return err
			}
			mergeSet = project.NewSet()
			for _, g := range set.Groups() {
				files := reprojected[g.Dir]
				if len(files) == 0 {
					files = g.Files
				}
				for _, f := range files {
					mergeSet.Append(g.Name, g.Dir, f)
				}
			}
		}
	}

	merged, err := merger.Merge(mergeSet, cfg.MergeLidar == "merge-keep")
	if err != nil {
		return err
	}
	if cfg.LidarFilter == "filter" {
		return merger.Crop(merged, "merged_filtered.laz", cfg.BBox())
	}
	return nil
}

// downloadBasename extracts the tile filename from a product URL.
func downloadBasename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
