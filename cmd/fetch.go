package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ces0157/usgs-data-tool/internal/config"
	"github.com/ces0157/usgs-data-tool/internal/pipeline"
)

var fetchFlags = struct {
	configPath string
	aoi        []float64
	dataType   string
	outputDir  string

	demSpec        string
	demOutput      string
	pngPrecision   int
	demMerge       string
	demMergeMethod string
	demFilterType  string
	demResolution  string

	mergeLidar     string
	lidarFilter    string
	lidarReproject string

	crsMismatch string
	verbose     bool
}{}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download USGS data for a bounding box and merge it into terrain artifacts",
	Long: `Queries The National Map for DEM and/or LiDAR products inside the
area of interest, downloads the tiles into per-project directories under
the output directory, and merges/crops/converts them per the flags.

Required inputs (--aoi, --type, --output-dir) may come from the command
line or from a JSON config file given with --config; explicit flags win.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := assembleConfig(cmd)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if fetchFlags.verbose {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		p := pipeline.New(cfg, log)
		if err := p.Run(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Download complete!")
		return nil
	},
}

// assembleConfig merges flag values over config-file defaults. A flag
// the user set explicitly always wins; otherwise a config value is
// used; otherwise the built-in default stands.
func assembleConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if fetchFlags.configPath != "" {
		if err := cfg.Load(fetchFlags.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("aoi") || len(cfg.AOI) == 0 {
		cfg.AOI = fetchFlags.aoi
	}
	setIf := func(name string, dst *string, v string) {
		if flags.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	setIf("type", &cfg.Type, fetchFlags.dataType)
	setIf("output-dir", &cfg.OutputDir, fetchFlags.outputDir)
	setIf("dem-spec", &cfg.DEMSpec, fetchFlags.demSpec)
	setIf("dem-output", &cfg.DEMOutput, fetchFlags.demOutput)
	setIf("dem-merge", &cfg.DEMMerge, fetchFlags.demMerge)
	setIf("dem-merge-method", &cfg.DEMMergeMethod, fetchFlags.demMergeMethod)
	setIf("dem-filter-type", &cfg.DEMFilterType, fetchFlags.demFilterType)
	setIf("dem-resolution", &cfg.DEMResolution, fetchFlags.demResolution)
	setIf("merge-lidar", &cfg.MergeLidar, fetchFlags.mergeLidar)
	setIf("lidar-filter", &cfg.LidarFilter, fetchFlags.lidarFilter)
	setIf("lidar-reproject", &cfg.LidarReproject, fetchFlags.lidarReproject)
	setIf("crs-mismatch", &cfg.CRSMismatch, fetchFlags.crsMismatch)
	if flags.Changed("png-precision") || cfg.PNGPrecision == 0 {
		cfg.PNGPrecision = fetchFlags.pngPrecision
	}

	if len(cfg.AOI) == 0 || cfg.Type == "" || cfg.OutputDir == "" {
		return nil, fmt.Errorf("--aoi, --type and --output-dir are required (on the command line or in the config file)")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	f := fetchCmd.Flags()

	f.StringVar(&fetchFlags.configPath, "config", "", "path to a JSON configuration file supplying defaults")
	f.Float64SliceVar(&fetchFlags.aoi, "aoi", nil, "area of interest: minLon,minLat,maxLon,maxLat (WGS84)")
	f.StringVar(&fetchFlags.dataType, "type", "", "data to pull: dem, lidar or both")
	f.StringVar(&fetchFlags.outputDir, "output-dir", "", "output directory for downloaded data")

	f.StringVar(&fetchFlags.demSpec, "dem-spec", "regular", "DEM product line: regular or seamless")
	f.StringVar(&fetchFlags.demOutput, "dem-output", "tif", "DEM output encoding: tif, png or r16")
	f.IntVar(&fetchFlags.pngPrecision, "png-precision", 16, "PNG bit depth: 8 or 16")
	f.StringVar(&fetchFlags.demMerge, "dem-merge", "merge-keep", "no-merge, merge-keep or merge-delete")
	f.StringVar(&fetchFlags.demMergeMethod, "dem-merge-method", "all", "merge scope: project, all or both")
	f.StringVar(&fetchFlags.demFilterType, "dem-filter-type", "none", "crop to the AOI: none, merge or all")
	f.StringVar(&fetchFlags.demResolution, "dem-resolution", "auto", "merged output edge length: none, auto or a pixel count")

	f.StringVar(&fetchFlags.mergeLidar, "merge-lidar", "merge-keep", "no-merge, merge-keep or merge-delete")
	f.StringVar(&fetchFlags.lidarFilter, "lidar-filter", "filter", "crop merged point clouds to the AOI: filter or no-filter")
	f.StringVar(&fetchFlags.lidarReproject, "lidar-reproject", "none", "align point clouds to the DEM zone: none or auto (requires --type both)")

	f.StringVar(&fetchFlags.crsMismatch, "crs-mismatch", "prompt", "when inputs disagree on CRS: prompt, abort or proceed")
	f.BoolVar(&fetchFlags.verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(fetchCmd)
}
