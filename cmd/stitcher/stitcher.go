package main

import(
	"flag"
	"log"

	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/metrics"
	"github.com/abworrall/tile-stitcher/pkg/stitch"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

var(
	fVerbosity int
	fLayout string
	fOrder string
	fGridSizeX int
	fGridSizeY int
	fOverlapX float64
	fOverlapY float64
	fSortByCaptureTime bool
	fComputeOverlap bool
	fSequential bool
	fSeqRange int
	fCheckPeaks int
	fSubpixel bool
	fRegThreshold float64
	fRelativeThreshold float64
	fAbsoluteThreshold float64
	fIgnoreZ bool
	fFusion string
	fBlendFraction float64
	fInterpolation string
	fWorkers int
	fOutputDir string
	fOutputName string
	fDumpCorrelation bool
	fMetricsAddr string
)

func init() {
	def := stitch.NewConfig()

	flag.IntVar(&fVerbosity, "v", 0, "verbosity; anything above zero logs debug detail")
	flag.StringVar(&fLayout, "layout", def.Layout, "row-by-row, column-by-column, snake-by-rows, snake-by-columns, positions-from-file, unknown-positions")
	flag.StringVar(&fOrder, "order", def.Order, "grid order, e.g. right-down, left-up, down-right")
	flag.IntVar(&fGridSizeX, "gridx", 0, "tiles per row")
	flag.IntVar(&fGridSizeY, "gridy", 0, "tiles per column")
	flag.Float64Var(&fOverlapX, "overlapx", def.OverlapX, "fraction of a tile shared with its horizontal neighbour")
	flag.Float64Var(&fOverlapY, "overlapy", def.OverlapY, "fraction of a tile shared with its vertical neighbour")
	flag.BoolVar(&fSortByCaptureTime, "bytime", false, "sort tiles by EXIF capture time before placing them")

	flag.BoolVar(&fComputeOverlap, "register", def.ComputeOverlap, "register the tiles, instead of trusting the layout")
	flag.BoolVar(&fSequential, "sequential", false, "only compare each tile with the next few tiles")
	flag.IntVar(&fSeqRange, "seqrange", def.SeqRange, "how many following tiles to compare in sequential mode")
	flag.IntVar(&fCheckPeaks, "peaks", def.CheckPeaks, "how many phase correlation peaks to verify")
	flag.BoolVar(&fSubpixel, "subpixel", def.Subpixel, "refine shifts to subpixel accuracy")
	flag.Float64Var(&fRegThreshold, "regthreshold", def.RegThreshold, "minimum correlation for a pair to be used")
	flag.Float64Var(&fRelativeThreshold, "relthreshold", def.RelativeThreshold, "max/avg displacement ratio that marks a bad link")
	flag.Float64Var(&fAbsoluteThreshold, "absthreshold", def.AbsoluteThreshold, "average displacement, in pixels, that marks a bad link")
	flag.BoolVar(&fIgnoreZ, "ignorez", false, "do not optimize the z position of 3D tiles")

	flag.StringVar(&fFusion, "fusion", def.Fusion, "linear-blending, average, average-ignore-zero, max, min, min-ignore-zero, overlay, none")
	flag.Float64Var(&fBlendFraction, "blend", def.BlendFraction, "fraction of each tile edge to feather, for linear-blending")
	flag.StringVar(&fInterpolation, "interpolation", def.Interpolation, "linear or nearest")
	flag.IntVar(&fWorkers, "workers", 0, "number of worker goroutines, 0 means one per CPU")

	flag.StringVar(&fOutputDir, "outdir", def.OutputDirectory, "directory for the output files")
	flag.StringVar(&fOutputName, "o", def.OutputName, "name of the fused image; the extension picks the format")
	flag.BoolVar(&fDumpCorrelation, "dumpcorrelation", false, "write every correlation surface as a PNG")
	flag.StringVar(&fMetricsAddr, "metrics", "", "serve prometheus metrics on this address, e.g. :9090")
	flag.Parse()

	log.Printf("Starting\n")
}

// applyFlags copies only the flags given on the command line, so they
// override a config file without the flag defaults clobbering it.
func applyFlags(c *stitch.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v": c.Verbosity = fVerbosity
		case "layout": c.Layout = fLayout
		case "order": c.Order = fOrder
		case "gridx": c.GridSizeX = fGridSizeX
		case "gridy": c.GridSizeY = fGridSizeY
		case "overlapx": c.OverlapX = fOverlapX
		case "overlapy": c.OverlapY = fOverlapY
		case "bytime": c.SortByCaptureTime = fSortByCaptureTime
		case "register": c.ComputeOverlap = fComputeOverlap
		case "sequential": c.Sequential = fSequential
		case "seqrange": c.SeqRange = fSeqRange
		case "peaks": c.CheckPeaks = fCheckPeaks
		case "subpixel": c.Subpixel = fSubpixel
		case "regthreshold": c.RegThreshold = fRegThreshold
		case "relthreshold": c.RelativeThreshold = fRelativeThreshold
		case "absthreshold": c.AbsoluteThreshold = fAbsoluteThreshold
		case "ignorez": c.IgnoreZ = fIgnoreZ
		case "fusion": c.Fusion = fFusion
		case "blend": c.BlendFraction = fBlendFraction
		case "interpolation": c.Interpolation = fInterpolation
		case "workers": c.Workers = fWorkers
		case "outdir": c.OutputDirectory = fOutputDir
		case "o": c.OutputName = fOutputName
		case "dumpcorrelation": c.DumpCorrelation = fDumpCorrelation
		case "metrics": c.MetricsAddr = fMetricsAddr
		}
	})
}

func main() {
	inputs, err := tiles.ExpandFilesAndDirs(flag.Args()...)
	if err != nil {
		log.Fatal(err)
	}

	c := stitch.NewConfig()
	if len(inputs.Configs) > 0 {
		if c, err = stitch.LoadConfig(inputs.Configs[0]); err != nil {
			log.Fatal(err)
		}
	}
	applyFlags(&c)

	// A .txt on the command line is a tile configuration
	if len(inputs.Layouts) > 0 {
		c.TileConfiguration = inputs.Layouts[0]
		if c.Layout == stitch.NewConfig().Layout {
			c.Layout = tiles.PositionsFromFile.String()
		}
	}

	level := logger.LogInfo
	if c.Verbosity > 0 {
		level = logger.LogDebug
	}
	l := logger.NewStdLogger(level)
	l.Debugf("Final configuration:-\n\n%s\n", c.AsYaml())

	m := metrics.NewRun()
	if c.MetricsAddr != "" {
		m.Serve(c.MetricsAddr, l)
	}

	s := stitch.New(c, l, m)
	if err := s.Run(inputs.Images); err != nil {
		log.Fatalf("Stitching failed, err: %v\n", err)
	}

	for _, f := range s.Files {
		log.Printf("Output file written '%s'\n", f)
	}
}
