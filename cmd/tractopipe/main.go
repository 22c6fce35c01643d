package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fiberlab-data/tractopipe/internal/config"
	"github.com/fiberlab-data/tractopipe/internal/gradients"
	"github.com/fiberlab-data/tractopipe/internal/ledger"
	"github.com/fiberlab-data/tractopipe/internal/monitoring"
	"github.com/fiberlab-data/tractopipe/internal/pipeline"
	"github.com/fiberlab-data/tractopipe/internal/toolexec"
)

const version = "0.2.0"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		handleRun(args, false)
	case "plan":
		handleRun(args, true)
	case "gradients":
		handleGradients(args)
	case "runs":
		handleRuns(args)
	case "version":
		fmt.Printf("tractopipe version %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tractopipe - diffusion-MRI tractography pipeline driver

Usage: tractopipe <command> [options]

Commands:
  run        Execute the full tractography pipeline for one subject
  plan       Print the stage plan for a configuration without executing
  gradients  Validate a bvals/bvecs gradient table pair
  runs       List recent pipeline runs from the run ledger
  version    Show tractopipe version
  help       Show this help message

Required inputs for run/plan:
  --subject <id>       Subject identifier (working directory is scoped to it)
  --dwi <file>         Diffusion-weighted imaging volume
  --bvals <file>       FSL-format b-values file
  --bvecs <file>       FSL-format b-vectors file
  --outdir <dir>       Output directory (provenance logs land in <outdir>/logs)
  --tempdir <dir>      Temp root for working artifacts

Tracking options:
  --global             Use global tractography instead of local tracking
  --mtracks <n>        Millions of streamlines to generate (local only, default 10)
  --maxlength <mm>     Maximum streamline length (local only, default 250)
  --cutoff <v>         FOD amplitude cutoff (local only, default 0.06)
  --seed-gmwmi         Seed at the gray/white-matter interface
                       (default: dynamic white-matter seeding)
  --sift-mtracks <n>   SIFT-filter down to n million streamlines (0 = no SIFT)
  --sift2              Compute per-streamline SIFT2 weights

Anatomy options (skip the corresponding derivation stages):
  --nodif-brain <file>       Pre-supplied brain-only b0 volume
  --nodif-brain-mask <file>  Pre-supplied binary brain mask
  --t1 <file>                Anatomical T1 volume
  --fs-subjects-dir <dir>    FreeSurfer subjects directory

Environment and housekeeping:
  --fsl-init <file>    FSL environment init script (default /etc/fsl/5.0/fsl.sh)
  --mrtrix-init <file> MRtrix environment init script
  --no-compress        Write uncompressed NIfTI volumes
  --delete-raw-tracks  Delete the raw tractogram after filtering
  --overwrite          Allow overwriting artifacts from a previous run
  --ledger <file>      SQLite run-ledger database
  --config <file>      YAML configuration file (flags override it)
  --dry-run            Print commands without executing them
  --debug              Enable diagnostic logging

Examples:
  # Local tracking with SIFT2 weights
  tractopipe run --subject sub-01 --dwi dwi.nii.gz --bvals dwi.bval \
      --bvecs dwi.bvec --outdir out --tempdir /tmp/tracto --sift2

  # Global tractography with a pre-supplied mask
  tractopipe run --subject sub-01 --dwi dwi.nii.gz --bvals dwi.bval \
      --bvecs dwi.bvec --outdir out --tempdir /tmp/tracto --global \
      --nodif-brain nodif_brain.nii.gz --nodif-brain-mask mask.nii.gz

  # Inspect the plan first
  tractopipe plan --subject sub-01 --dwi dwi.nii.gz --bvals dwi.bval \
      --bvecs dwi.bvec --outdir out --tempdir /tmp/tracto --sift-mtracks 2`)
}

// parseRunConfig builds the run configuration from defaults, the optional
// YAML file, and explicitly set flags, in that order.
func parseRunConfig(fs *flag.FlagSet, args []string) (*config.Run, bool, bool, error) {
	subject := fs.String("subject", "", "Subject identifier")
	dwi := fs.String("dwi", "", "DWI volume")
	bvals := fs.String("bvals", "", "b-values file")
	bvecs := fs.String("bvecs", "", "b-vectors file")
	outdir := fs.String("outdir", "", "Output directory")
	tempdir := fs.String("tempdir", "", "Temp root for working artifacts")
	threads := fs.Int("threads", 0, "Thread count passed to the external tools")
	global := fs.Bool("global", false, "Use global tractography")
	mtracks := fs.Float64("mtracks", config.DefaultMTracks, "Millions of streamlines")
	maxlength := fs.Float64("maxlength", config.DefaultMaxLength, "Maximum streamline length (mm)")
	cutoff := fs.Float64("cutoff", config.DefaultCutoff, "FOD amplitude cutoff")
	seedGMWMI := fs.Bool("seed-gmwmi", false, "Seed at the gray/white-matter interface")
	siftMTracks := fs.Float64("sift-mtracks", 0, "SIFT target in millions (0 = no SIFT)")
	sift2 := fs.Bool("sift2", false, "Compute SIFT2 weights")
	nodifBrain := fs.String("nodif-brain", "", "Pre-supplied brain-only b0 volume")
	nodifBrainMask := fs.String("nodif-brain-mask", "", "Pre-supplied brain mask")
	t1 := fs.String("t1", "", "Anatomical T1 volume")
	fsSubjectsDir := fs.String("fs-subjects-dir", "", "FreeSurfer subjects directory")
	noCompress := fs.Bool("no-compress", false, "Write uncompressed NIfTI volumes")
	deleteRawTracks := fs.Bool("delete-raw-tracks", false, "Delete raw tractogram after filtering")
	overwrite := fs.Bool("overwrite", false, "Allow overwriting artifacts from a previous run")
	fslInit := fs.String("fsl-init", config.DefaultFSLInit, "FSL environment init script")
	mrtrixInit := fs.String("mrtrix-init", "", "MRtrix environment init script")
	ledgerPath := fs.String("ledger", "", "SQLite run-ledger database")
	configPath := fs.String("config", "", "YAML configuration file")
	dryRun := fs.Bool("dry-run", false, "Print commands without executing")
	debug := fs.Bool("debug", false, "Enable diagnostic logging")
	if err := fs.Parse(args); err != nil {
		return nil, false, false, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, false, false, err
	}

	// Flags the user actually set override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "subject":
			cfg.Subject = *subject
		case "dwi":
			cfg.DWI = *dwi
		case "bvals":
			cfg.Bvals = *bvals
		case "bvecs":
			cfg.Bvecs = *bvecs
		case "outdir":
			cfg.Outdir = *outdir
		case "tempdir":
			cfg.Tempdir = *tempdir
		case "threads":
			cfg.Threads = *threads
		case "global":
			cfg.Global = *global
		case "mtracks":
			cfg.MTracks = *mtracks
		case "maxlength":
			cfg.MaxLength = *maxlength
		case "cutoff":
			cfg.Cutoff = *cutoff
		case "seed-gmwmi":
			cfg.SeedGMWMI = *seedGMWMI
		case "sift-mtracks":
			cfg.SIFTMTracks = *siftMTracks
		case "sift2":
			cfg.SIFT2 = *sift2
		case "nodif-brain":
			cfg.NodifBrain = *nodifBrain
		case "nodif-brain-mask":
			cfg.NodifBrainMask = *nodifBrainMask
		case "t1":
			cfg.T1 = *t1
		case "fs-subjects-dir":
			cfg.FSSubjectsDir = *fsSubjectsDir
		case "no-compress":
			cfg.NoCompress = *noCompress
		case "delete-raw-tracks":
			cfg.DeleteRawTracks = *deleteRawTracks
		case "overwrite":
			cfg.Overwrite = *overwrite
		case "fsl-init":
			cfg.FSLInit = *fslInit
		case "mrtrix-init":
			cfg.MRtrixInit = *mrtrixInit
		case "ledger":
			cfg.LedgerPath = *ledgerPath
		}
	})

	return cfg, *dryRun, *debug, nil
}

func handleRun(args []string, planOnly bool) {
	name := "run"
	if planOnly {
		name = "plan"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg, dryRun, debug, err := parseRunConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !debug {
		monitoring.SetLogger(nil)
	}

	if planOnly {
		plan, err := pipeline.Build(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Planning failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stage plan for subject %s:\n", cfg.Subject)
		for i, stage := range plan.Stages {
			if stage.Cleanup != "" {
				fmt.Printf("  %d. %s (delete %s)\n", i+1, stage.Name, stage.Cleanup)
				continue
			}
			fmt.Printf("  %d. %s [%s]\n", i+1, stage.Name, stage.Tool)
		}
		return
	}

	runner := &pipeline.Runner{
		Config: cfg,
		Invoker: &toolexec.ShellInvoker{
			FSLInit:    cfg.FSLInit,
			MRtrixInit: cfg.MRtrixInit,
			DryRun:     dryRun,
		},
		Observer: consoleObserver{},
		Version:  version,
		DryRun:   dryRun,
	}

	out, err := runner.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		os.Exit(1)
	}
	if dryRun {
		return
	}

	fmt.Printf("\nProvenance written to: %s/logs\n", cfg.Outdir)
	fmt.Printf("Tractogram: %s\n", out.Tracks)
	if out.SIFTTracks != "" {
		fmt.Printf("Filtered tractogram: %s\n", out.SIFTTracks)
	}
	if out.SIFT2Weights != "" {
		fmt.Printf("Streamline weights: %s\n", out.SIFT2Weights)
	}
}

func handleGradients(args []string) {
	fs := flag.NewFlagSet("gradients", flag.ExitOnError)
	bvals := fs.String("bvals", "", "b-values file (required)")
	bvecs := fs.String("bvecs", "", "b-vectors file (required)")
	fs.Parse(args)

	if *bvals == "" || *bvecs == "" {
		fmt.Fprintln(os.Stderr, "Error: --bvals and --bvecs are required")
		fs.Usage()
		os.Exit(1)
	}

	table, err := gradients.Load(*bvals, *bvecs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Gradient table invalid: %v\n", err)
		os.Exit(1)
	}
	if err := table.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Gradient table invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Gradient table OK: %d volumes, %d b=0, shells %v\n",
		table.Count(), table.B0Count(), table.Shells())
}

func handleRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	ledgerPath := fs.String("ledger", "", "SQLite run-ledger database (required)")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	fs.Parse(args)

	if *ledgerPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --ledger is required")
		fs.Usage()
		os.Exit(1)
	}

	led, err := ledger.Open(*ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	defer led.Close()

	runs, err := led.Recent(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return
	}

	for _, r := range runs {
		line := fmt.Sprintf("%s  %-10s  %-9s  started %s",
			r.RunID, r.Subject, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.FinishedAt != nil {
			line += fmt.Sprintf("  finished %s", r.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		if r.Error != "" {
			line += fmt.Sprintf("  (%s)", r.Error)
		}
		fmt.Println(line)
	}
}
