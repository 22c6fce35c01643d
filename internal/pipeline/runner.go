package pipeline

import (
	"context"
	"time"

	"github.com/fiberlab-data/tractopipe/internal/artifacts"
	"github.com/fiberlab-data/tractopipe/internal/config"
	"github.com/fiberlab-data/tractopipe/internal/gradients"
	"github.com/fiberlab-data/tractopipe/internal/ledger"
	"github.com/fiberlab-data/tractopipe/internal/monitoring"
	"github.com/fiberlab-data/tractopipe/internal/provenance"
	"github.com/fiberlab-data/tractopipe/internal/toolexec"
)

// Runner wires one full run together: validation, planning, provenance,
// the optional ledger, and plan execution.
type Runner struct {
	Config   *config.Run
	Invoker  toolexec.Invoker
	Observer Observer

	// Version is the driver build version recorded in runtime provenance.
	Version string

	// DryRun narrates the command sequence without executing anything and
	// without writing provenance or ledger entries.
	DryRun bool
}

// Run executes the pipeline end to end. The ordering contract: validation
// and gradient checks first (fail fast, zero tool invocations), then the
// runtime and inputs provenance records, then plan execution, and the
// outputs record only after success.
func (r *Runner) Run(ctx context.Context) (Outputs, error) {
	cfg := r.Config
	if err := cfg.Validate(); err != nil {
		return Outputs{}, err
	}

	table, err := gradients.Load(cfg.Bvals, cfg.Bvecs)
	if err != nil {
		return Outputs{}, config.Errorf("invalid gradient table: %v", err)
	}
	if err := table.Validate(); err != nil {
		return Outputs{}, config.Errorf("invalid gradient table: %v", err)
	}

	plan, err := Build(cfg)
	if err != nil {
		return Outputs{}, err
	}

	store, err := artifacts.NewStore(cfg.Tempdir, cfg.Subject, !cfg.NoCompress, cfg.Overwrite)
	if err != nil {
		return Outputs{}, err
	}
	store.Register(artifacts.RoleDWI, cfg.DWI)
	store.Register(artifacts.RoleBvals, cfg.Bvals)
	store.Register(artifacts.RoleBvecs, cfg.Bvecs)
	if cfg.T1 != "" {
		store.Register(artifacts.RoleT1, cfg.T1)
	}
	if cfg.NodifBrain != "" {
		store.Register(artifacts.RoleNodifBrain, cfg.NodifBrain)
	}
	if cfg.NodifBrainMask != "" {
		store.Register(artifacts.RoleNodifBrainMask, cfg.NodifBrainMask)
	}

	orc := &Orchestrator{
		Store:    store,
		Invoker:  r.Invoker,
		Observer: r.Observer,
		DryRun:   r.DryRun,
	}

	if r.DryRun {
		return orc.Execute(ctx, plan)
	}

	recorder := provenance.NewRecorder(cfg.Outdir)
	if err := recorder.Record("runtime", r.runtimeRecord(ctx)); err != nil {
		return Outputs{}, err
	}
	if err := recorder.Record("inputs", cfg.ToMap()); err != nil {
		return Outputs{}, err
	}

	var led *ledger.Ledger
	var runID string
	if cfg.LedgerPath != "" {
		led, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			monitoring.Logf("run ledger unavailable: %v", err)
			led = nil
		} else {
			defer led.Close()
			runID, err = led.StartRun(cfg.Subject, cfg.ToMap())
			if err != nil {
				monitoring.Logf("failed to record run start in ledger: %v", err)
				led = nil
			}
		}
	}

	out, err := orc.Execute(ctx, plan)
	if err != nil {
		if led != nil {
			if lerr := led.FinishRun(runID, ledger.StatusFailed, err.Error()); lerr != nil {
				monitoring.Logf("failed to record run failure in ledger: %v", lerr)
			}
		}
		return Outputs{}, err
	}

	if err := recorder.Record("outputs", outputsRecord(out)); err != nil {
		return Outputs{}, err
	}
	if led != nil {
		if lerr := led.FinishRun(runID, ledger.StatusCompleted, ""); lerr != nil {
			monitoring.Logf("failed to record run completion in ledger: %v", lerr)
		}
	}
	return out, nil
}

// runtimeRecord captures the tool and toolkit versions and the start
// timestamp. Version probe failures degrade to "unknown"; they must not
// abort a run.
func (r *Runner) runtimeRecord(ctx context.Context) map[string]interface{} {
	fslVersion, mrtrixVersion := "unknown", "unknown"
	if prober, ok := r.Invoker.(toolexec.VersionProber); ok {
		fslVersion = prober.FSLVersion(ctx)
		mrtrixVersion = prober.MRtrixVersion(ctx)
	}
	return map[string]interface{}{
		"tool":           "tractopipe",
		"tool_version":   r.Version,
		"fsl_version":    fslVersion,
		"mrtrix_version": mrtrixVersion,
		"timestamp":      time.Now().Format(time.RFC3339),
	}
}

// outputsRecord maps the terminal artifacts to the outputs provenance
// record, with explicit nulls for stages that were not planned.
func outputsRecord(out Outputs) map[string]interface{} {
	record := map[string]interface{}{
		"tracks":        out.Tracks,
		"sift_tracks":   nil,
		"sift2_weights": nil,
	}
	if out.SIFTTracks != "" {
		record["sift_tracks"] = out.SIFTTracks
	}
	if out.SIFT2Weights != "" {
		record["sift2_weights"] = out.SIFT2Weights
	}
	return record
}
