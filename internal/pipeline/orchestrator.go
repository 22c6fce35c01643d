package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/fiberlab-data/tractopipe/internal/artifacts"
	"github.com/fiberlab-data/tractopipe/internal/toolexec"
)

// Outputs is the terminal artifact tuple of a successful run. Empty fields
// mean the corresponding stage was not planned.
type Outputs struct {
	Tracks       string
	SIFTTracks   string
	SIFT2Weights string
}

// Observer receives progress notifications during execution. Verbosity is
// observer configuration, not orchestrator control flow.
type Observer interface {
	OnStageStart(s Stage)
	OnStageComplete(s Stage, d time.Duration)
	OnRunSummary(out Outputs, d time.Duration)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) OnStageStart(Stage)                   {}
func (NopObserver) OnStageComplete(Stage, time.Duration) {}
func (NopObserver) OnRunSummary(Outputs, time.Duration)  {}

// Orchestrator executes a plan strictly sequentially: every stage's output
// is a hard input dependency for later stages, and the external tools
// already contend for the configured thread budget internally.
type Orchestrator struct {
	Store    *artifacts.Store
	Invoker  toolexec.Invoker
	Observer Observer

	// DryRun skips artifact existence checks so the invoker can narrate
	// the full command sequence without any file ever being produced.
	DryRun bool
}

// Execute runs the plan. On the first failure the remaining stages are
// abandoned; no stage is retried, since external tool failures are
// typically deterministic.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan) (Outputs, error) {
	obs := o.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	runStart := time.Now()
	for _, stage := range plan.Stages {
		obs.OnStageStart(stage)
		stageStart := time.Now()

		if stage.Cleanup != "" {
			if err := o.Store.Delete(stage.Cleanup); err != nil {
				return Outputs{}, err
			}
			obs.OnStageComplete(stage, time.Since(stageStart))
			continue
		}

		paths := make(map[artifacts.Role]string)
		for _, role := range stage.Inputs {
			if o.DryRun {
				paths[role] = o.Store.Resolve(role)
				continue
			}
			path, err := o.Store.Require(role)
			if err != nil {
				return Outputs{}, err
			}
			paths[role] = path
		}
		for _, role := range stage.Outputs {
			if o.DryRun {
				paths[role] = o.Store.Resolve(role)
				continue
			}
			path, err := o.Store.Prepare(role)
			if err != nil {
				return Outputs{}, err
			}
			paths[role] = path
		}

		res, err := o.Invoker.Invoke(ctx, stage.Tool, stage.Args(paths), o.Store.Dir())
		if err != nil {
			return Outputs{}, &StageExecutionError{
				StageID:    stage.ID,
				Tool:       stage.Tool,
				ExitStatus: -1,
				Output:     err.Error(),
			}
		}
		if res.ExitStatus != 0 {
			return Outputs{}, &StageExecutionError{
				StageID:    stage.ID,
				Tool:       stage.Tool,
				ExitStatus: res.ExitStatus,
				Output:     diagnostic(res),
			}
		}

		for _, role := range stage.Outputs {
			o.Store.Register(role, paths[role])
		}
		obs.OnStageComplete(stage, time.Since(stageStart))
	}

	// The raw tracks path is recorded even when a cleanup stage deleted
	// the file: provenance reflects what was produced.
	out := Outputs{Tracks: o.Store.Resolve(artifacts.RoleTracks)}
	if plan.Has(StageFilterTracks) {
		out.SIFTTracks = o.Store.Resolve(artifacts.RoleSIFTTracks)
	}
	if plan.Has(StageComputeWeights) {
		out.SIFT2Weights = o.Store.Resolve(artifacts.RoleSIFT2Weights)
	}
	obs.OnRunSummary(out, time.Since(runStart))
	return out, nil
}

// diagnostic prefers stderr but falls back to stdout; some tools write
// their failure reason to the wrong stream.
func diagnostic(res toolexec.Result) string {
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(res.Stdout)
}
