// Package pipeline plans and executes the tractography stage sequence:
// brain-volume and mask derivation, fiber-orientation estimation, local or
// global streamline generation, and optional filtering and weighting.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fiberlab-data/tractopipe/internal/artifacts"
	"github.com/fiberlab-data/tractopipe/internal/config"
)

// Stage identifiers, in the order they can appear in a plan.
const (
	StageDeriveBrainVolume = "derive-brain-volume"
	StageDeriveBrainMask   = "derive-brain-mask"
	StageEstimateFOD       = "estimate-fod"
	StageGenerateTracks    = "generate-streamlines"
	StageGlobalTracks      = "global-tractography"
	StageFilterTracks      = "filter-streamlines"
	StageComputeWeights    = "compute-weights"
	StageDeleteRawTracks   = "delete-raw-tracks"
)

// Stage describes one planned unit of work: the external tool to run, the
// artifact roles it consumes and produces, and how to render its concrete
// arguments once those roles resolve to paths. Cleanup stages carry a role
// to delete instead of a tool.
type Stage struct {
	ID      string
	Name    string
	Tool    string
	Inputs  []artifacts.Role
	Outputs []artifacts.Role
	Cleanup artifacts.Role

	buildArgs func(paths map[artifacts.Role]string) []string
}

// Args renders the stage's command arguments for the resolved paths.
func (s Stage) Args(paths map[artifacts.Role]string) []string {
	if s.buildArgs == nil {
		return nil
	}
	return s.buildArgs(paths)
}

// Plan is the ordered stage sequence for one run. It is built once from a
// validated configuration and read-only thereafter.
type Plan struct {
	Stages []Stage
}

// StageIDs returns the planned stage identifiers in execution order.
func (p *Plan) StageIDs() []string {
	ids := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		ids = append(ids, s.ID)
	}
	return ids
}

// Has reports whether the plan contains a stage with the given ID.
func (p *Plan) Has(id string) bool {
	for _, s := range p.Stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Build derives the stage plan from a configuration. It has no side
// effects: nothing is executed and nothing touches the filesystem.
// Planning fails with a ConfigurationError when the tracking-mode
// parameter combination is incoherent.
func Build(cfg *config.Run) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	threads := strconv.Itoa(cfg.Threads)
	var stages []Stage

	if cfg.NodifBrain == "" {
		stages = append(stages, Stage{
			ID:      StageDeriveBrainVolume,
			Name:    "Derive b0-average brain volume",
			Tool:    "dwiextract",
			Inputs:  []artifacts.Role{artifacts.RoleDWI, artifacts.RoleBvals, artifacts.RoleBvecs},
			Outputs: []artifacts.Role{artifacts.RoleNodifBrain},
			buildArgs: func(p map[artifacts.Role]string) []string {
				return []string{
					"-bzero", p[artifacts.RoleDWI],
					"-fslgrad", p[artifacts.RoleBvecs], p[artifacts.RoleBvals],
					"-nthreads", threads, "-",
					"|", "mrmath", "-", "mean", p[artifacts.RoleNodifBrain], "-axis", "3",
				}
			},
		})
	}

	if cfg.NodifBrainMask == "" {
		stages = append(stages, Stage{
			ID:      StageDeriveBrainMask,
			Name:    "Derive brain mask",
			Tool:    "bet2",
			Inputs:  []artifacts.Role{artifacts.RoleNodifBrain},
			Outputs: []artifacts.Role{artifacts.RoleNodifBrainMask},
			buildArgs: func(p map[artifacts.Role]string) []string {
				return []string{p[artifacts.RoleNodifBrain], betBase(p[artifacts.RoleNodifBrainMask]), "-m", "-n", "-f", "0.25"}
			},
		})
	}

	stages = append(stages, Stage{
		ID:   StageEstimateFOD,
		Name: "Estimate fiber-orientation distribution",
		Tool: "dwi2response",
		Inputs: []artifacts.Role{
			artifacts.RoleDWI, artifacts.RoleBvals, artifacts.RoleBvecs, artifacts.RoleNodifBrainMask,
		},
		Outputs: []artifacts.Role{artifacts.RoleWMResponse, artifacts.RoleFOD},
		buildArgs: func(p map[artifacts.Role]string) []string {
			grad := []string{"-fslgrad", p[artifacts.RoleBvecs], p[artifacts.RoleBvals]}
			args := []string{"tournier", p[artifacts.RoleDWI]}
			args = append(args, grad...)
			args = append(args, "-mask", p[artifacts.RoleNodifBrainMask], "-nthreads", threads, p[artifacts.RoleWMResponse])
			args = append(args, "&&", "dwi2fod", "csd", p[artifacts.RoleDWI], p[artifacts.RoleWMResponse], p[artifacts.RoleFOD])
			args = append(args, grad...)
			args = append(args, "-mask", p[artifacts.RoleNodifBrainMask], "-nthreads", threads)
			return args
		},
	})

	if cfg.Global {
		stages = append(stages, Stage{
			ID:   StageGlobalTracks,
			Name: "Global tractography",
			Tool: "tckglobal",
			Inputs: []artifacts.Role{
				artifacts.RoleDWI, artifacts.RoleBvals, artifacts.RoleBvecs,
				artifacts.RoleWMResponse, artifacts.RoleNodifBrainMask,
			},
			Outputs: []artifacts.Role{artifacts.RoleTracks},
			buildArgs: func(p map[artifacts.Role]string) []string {
				return []string{
					p[artifacts.RoleDWI], p[artifacts.RoleWMResponse],
					"-fslgrad", p[artifacts.RoleBvecs], p[artifacts.RoleBvals],
					"-mask", p[artifacts.RoleNodifBrainMask],
					"-nthreads", threads,
					p[artifacts.RoleTracks],
				}
			},
		})
		// Global tractography optimizes per-streamline weights jointly
		// with the streamlines themselves; SIFT and SIFT2 are never
		// planned in this branch.
		return &Plan{Stages: stages}, nil
	}

	count := strconv.FormatInt(int64(cfg.MTracks*1e6), 10)
	seedGMWMI := cfg.SeedGMWMI
	genInputs := []artifacts.Role{artifacts.RoleFOD}
	if seedGMWMI {
		genInputs = append(genInputs, artifacts.RoleNodifBrainMask)
	}
	stages = append(stages, Stage{
		ID:      StageGenerateTracks,
		Name:    fmt.Sprintf("Generate %sM streamlines", ftoa(cfg.MTracks)),
		Tool:    "tckgen",
		Inputs:  genInputs,
		Outputs: []artifacts.Role{artifacts.RoleTracks},
		buildArgs: func(p map[artifacts.Role]string) []string {
			args := []string{
				p[artifacts.RoleFOD], p[artifacts.RoleTracks],
				"-select", count,
				"-maxlength", ftoa(cfg.MaxLength),
				"-cutoff", ftoa(cfg.Cutoff),
			}
			if seedGMWMI {
				args = append(args, "-seed_gmwmi", p[artifacts.RoleNodifBrainMask])
			} else {
				args = append(args, "-seed_dynamic", p[artifacts.RoleFOD])
			}
			return append(args, "-nthreads", threads)
		},
	})

	siftPlanned := cfg.SIFTMTracks > 0
	if siftPlanned {
		term := strconv.FormatInt(int64(cfg.SIFTMTracks*1e6), 10)
		stages = append(stages, Stage{
			ID:      StageFilterTracks,
			Name:    fmt.Sprintf("Filter streamlines down to %sM", ftoa(cfg.SIFTMTracks)),
			Tool:    "tcksift",
			Inputs:  []artifacts.Role{artifacts.RoleTracks, artifacts.RoleFOD},
			Outputs: []artifacts.Role{artifacts.RoleSIFTTracks},
			buildArgs: func(p map[artifacts.Role]string) []string {
				return []string{
					p[artifacts.RoleTracks], p[artifacts.RoleFOD], p[artifacts.RoleSIFTTracks],
					"-term_number", term,
					"-nthreads", threads,
				}
			},
		})
	}

	if cfg.SIFT2 {
		// With no SIFT stage, weights are computed over the raw
		// streamlines. That matches the historical driver.
		weightInput := artifacts.RoleTracks
		if siftPlanned {
			weightInput = artifacts.RoleSIFTTracks
		}
		stages = append(stages, Stage{
			ID:      StageComputeWeights,
			Name:    "Compute per-streamline weights",
			Tool:    "tcksift2",
			Inputs:  []artifacts.Role{weightInput, artifacts.RoleFOD},
			Outputs: []artifacts.Role{artifacts.RoleSIFT2Weights},
			buildArgs: func(p map[artifacts.Role]string) []string {
				return []string{
					p[weightInput], p[artifacts.RoleFOD], p[artifacts.RoleSIFT2Weights],
					"-nthreads", threads,
				}
			},
		})
	}

	// Raw tracks may only be deleted once nothing can still need them, so
	// this is always the final stage, and only when a filtered set exists
	// to stand in for them.
	if cfg.DeleteRawTracks && siftPlanned {
		stages = append(stages, Stage{
			ID:      StageDeleteRawTracks,
			Name:    "Delete raw tracks",
			Cleanup: artifacts.RoleTracks,
		})
	}

	return &Plan{Stages: stages}, nil
}

// betBase strips the NIfTI extension and the _mask suffix from the mask
// path: bet2 appends both to the output base name it is given.
func betBase(maskPath string) string {
	base := strings.TrimSuffix(maskPath, ".gz")
	base = strings.TrimSuffix(base, ".nii")
	return strings.TrimSuffix(base, "_mask")
}
