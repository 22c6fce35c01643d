package main

import (
	"fmt"
	"time"

	"github.com/fiberlab-data/tractopipe/internal/pipeline"
)

// consoleObserver narrates pipeline progress on stdout.
type consoleObserver struct{}

func (consoleObserver) OnStageStart(s pipeline.Stage) {
	fmt.Printf("==> %s\n", s.Name)
}

func (consoleObserver) OnStageComplete(s pipeline.Stage, d time.Duration) {
	fmt.Printf("    done in %s\n", d.Round(time.Millisecond))
}

func (consoleObserver) OnRunSummary(out pipeline.Outputs, d time.Duration) {
	fmt.Printf("\n✓ Pipeline completed in %s\n", d.Round(time.Second))
}
