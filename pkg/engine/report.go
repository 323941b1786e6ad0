package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Stage is a step of an installation run.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageConnect    Stage = "connect"
	StageTransfer   Stage = "transfer"
	StagePermission Stage = "permission"
	StageExecute    Stage = "execute"
	StageCleanup    Stage = "cleanup"
)

// Stages lists all stages in the order in which they run.
var Stages = []Stage{
	StageExtract,
	StageConnect,
	StageTransfer,
	StagePermission,
	StageExecute,
	StageCleanup,
}

// StageResult is the outcome of a single stage.
type StageResult struct {
	Stage    Stage
	Skipped  bool
	Err      error
	Duration time.Duration
}

// Status returns a short human readable status.
func (r StageResult) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "failed"
	default:
		return "ok"
	}
}

// Report collects the stage results of a run.
type Report struct {
	Results []StageResult
}

// Result returns the result of a stage and whether it was recorded.
func (r *Report) Result(stage Stage) (StageResult, bool) {
	for _, result := range r.Results {
		if result.Stage == stage {
			return result, true
		}
	}
	return StageResult{}, false
}

// Failed reports whether any stage failed.
func (r *Report) Failed() bool {
	for _, result := range r.Results {
		if result.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the errors of all failed stages.
func (r *Report) Err() error {
	var errs []error
	for _, result := range r.Results {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.Stage, result.Err))
		}
	}
	return errors.Join(errs...)
}

// Log writes one line per stage.
func (r *Report) Log(logger *zerolog.Logger) {
	for _, result := range r.Results {
		event := logger.Info()
		if result.Err != nil {
			event = logger.Error().Err(result.Err)
		}

		event.
			Str("stage", string(result.Stage)).
			Str("status", result.Status()).
			Dur("duration", result.Duration).
			Msg("Stage summary")
	}
}

func (r *Report) add(result StageResult) {
	r.Results = append(r.Results, result)
}
