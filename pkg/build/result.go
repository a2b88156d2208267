package build

import (
	"errors"
	"fmt"
	"time"

	"github.com/grovetools/assetbuild/pkg/freshness"
)

// Status is the overall outcome of Orchestrator.Build.
type Status string

const (
	StatusBuilt    Status = "built"    // full build sequence succeeded
	StatusFresh    Status = "fresh"    // stamp newer than every source file
	StatusMemoized Status = "memoized" // already handled earlier in this run
	StatusFailed   Status = "failed"
)

// Step names one stage of the build sequence.
type Step string

const (
	StepCheck        Step = "check"
	StepEngines      Step = "engines"
	StepClean        Step = "clean"
	StepInstall      Step = "install"
	StepCompile      Step = "compile"
	StepCopyManifest Step = "copy-manifest"
	StepProdInstall  Step = "prod-install"
	StepStamp        Step = "stamp"
)

// StepRecord describes one executed step.
type StepRecord struct {
	Step     Step          `json:"step"`
	Command  string        `json:"command,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// StepError is the error of a failed build, naming the step that failed.
type StepError struct {
	Step      Step
	SourceDir string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("build %s: %s: %v", e.SourceDir, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result is the explicit outcome of a build. Callers decide what a failure
// means for the deployment.
type Result struct {
	Status    Status           `json:"status"`
	SourceDir string           `json:"source_dir"`
	OutputDir string           `json:"output_dir"`
	StampFile string           `json:"stamp_file"`
	Reason    freshness.Reason `json:"reason,omitempty"`
	Changed   string           `json:"changed_file,omitempty"`
	Steps     []StepRecord     `json:"steps,omitempty"`
	Duration  time.Duration    `json:"duration"`
	Failed    Step             `json:"failed_step,omitempty"`
	Error     string           `json:"error,omitempty"`
	Err       error            `json:"-"`
}

// Failure returns a failed Result for sourceDir at step.
func Failure(sourceDir string, step Step, err error) Result {
	res := Result{SourceDir: sourceDir}
	res.setFailed(step, err)
	return res
}

// setFailed marks r failed and keeps the reason in its JSON form.
func (r *Result) setFailed(step Step, err error) {
	r.Status = StatusFailed
	r.Err = &StepError{Step: step, SourceDir: r.SourceDir, Err: err}
	r.Failed = step
	r.Error = r.Err.Error()
}

// OK reports whether the output directory can be used as built.
func (r Result) OK() bool {
	return r.Status != StatusFailed
}

// FailedStep returns the step that failed, or "" on success.
func (r Result) FailedStep() Step {
	if r.Failed != "" {
		return r.Failed
	}
	var se *StepError
	if errors.As(r.Err, &se) {
		return se.Step
	}
	return ""
}
