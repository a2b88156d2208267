package asset

import (
	"context"
	"fmt"

	"github.com/grovetools/assetbuild/pkg/build"
	"github.com/grovetools/assetbuild/pkg/logger"
	"github.com/sirupsen/logrus"
)

// FailurePolicy decides what Bind does when the build fails.
type FailurePolicy string

const (
	// PolicyAbort returns the build error from Bind.
	PolicyAbort FailurePolicy = "abort"
	// PolicyContinue logs the failure and binds whatever the output
	// directory holds, which may be stale or incomplete.
	PolicyContinue FailurePolicy = "continue"
)

// ParsePolicy converts a config value; the empty string means PolicyAbort.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicyContinue:
		return PolicyContinue, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %q or %q)", s, PolicyAbort, PolicyContinue)
	}
}

// BuildError is returned by BuiltCode.Bind under PolicyAbort.
type BuildError struct {
	Result build.Result
}

func (e *BuildError) Error() string {
	return e.Result.Err.Error()
}

func (e *BuildError) Unwrap() error { return e.Result.Err }

// BuiltCode wraps a source directory: binding it first builds the source with
// the orchestrator, then binds the output directory as a DirectoryCode.
type BuiltCode struct {
	SourceDir    string
	Orchestrator *build.Orchestrator
	Policy       FailurePolicy
	Logger       *logrus.Logger
}

// FromSource creates a BuiltCode with PolicyAbort.
func FromSource(sourceDir string, o *build.Orchestrator) *BuiltCode {
	return &BuiltCode{SourceDir: sourceDir, Orchestrator: o, Policy: PolicyAbort}
}

// Bind builds if needed and returns the output location with the build result attached.
func (b *BuiltCode) Bind(ctx context.Context, target Target) (*Location, error) {
	log := logger.OrDiscard(b.Logger).WithFields(logrus.Fields{
		"source": b.SourceDir,
		"target": target.Name,
	})

	res := b.Orchestrator.Build(ctx, b.SourceDir)
	if !res.OK() {
		if b.Policy != PolicyContinue {
			return nil, &BuildError{Result: res}
		}
		log.WithError(res.Err).Warn("Build failed, continuing with existing output")
	}

	outDir := res.OutputDir
	if outDir == "" {
		outDir = b.Orchestrator.OutputPath(b.SourceDir)
	}

	loc, err := FromDirectory(outDir).Bind(ctx, target)
	if err != nil {
		return nil, err
	}
	loc.Build = &res
	log.WithFields(logrus.Fields{"path": loc.Path, "hash": loc.Hash, "status": res.Status}).Debug("Bound code location")
	return loc, nil
}
