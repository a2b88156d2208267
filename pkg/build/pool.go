package build

import (
	"context"
	"runtime"
	"sync"
)

// Job is one source directory to build with its own orchestrator. Jobs of one
// run should share a Cache so a directory listed twice is built once.
type Job struct {
	SourceDir    string
	Orchestrator *Orchestrator
}

// JobResult pairs a Result with the position of its job in the input.
type JobResult struct {
	Index  int
	Job    Job
	Result Result
}

// RunPool builds jobs on numWorkers goroutines and streams results as they
// finish. Without continueOnError, the first failure cancels running builds
// and the remaining jobs fail with the context error.
func RunPool(ctx context.Context, jobs []Job, numWorkers int, continueOnError bool) <-chan JobResult {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	type indexed struct {
		i   int
		job Job
	}
	jobsChan := make(chan indexed, len(jobs))
	resultsChan := make(chan JobResult, len(jobs))

	runCtx, cancel := context.WithCancel(ctx)
	var once sync.Once

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range jobsChan {
				if err := runCtx.Err(); err != nil {
					res := Failure(ij.job.SourceDir, StepCheck, err)
					resultsChan <- JobResult{Index: ij.i, Job: ij.job, Result: res}
					continue
				}

				res := ij.job.Orchestrator.Build(runCtx, ij.job.SourceDir)
				resultsChan <- JobResult{Index: ij.i, Job: ij.job, Result: res}

				if !res.OK() && !continueOnError {
					once.Do(cancel)
				}
			}
		}()
	}

	for i, job := range jobs {
		jobsChan <- indexed{i: i, job: job}
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		cancel()
		close(resultsChan)
	}()

	return resultsChan
}

// Collect drains a RunPool channel into a slice ordered like the input jobs.
func Collect(results <-chan JobResult, n int) []Result {
	out := make([]Result, n)
	for r := range results {
		out[r.Index] = r.Result
	}
	return out
}
