// SPDX-License-Identifier: Apache-2.0
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Backend compiles one task
type Backend interface {
	Name() string
	// Check returns a *Skipped when target cannot be built here
	Check(ctx context.Context, target string) error
	// Build compiles the task and returns the paths of its binaries
	Build(ctx context.Context, task Task) ([]string, error)
}

// Orchestrator runs tasks on a fixed number of workers
type Orchestrator struct {
	Backend Backend
	// Jobs is the number of concurrent builds; <= 0 means one per CPU
	Jobs int
	// Timeout bounds each task; zero means no limit
	Timeout time.Duration
	Logger  *log.Logger
	// OnResult is called from the collecting goroutine as tasks finish
	OnResult func(Result)
}

type indexedResult struct {
	index  int
	result Result
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

func (o *Orchestrator) jobs(n int) int {
	jobs := o.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > n {
		jobs = n
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// Run builds every task and returns results in input order. It never
// returns early: a failed, skipped, timed out or panicking task only
// affects its own result. Cancelling ctx fails the remaining tasks.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	work := make(chan int)
	done := make(chan indexedResult)

	var g errgroup.Group
	for w := 0; w < o.jobs(len(tasks)); w++ {
		g.Go(func() error {
			for i := range work {
				done <- indexedResult{index: i, result: o.runTask(ctx, tasks[i])}
			}
			return nil
		})
	}

	go func() {
		for i := range tasks {
			work <- i
		}
		close(work)
	}()

	go func() {
		g.Wait()
		close(done)
	}()

	for r := range done {
		results[r.index] = r.result
		if o.OnResult != nil {
			o.OnResult(r.result)
		}
	}
	return results
}

func (o *Orchestrator) runTask(ctx context.Context, task Task) (res Result) {
	res = Result{Task: task, State: StatePending}
	start := time.Now()
	logger := o.logger().With("crate", task.Crate, "target", task.Target)

	defer func() {
		if r := recover(); r != nil {
			res.State = StateFailed
			res.Binaries = nil
			res.Reason = fmt.Sprintf("backend panicked: %v", r)
			res.Err = &Failure{Crate: task.Crate, Target: task.Target, Reason: res.Reason}
			logger.Error("Build panicked", "panic", r)
		}
		res.Duration = time.Since(start)
	}()

	if ctx.Err() != nil {
		o.fail(&res, "cancelled before start", ctx.Err())
		return res
	}

	if err := res.transition(StateRunning); err != nil {
		o.fail(&res, "internal state error", err)
		return res
	}

	taskCtx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	if err := o.Backend.Check(taskCtx, task.Target); err != nil {
		var skipped *Skipped
		if errors.As(err, &skipped) {
			res.transition(StateSkipped)
			res.Reason = skipped.Reason
			res.Err = skipped
			logger.Warn("Target skipped", "reason", skipped.Reason)
			return res
		}
		o.fail(&res, o.classify(ctx, taskCtx, "target check failed"), err)
		return res
	}

	logger.Info("Building", "backend", o.Backend.Name())
	bins, err := o.Backend.Build(taskCtx, task)
	if err != nil {
		o.fail(&res, o.classify(ctx, taskCtx, "build failed"), err)
		logger.Error("Build failed", "reason", res.Reason)
		return res
	}

	if len(bins) == 0 {
		o.fail(&res, "build produced no binaries", nil)
		return res
	}
	for _, b := range bins {
		info, err := os.Stat(b)
		if err != nil {
			o.fail(&res, "binary not found after build", err)
			return res
		}
		if info.IsDir() {
			o.fail(&res, "binary path is a directory", fmt.Errorf("%s", b))
			return res
		}
	}

	res.transition(StateSucceeded)
	res.Binaries = bins
	logger.Info("Build succeeded", "binaries", len(bins), "duration", time.Since(start).Round(time.Millisecond))
	return res
}

// classify distinguishes timeouts and cancellation from ordinary failures
func (o *Orchestrator) classify(parent, taskCtx context.Context, fallback string) string {
	switch {
	case parent.Err() != nil:
		return "cancelled"
	case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", o.Timeout)
	default:
		return fallback
	}
}

func (o *Orchestrator) fail(res *Result, reason string, err error) {
	if res.transition(StateFailed) != nil {
		res.State = StateFailed
	}
	res.Reason = reason
	res.Err = &Failure{Crate: res.Task.Crate, Target: res.Task.Target, Reason: reason, Err: err}
}
