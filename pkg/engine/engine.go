// Package engine dispatches a scan's adapters concurrently and collects their
// outcomes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scanhub/pkg/adapters"
	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
	"scanhub/pkg/metrics"
	"scanhub/pkg/parsers"
	"scanhub/pkg/tools"
)

const (
	defaultMaxWorkers  = 4
	defaultToolTimeout = 10 * time.Minute
	defaultCancelGrace = 5 * time.Second
)

// Job is one requested tool. A job whose identifier did not resolve carries
// Err instead of an Adapter and is reported without running.
type Job struct {
	Tool      tools.ToolName
	Requested string
	Adapter   adapters.Adapter
	Err       error
}

// Outcome is the result of one job. Err is a *errors.ToolError.
type Outcome struct {
	Job      Job
	Raw      parsers.RawFindings
	Err      error
	Duration time.Duration
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

type EngineOpts struct {
	maxWorkers  int
	toolTimeout time.Duration
	cancelGrace time.Duration
	metrics     metrics.ScanMetrics
}

type OptFunc func(*EngineOpts)

type Engine struct {
	EngineOpts
	log *logger.Logger
}

func NewEngine(log *logger.Logger, opts ...OptFunc) *Engine {
	o := EngineOpts{
		maxWorkers:  defaultMaxWorkers,
		toolTimeout: defaultToolTimeout,
		cancelGrace: defaultCancelGrace,
		metrics:     metrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{EngineOpts: o, log: log}
}

func WithMaxWorkers(n int) OptFunc {
	return func(o *EngineOpts) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

func WithToolTimeout(d time.Duration) OptFunc {
	return func(o *EngineOpts) {
		if d > 0 {
			o.toolTimeout = d
		}
	}
}

// WithCancelGrace bounds how long a cancelled or timed out adapter may take
// to return before it is abandoned.
func WithCancelGrace(d time.Duration) OptFunc {
	return func(o *EngineOpts) {
		if d > 0 {
			o.cancelGrace = d
		}
	}
}

func WithMetrics(m metrics.ScanMetrics) OptFunc {
	return func(o *EngineOpts) {
		if m != nil {
			o.metrics = m
		}
	}
}

// timeouter is implemented by adapters that carry a per-tool timeout.
type timeouter interface {
	Timeout() time.Duration
}

// Run dispatches every job and returns their outcomes in job order. New
// dispatches wait while gate is paused; in-flight adapters keep running.
// onDone is called once per job as it finishes, never concurrently.
// Cancelling ctx cancels in-flight adapters; jobs not yet dispatched are
// reported as cancelled.
func (e *Engine) Run(ctx context.Context, tree adapters.SourceTree, jobs []Job, gate *Gate, onDone func(Outcome)) []Outcome {
	if gate == nil {
		gate = NewGate()
	}

	outcomes := make([]Outcome, len(jobs))
	var doneMu sync.Mutex
	finish := func(i int, o Outcome) {
		doneMu.Lock()
		defer doneMu.Unlock()
		outcomes[i] = o
		if onDone != nil {
			onDone(o)
		}
	}

	var g errgroup.Group
	g.SetLimit(e.maxWorkers)

	for i, job := range jobs {
		if job.Adapter == nil {
			err := job.Err
			if err == nil {
				err = fmt.Errorf("%w: no adapter", scanerrors.ErrToolResolution)
			}
			finish(i, Outcome{Job: job, Err: asToolError(job, err)})
			continue
		}

		if err := gate.Wait(ctx); err != nil {
			finish(i, Outcome{Job: job, Err: asToolError(job, scanerrors.ErrToolCancelled)})
			continue
		}

		g.Go(func() error {
			// A slot may have freed up while the scan was paused again.
			if err := gate.Wait(ctx); err != nil {
				finish(i, Outcome{Job: job, Err: asToolError(job, scanerrors.ErrToolCancelled)})
				return nil
			}
			finish(i, e.runJob(ctx, tree, job))
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

type runResult struct {
	raw parsers.RawFindings
	err error
}

func (e *Engine) runJob(ctx context.Context, tree adapters.SourceTree, job Job) Outcome {
	timeout := e.toolTimeout
	if t, ok := job.Adapter.(timeouter); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan runResult, 1)
	go func() {
		var res runResult
		res.err = e.log.LogToolExecution(scanIDFrom(ctx), string(job.Tool), func() error {
			var err error
			res.raw, err = job.Adapter.Run(tctx, tree)
			return err
		})
		results <- res
	}()

	var res runResult
	select {
	case res = <-results:
	case <-tctx.Done():
		grace := time.NewTimer(e.cancelGrace)
		defer grace.Stop()
		select {
		case res = <-results:
		case <-grace.C:
			e.log.WithTool(string(job.Tool)).Warn("Adapter did not stop within the grace period, abandoning it")
			res.err = tctx.Err()
		}
	}

	o := Outcome{Job: job, Raw: res.raw, Duration: time.Since(start)}
	if res.err != nil {
		o.Err = asToolError(job, classify(ctx, tctx, res.err))
		o.Raw = parsers.RawFindings{Tool: job.Tool, Root: tree.Root}
	}

	status := "succeeded"
	if o.Err != nil {
		status = scanerrors.ToolCode(o.Err)
	}
	e.metrics.ObserveToolRun(ctx, string(job.Tool), status, o.Duration)
	return o
}

// classify maps context expiry onto the tool failure codes: the scan's own
// cancellation wins over the per-tool deadline.
func classify(parent, tctx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		if errors.Is(err, scanerrors.ErrToolCancelled) {
			return err
		}
		return scanerrors.ErrToolCancelled
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		if errors.Is(err, scanerrors.ErrToolTimeout) {
			return err
		}
		return scanerrors.ErrToolTimeout
	}
	return err
}

func asToolError(job Job, err error) error {
	var te *scanerrors.ToolError
	if errors.As(err, &te) {
		return te
	}
	name := string(job.Tool)
	if name == "" {
		name = job.Requested
	}
	return scanerrors.NewToolError(name, err)
}

type scanIDKey struct{}

// WithScanID tags ctx so adapter logs carry the scan id.
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey{}, scanID)
}

func scanIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(scanIDKey{}).(string)
	return id
}
