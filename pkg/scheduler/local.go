package scheduler

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/quiverio/quiver/pkg/events"
	"github.com/quiverio/quiver/pkg/log"
	"github.com/quiverio/quiver/pkg/metrics"
	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
	"github.com/rs/zerolog"
)

// ForkSafetyStatus reports whether a process pool may fork(2) safely
// given the linked numerical libraries.
type ForkSafetyStatus int

const (
	// ForkSafe means the pool may use forked worker processes.
	ForkSafe ForkSafetyStatus = iota
	// ForkUnsafe means the pool must fall back to threads/goroutines.
	ForkUnsafe
)

// DetectForkSafety inspects the linked numerical-library signature. Go's
// runtime never forks this process's workers — Local always uses
// goroutines — so this always reports ForkSafe; the enum and call site
// exist for a future build that links a C BLAS via cgo.
func DetectForkSafety() ForkSafetyStatus {
	return ForkSafe
}

// localJob is either a real job or the poison-pill sentinel seeded once
// per worker.
type localJob struct {
	args types.JobArgs
	pill bool
}

// Local is a fixed-size goroutine pool draining one shared job channel,
// with an exclusive lock per input/output file since there is exactly one
// writer at a time and no collective requirement to satisfy.
type Local struct {
	Input     store.Store
	Output    store.Store
	Jobs      []types.Job
	TagMap    types.TagMap
	Transform types.TransformFunc

	// Workers overrides the pool size. Zero means
	// min(runtime.NumCPU(), len(Jobs)).
	Workers int

	// Events, if set, receives job lifecycle notifications. Purely
	// observational, never consulted for correctness.
	Events *events.Broker

	inputMu  sync.Mutex
	outputMu sync.Mutex
}

func (l *Local) publish(typ events.EventType, message string) {
	if l.Events == nil {
		return
	}
	l.Events.Publish(&events.Event{Type: typ, Message: message})
}

func (l *Local) workerCount() int {
	if l.Workers > 0 {
		return l.Workers
	}
	n := runtime.NumCPU()
	if len(l.Jobs) < n {
		n = len(l.Jobs)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run seeds the job channel with every job plus one poison pill per
// worker and drains it with a fixed pool of goroutines, collecting the
// first error any worker reports.
func (l *Local) Run(ctx context.Context) error {
	if DetectForkSafety() == ForkUnsafe {
		os.Setenv("OPENBLAS_NUM_THREADS", "1")
	}

	workers := l.workerCount()
	logger := log.WithComponent("scheduler.local")
	logger.Info().Int("workers", workers).Int("jobs", len(l.Jobs)).Msg("starting local scheduler")

	jobCh := make(chan localJob, len(l.Jobs)+workers)
	for _, j := range l.Jobs {
		jobCh <- localJob{args: j.Args()}
	}
	for i := 0; i < workers; i++ {
		jobCh <- localJob{pill: true}
	}
	close(jobCh)

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errCh <- l.runWorker(ctx, id, jobCh, logger)
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) runWorker(ctx context.Context, id int, jobs <-chan localJob, logger zerolog.Logger) error {
	for job := range jobs {
		if job.pill {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.runOneJob(job.args, logger); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) runOneJob(args types.JobArgs, logger zerolog.Logger) error {
	l.inputMu.Lock()
	stream, station, err := l.Input.ReadWaveformAndStation(args.Station, args.InputTag)
	l.inputMu.Unlock()
	if err != nil {
		logger.Warn().Err(err).Str("station", args.Station).Str("tag", args.InputTag).Msg("failed to read input, skipping job")
		metrics.JobsFailedTotal.Inc()
		l.publish(events.EventJobFailed, args.String())
		return nil
	}

	out, err := runTransform(l.Transform, stream, station)
	if err != nil {
		logger.Warn().Err(err).Str("station", args.Station).Str("tag", args.InputTag).Msg("transform failed, dropping job")
		metrics.JobsFailedTotal.Inc()
		l.publish(events.EventJobFailed, args.String())
		return nil
	}
	if out == nil || out.Empty() {
		return nil
	}

	outputTag, ok := l.TagMap[args.InputTag]
	if !ok {
		return fmt.Errorf("scheduler: no output tag mapped for input tag %q", args.InputTag)
	}

	l.outputMu.Lock()
	defer l.outputMu.Unlock()
	for i := range out.Traces {
		trace := &out.Traces[i]
		intent, err := l.Output.DescribeCollective(trace, outputTag)
		if err != nil {
			return fmt.Errorf("scheduler: describe collective: %w", err)
		}
		if err := l.Output.WriteCollective(intent); err != nil {
			return fmt.Errorf("scheduler: collective write: %w", err)
		}
		if err := l.Output.WriteIndependent(intent, trace.Samples); err != nil {
			return fmt.Errorf("scheduler: independent write: %w", err)
		}
		metrics.CollectiveWritesTotal.Inc()
	}
	metrics.JobsScheduledTotal.Inc()
	l.publish(events.EventJobCompleted, args.String())
	return nil
}
