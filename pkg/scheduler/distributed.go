package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/quiverio/quiver/pkg/bus"
	"github.com/quiverio/quiver/pkg/buffer"
	"github.com/quiverio/quiver/pkg/events"
	"github.com/quiverio/quiver/pkg/log"
	"github.com/quiverio/quiver/pkg/metrics"
	"github.com/quiverio/quiver/pkg/queue"
	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
	"github.com/rs/zerolog"
)

// Config tunes the scheduling loops. Zero-value Config is usable: resolve
// fills in every unset field's default when Run starts.
type Config struct {
	// MaxBufferBytes is the worker-side StreamBuffer ceiling that forces
	// a write request. Default 512 MiB.
	MaxBufferBytes int64
	// WriterThreshold overrides the half-fleet-waiting threshold that
	// triggers a collective write. Default ⌈N/2⌉.
	WriterThreshold int
	// TickInterval is the sleep between protocol loop iterations when
	// nothing is ready. Default 10ms.
	TickInterval time.Duration
}

const defaultMaxBufferBytes = 512 << 20

func (c Config) resolve(fleetSize int) Config {
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = defaultMaxBufferBytes
	}
	if c.WriterThreshold <= 0 {
		c.WriterThreshold = (fleetSize + 1) / 2 // ceil(N/2)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Millisecond
	}
	return c
}

// Distributed drives the master/worker protocol over a Bus. Construct one
// Distributed per rank; Run dispatches to the master loop on rank 0 and
// the worker loop everywhere else.
type Distributed struct {
	Bus       bus.Bus
	Input     store.Store
	Output    store.Store
	Queue     *queue.JobQueue // only consulted on rank 0
	TagMap    types.TagMap
	Transform types.TransformFunc
	Config    Config

	// Events, if set, receives job lifecycle notifications. Rank 0
	// only; purely observational, never consulted for correctness.
	Events *events.Broker
}

func (d *Distributed) publish(typ events.EventType, message string) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(&events.Event{Type: typ, Message: message})
}

func workerName(rank int) string { return fmt.Sprintf("rank-%d", rank) }

// WorkerName returns the JobQueue worker identity Distributed uses
// internally for rank, so callers building the queue's worker set don't
// need to know the naming scheme.
func WorkerName(rank int) string { return workerName(rank) }

func otherRanks(size int) []int {
	out := make([]int, 0, size-1)
	for r := 1; r < size; r++ {
		out = append(out, r)
	}
	return out
}

// Run executes this rank's side of the protocol until ALL_DONE (or
// equivalent) and the final barrier complete.
func (d *Distributed) Run(ctx context.Context) error {
	cfg := d.Config.resolve(d.Bus.Size())
	d.Config = cfg

	if d.Bus.Rank() == 0 {
		return d.runMaster(ctx)
	}
	return d.runWorker(ctx)
}

func (d *Distributed) runMaster(ctx context.Context) error {
	logger := log.WithComponent("scheduler.master")
	ticker := time.NewTicker(d.Config.TickInterval)
	defer ticker.Stop()

	collector := metrics.NewCollector(d.Queue)
	collector.Start(d.Config.TickInterval * 50)
	defer collector.Stop()

	var writersWaiting []int

	for {
		if d.Queue.AllDone() {
			if err := d.Bus.WaitAll(ctx, otherRanks(d.Bus.Size()), bus.AllDone, nil); err != nil {
				return err
			}
			logger.Info().Msg("all jobs finished, entering final barrier")
			d.publish(events.EventAllDone, "all jobs reached the finished state")
			return d.Bus.Barrier(ctx)
		}

		allPillsSeen := d.Queue.AllPoisonPillsReceived()
		if len(writersWaiting) >= d.Config.WriterThreshold || (len(writersWaiting) > 0 && allPillsSeen) {
			if err := d.collectivePhaseMaster(ctx, &writersWaiting); err != nil {
				return err
			}
			continue
		}

		_, ok, err := d.Bus.Probe(ctx)
		if err != nil {
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}

		env, err := d.Bus.RecvAny(ctx)
		if err != nil {
			return err
		}

		switch env.Tag {
		case bus.WorkerRequestsItem:
			worker := workerName(env.Source)
			timer := metrics.NewTimer()
			job, err := d.Queue.GetJobForWorker(worker)
			var payload []byte
			if err != nil {
				payload, err = encodeItem(nil)
				if err != nil {
					return err
				}
			} else {
				payload, err = encodeItem(&job)
				if err != nil {
					return err
				}
				timer.ObserveDuration(metrics.SchedulingLatency)
				metrics.JobsScheduledTotal.Inc()
			}
			if err := d.Bus.Send(ctx, env.Source, bus.MasterSendsItem, payload); err != nil {
				return err
			}

		case bus.WorkerDoneWithItem:
			args, result, err := decodeResult(env.Payload)
			if err != nil {
				return err
			}
			if err := d.Queue.Complete(args, result, workerName(env.Source)); err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			if result.Skipped {
				d.publish(events.EventJobFailed, args.String())
			} else {
				d.publish(events.EventJobCompleted, args.String())
			}

		case bus.WorkerRequestsWrite:
			writersWaiting = append(writersWaiting, env.Source)

		case bus.PoisonPillReceived:
			if err := d.Queue.PoisonPillReceived(workerName(env.Source)); err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			d.publish(events.EventWorkerLeft, workerName(env.Source))

		default:
			return fmt.Errorf("scheduler: master received unexpected tag %s from rank %d", env.Tag, env.Source)
		}
	}
}

// collectivePhaseMaster runs the master's side of §4.5.3: broadcast
// MASTER_FORCES_WRITE, contribute an empty WriteIntent list, replay the
// gathered union, drain stale write requests, then barrier.
func (d *Distributed) collectivePhaseMaster(ctx context.Context, writersWaiting *[]int) error {
	if err := d.Bus.WaitAll(ctx, otherRanks(d.Bus.Size()), bus.MasterForcesWrite, nil); err != nil {
		return err
	}

	payload, err := encodeIntents(nil)
	if err != nil {
		return err
	}
	timer := metrics.NewTimer()
	gathered, err := d.Bus.AllGather(ctx, payload)
	if err != nil {
		return err
	}
	timer.ObserveDuration(metrics.BusRTT)
	if err := replayCollective(d.Output, gathered); err != nil {
		return err
	}
	d.publish(events.EventCollectiveFlush, fmt.Sprintf("replayed %d ranks' write intents", len(gathered)))

	*writersWaiting = nil
	for {
		env, ok, err := d.Bus.Probe(ctx)
		if err != nil {
			return err
		}
		if !ok || env.Tag != bus.WorkerRequestsWrite {
			break
		}
		if _, err := d.Bus.RecvAny(ctx); err != nil {
			return err
		}
	}

	return d.Bus.Barrier(ctx)
}

func replayCollective(out store.Store, gathered [][]byte) error {
	for _, raw := range gathered {
		intents, err := decodeIntents(raw)
		if err != nil {
			return err
		}
		for i := range intents {
			if err := out.WriteCollective(&intents[i]); err != nil {
				return fmt.Errorf("scheduler: collective write: %w", err)
			}
			metrics.CollectiveWritesTotal.Inc()
		}
	}
	return nil
}

func (d *Distributed) runWorker(ctx context.Context) error {
	logger := log.WithComponent("scheduler.worker").With().Int("rank", d.Bus.Rank()).Logger()
	ticker := time.NewTicker(d.Config.TickInterval)
	defer ticker.Stop()

	buf := buffer.New()
	waitingForItem := false
	waitingForWrite := false
	poisonPillReceived := false

	for {
		if env, ok, err := d.Bus.Probe(ctx); err != nil {
			return err
		} else if ok && env.Tag == bus.AllDone {
			if _, err := d.Bus.RecvAny(ctx); err != nil {
				return err
			}
			return d.Bus.Barrier(ctx)
		}

		if env, ok, err := d.Bus.Probe(ctx); err != nil {
			return err
		} else if ok && env.Tag == bus.MasterForcesWrite {
			if _, err := d.Bus.RecvAny(ctx); err != nil {
				return err
			}
			if err := d.collectivePhaseWorker(ctx, buf); err != nil {
				return err
			}
			if err := d.flushBuffer(ctx, buf); err != nil {
				return err
			}
			buf.Clear()
			waitingForWrite = false
			continue
		}

		if waitingForWrite || poisonPillReceived {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}

		if !waitingForItem {
			if err := d.Bus.Send(ctx, 0, bus.WorkerRequestsItem, nil); err != nil {
				return err
			}
			waitingForItem = true
		}

		env, ok, err := d.Bus.Probe(ctx)
		if err != nil {
			return err
		}
		if !ok || env.Tag != bus.MasterSendsItem {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}

		env, err = d.Bus.Recv(ctx, 0, bus.MasterSendsItem)
		if err != nil {
			return err
		}
		waitingForItem = false

		args, isPill, err := decodeItem(env.Payload)
		if err != nil {
			return err
		}

		if isPill {
			if buf.Len() > 0 {
				if err := d.Bus.Send(ctx, 0, bus.WorkerRequestsWrite, nil); err != nil {
					return err
				}
				waitingForWrite = true
			}
			if err := d.Bus.Send(ctx, 0, bus.PoisonPillReceived, nil); err != nil {
				return err
			}
			poisonPillReceived = true
			continue
		}

		buffered, err := d.runOneJob(args, buf, logger)
		if err != nil {
			return err
		}
		if !buffered {
			// The read failed, the transform failed, or it returned
			// nothing to write. The job still needs to reach
			// "finished" exactly once — report it directly instead of
			// waiting for a flush that will never include it.
			payload, err := encodeResult(args, &types.JobResult{Skipped: true})
			if err != nil {
				return err
			}
			if err := d.Bus.Send(ctx, 0, bus.WorkerDoneWithItem, payload); err != nil {
				return err
			}
		}
		if buf.Size() >= d.Config.MaxBufferBytes {
			if err := d.Bus.Send(ctx, 0, bus.WorkerRequestsWrite, nil); err != nil {
				return err
			}
			waitingForWrite = true
		}
	}
}

// runOneJob reads, transforms, and buffers one job's Stream. It reports
// whether the Stream was buffered — false means the job is already done
// (read failure, transform failure, or an empty result) and the caller
// must report completion itself, since nothing will flush it later.
func (d *Distributed) runOneJob(args types.JobArgs, buf *buffer.StreamBuffer, logger zerolog.Logger) (bool, error) {
	stream, station, err := d.Input.ReadWaveformAndStation(args.Station, args.InputTag)
	if err != nil {
		logger.Warn().Err(err).Str("station", args.Station).Str("tag", args.InputTag).Msg("failed to read input, skipping job")
		metrics.JobsFailedTotal.Inc()
		return false, nil
	}

	out, err := runTransform(d.Transform, stream, station)
	if err != nil {
		logger.Warn().Err(err).Str("station", args.Station).Str("tag", args.InputTag).Msg("transform failed, dropping job")
		metrics.JobsFailedTotal.Inc()
		return false, nil
	}
	if out == nil || out.Empty() {
		return false, nil
	}
	if err := buf.Put(args, out); err != nil {
		return false, err
	}
	return true, nil
}

// runTransform applies transform, converting a panic into an error so a
// misbehaving user callback never takes down the worker loop.
func runTransform(transform types.TransformFunc, stream *types.Stream, station *types.StationXML) (out *types.Stream, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panicked: %v", r)
		}
	}()
	return transform(stream, station)
}

// collectivePhaseWorker runs this worker's side of §4.5.3.
func (d *Distributed) collectivePhaseWorker(ctx context.Context, buf *buffer.StreamBuffer) error {
	entries := buf.Entries()
	var mine []types.WriteIntent
	for _, entry := range entries {
		outputTag := d.TagMap[entry.Key.InputTag]
		for i := range entry.Stream.Traces {
			trace := &entry.Stream.Traces[i]
			intent, err := d.Output.DescribeCollective(trace, outputTag)
			if err != nil {
				return fmt.Errorf("scheduler: describe collective: %w", err)
			}
			trace.SetIntent(intent)
			mine = append(mine, *intent)
		}
	}

	payload, err := encodeIntents(mine)
	if err != nil {
		return err
	}
	gathered, err := d.Bus.AllGather(ctx, payload)
	if err != nil {
		return err
	}
	if err := replayCollective(d.Output, gathered); err != nil {
		return err
	}

	return d.Bus.Barrier(ctx)
}

// flushBuffer performs the independent write for every trace buffered
// since the last collective phase and reports completion to the master.
func (d *Distributed) flushBuffer(ctx context.Context, buf *buffer.StreamBuffer) error {
	for _, entry := range buf.Entries() {
		for i := range entry.Stream.Traces {
			trace := &entry.Stream.Traces[i]
			intent := trace.Intent()
			if intent == nil {
				return fmt.Errorf("scheduler: trace for %s has no stashed WriteIntent", entry.Key)
			}
			if err := d.Output.WriteIndependent(intent, trace.Samples); err != nil {
				return fmt.Errorf("scheduler: independent write for %s: %w", entry.Key, err)
			}
		}

		result := &types.JobResult{
			OutputTag:  d.TagMap[entry.Key.InputTag],
			TraceCount: len(entry.Stream.Traces),
			ByteCount:  entry.Stream.ByteSize(),
		}
		payload, err := encodeResult(entry.Key, result)
		if err != nil {
			return err
		}
		if err := d.Bus.Send(ctx, 0, bus.WorkerDoneWithItem, payload); err != nil {
			return err
		}
	}
	return nil
}
