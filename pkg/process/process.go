package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/quiverio/quiver/pkg/bus"
	"github.com/quiverio/quiver/pkg/events"
	"github.com/quiverio/quiver/pkg/log"
	"github.com/quiverio/quiver/pkg/metrics"
	"github.com/quiverio/quiver/pkg/queue"
	"github.com/quiverio/quiver/pkg/scheduler"
	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
)

// ErrOutputExists is returned when Run's output path is already present.
var ErrOutputExists = errors.New("process: output path already exists")

// ErrEmptyJobSet is returned when no (station, tag) pair in the input
// store has both station metadata and a tag present in the tag map.
var ErrEmptyJobSet = errors.New("process: no (station, tag) pairs matched the tag map")

// Config describes one Processing API invocation. Bus is nil for the
// local (single-process) backend; when set with Size() ≥ 2 the
// distributed scheduler is used instead.
type Config struct {
	InputPath   string
	OutputPath  string
	TagMap      types.TagMap
	Compression store.CompressionConfig

	Bus             bus.Bus
	SchedulerConfig scheduler.Config
	LocalWorkers    int

	// Events, if set, receives job and collective lifecycle
	// notifications from whichever scheduler backend Run dispatches to.
	// Purely observational.
	Events *events.Broker
}

// Run is the Processing API's entry point. Called once per rank (or
// once, for the local backend).
func Run(ctx context.Context, cfg Config, transform types.TransformFunc) error {
	logger := log.WithComponent("process")

	input, err := store.Open(cfg.InputPath, store.CompressionConfig{Codec: types.CompressionNone})
	if err != nil {
		metrics.RegisterComponent("store", false, err.Error())
		return fmt.Errorf("process: open input store: %w", err)
	}
	defer input.Close()
	metrics.RegisterComponent("store", true, "input store open")

	if cfg.Bus != nil {
		metrics.RegisterComponent("bus", true, fmt.Sprintf("rank %d of %d connected", cfg.Bus.Rank(), cfg.Bus.Size()))
	} else {
		// Local backend has no bus to wait on; it's vacuously ready.
		metrics.RegisterComponent("bus", true, "local backend, no bus in use")
	}

	jobs, err := enumerateJobs(input, cfg.TagMap)
	if err != nil {
		return err
	}

	rank, size := 0, 1
	if cfg.Bus != nil {
		rank, size = cfg.Bus.Rank(), cfg.Bus.Size()
	}
	if size >= 2 {
		cfg.Compression.BusMode = true
	}

	if rank == 0 {
		if _, err := os.Stat(cfg.OutputPath); err == nil {
			return fmt.Errorf("%w: %s", ErrOutputExists, cfg.OutputPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("process: stat output path: %w", err)
		}

		output, err := store.Open(cfg.OutputPath, cfg.Compression)
		if err != nil {
			return fmt.Errorf("process: create output store: %w", err)
		}
		seedErr := seedOutput(output, input, jobs)
		if closeErr := output.Close(); seedErr == nil {
			seedErr = closeErr
		}
		if seedErr != nil {
			return seedErr
		}
		logger.Info().Int("jobs", len(jobs)).Msg("seeded output store with station metadata and events")
	}

	if cfg.Bus != nil {
		if err := cfg.Bus.Barrier(ctx); err != nil {
			return fmt.Errorf("process: barrier after seeding output store: %w", err)
		}
	}

	output, err := store.Open(cfg.OutputPath, cfg.Compression)
	if err != nil {
		metrics.RegisterComponent("store", false, err.Error())
		return fmt.Errorf("process: re-open output store: %w", err)
	}
	defer output.Close()
	metrics.RegisterComponent("store", true, "input and output stores open")

	typedJobs := make([]types.Job, len(jobs))
	for i, j := range jobs {
		typedJobs[i] = types.Job{Station: j.Station, InputTag: j.InputTag}
	}

	if cfg.Bus != nil && size >= 2 {
		d := &scheduler.Distributed{
			Bus:       cfg.Bus,
			Input:     input,
			Output:    output,
			TagMap:    cfg.TagMap,
			Transform: transform,
			Config:    cfg.SchedulerConfig,
			Events:    cfg.Events,
		}
		if rank == 0 {
			workers := make([]string, 0, size-1)
			for r := 1; r < size; r++ {
				workers = append(workers, scheduler.WorkerName(r))
			}
			d.Queue = queue.New(typedJobs, workers)
		}
		return d.Run(ctx)
	}

	l := &scheduler.Local{
		Input:     input,
		Output:    output,
		Jobs:      typedJobs,
		TagMap:    cfg.TagMap,
		Transform: transform,
		Workers:   cfg.LocalWorkers,
		Events:    cfg.Events,
	}
	return l.Run(ctx)
}

// enumerateJobs lists every (station, tag) pair whose station has
// metadata in input and whose tag is a key of tagMap, in deterministic
// (station, tag) order.
func enumerateJobs(input *store.BoltStore, tagMap types.TagMap) ([]types.JobArgs, error) {
	stations, err := input.Stations()
	if err != nil {
		return nil, fmt.Errorf("process: list stations: %w", err)
	}

	var jobs []types.JobArgs
	for _, station := range stations {
		xml, err := input.StationXMLBytes(station)
		if err != nil {
			return nil, fmt.Errorf("process: read station metadata for %s: %w", station, err)
		}
		if xml == nil {
			continue
		}

		tags, err := input.TagsFor(station)
		if err != nil {
			return nil, fmt.Errorf("process: list tags for %s: %w", station, err)
		}
		for tag := range tags {
			if _, ok := tagMap[tag]; !ok {
				continue
			}
			jobs = append(jobs, types.JobArgs{Station: station, InputTag: tag})
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Station != jobs[j].Station {
			return jobs[i].Station < jobs[j].Station
		}
		return jobs[i].InputTag < jobs[j].InputTag
	})

	if len(jobs) == 0 {
		return nil, ErrEmptyJobSet
	}
	return jobs, nil
}

// seedOutput copies station XML for every station with at least one job
// and writes the event catalog, once, on a single writer.
func seedOutput(output, input *store.BoltStore, jobs []types.JobArgs) error {
	seen := make(map[string]bool)
	for _, j := range jobs {
		if seen[j.Station] {
			continue
		}
		seen[j.Station] = true
		if err := output.CopyStationXML(input, j.Station); err != nil {
			return fmt.Errorf("process: copy station xml for %s: %w", j.Station, err)
		}
	}

	catalog, err := input.Events()
	if err != nil {
		return fmt.Errorf("process: read event catalog: %w", err)
	}
	if catalog != nil {
		if err := output.WriteEvents(catalog); err != nil {
			return fmt.Errorf("process: write event catalog: %w", err)
		}
	}
	return nil
}
