/*
Package log provides structured logging for quiver using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

quiver's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler.master")        │          │
	│  │  - WithRank(3)                              │          │
	│  │  - WithWorker("rank-3")                     │          │
	│  │  - WithJob("IU.ANMO", "raw")                │          │
	│  │  - WithStation("IU.ANMO")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "scheduler.worker",         │          │
	│  │    "rank": 3,                                │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "job dispatched"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF job dispatched component=scheduler.worker rank=3 │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all quiver packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithRank: Add the bus rank a worker or master process is running as
  - WithWorker: Add the JobQueue worker identity (e.g. "rank-3")
  - WithJob: Add station and input_tag for one job
  - WithStation: Add just the station id

# Usage

Initializing the Logger:

	import "github.com/quiverio/quiver/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("processing engine starting")
	log.Debug("probing bus for incoming messages")
	log.Warn("stream buffer nearing capacity")
	log.Error("failed to open store")
	log.Fatal("cannot start without a bus configuration") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("station", "IU.ANMO").
		Int("trace_count", 3).
		Msg("job buffered")

	log.Logger.Error().
		Err(err).
		Int("rank", 2).
		Msg("worker lost connection to rank 0")

Component Loggers:

	// Create component-specific logger
	masterLog := log.WithComponent("scheduler.master")
	masterLog.Info().Msg("entering collective phase")

	// Multiple context fields
	workerLog := log.WithComponent("scheduler.worker").
		With().Int("rank", 3).Logger()
	workerLog.Info().Msg("requesting item from master")
	workerLog.Error().Err(err).Msg("job failed")

Context Logger Helpers:

	// Rank-specific logs
	rankLog := log.WithRank(3)
	rankLog.Info().Msg("joined the fleet")

	// Job-specific logs
	jobLog := log.WithJob("IU.ANMO", "raw")
	jobLog.Info().Msg("transform applied")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/quiverio/quiver/pkg/log"
	)

	func main() {
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("quiver starting")

		workerLog := log.WithComponent("scheduler.worker")
		workerLog.Info().
			Int("rank", 1).
			Int("job_count", 5).
			Msg("processing assigned jobs")

		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "bus").
			Msg("failed to dial peer rank")

		log.Info("quiver stopped")
	}

# Integration Points

This package integrates with:

  - pkg/scheduler: Logs dropped jobs, local pool start, the master's final barrier
  - pkg/bus: Logs TCP accept, handshake, read and decode failures; TracingBus
    logs every message at debug level
  - pkg/store: Logs applied collective writes (debug) and the BusMode
    compression override
  - pkg/process: Logs output-store seeding
  - cmd/quiver: Initializes the global logger from CLI flags

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across codebase

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (rank, station, input_tag)

Don't:
  - Use Debug level in production
  - Log in tight loops (e.g. per-sample), log per job instead
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
