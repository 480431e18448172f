/*
Package events provides an in-memory event broker for quiver's pub/sub
notifications.

The events package implements a lightweight, topic-agnostic event bus:
every published Event is broadcast to every current subscriber over a
buffered channel. It exists purely for observability — logging,
dashboards, a future CLI "watch" command — no scheduler correctness
depends on it; a dropped event (full subscriber buffer) is silently
skipped.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher → Event Channel (buffer: 100)                  │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each, drop-if-full)       │
	└────────────────────────────────────────────────────────┘

# Event Types

	job.scheduled      a job was dispatched to a worker
	job.completed       a job's independent write landed
	job.failed          a job's read or transform failed
	collective.flush    a collective phase replayed WriteIntents
	worker.joined       a rank announced itself to the master
	worker.left         a rank's poison pill was acknowledged
	worker.poison_pill  a worker received its shutdown sentinel
	engine.all_done     every job reached the finished state

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			log.Logger.Info().Str("type", string(event.Type)).Msg(event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventJobCompleted,
		Message: "IU.ANMO/raw -> processed",
	})

# See Also

  - pkg/scheduler for where job lifecycle events originate
  - pkg/log for the structured logger subscribers typically forward to
*/
package events
