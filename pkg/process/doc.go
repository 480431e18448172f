/*
Package process implements the Processing API: the entry point that
turns an input store, an output path, a tag-rename map, and a transform
into a populated output store.

# Architecture

	┌────────────────────── PROCESSING API ─────────────────────┐
	│                                                            │
	│  1. Assert output path absent                              │
	│  2. Enumerate (station, tag) pairs:                         │
	│     station has metadata AND tag ∈ tag_map                  │
	│  3. Rank 0 (or sole process) creates the output store,      │
	│     copies station XML, writes the event catalog            │
	│  4. Barrier                                                 │
	│  5. Every rank re-opens the output store                     │
	│  6. Dispatch:                                                │
	│       bus configured, size ≥ 2  → scheduler.Distributed      │
	│       otherwise                  → scheduler.Local            │
	└────────────────────────────────────────────────────────────┘

Run is called once per OS process. Under the distributed backend every
rank calls Run against the same input/output paths and the same Bus;
under the local backend there is exactly one caller.

# See Also

  - pkg/scheduler for the two backends this dispatches to
  - pkg/store for the Store this seeds and hands to each scheduler
*/
package process
