/*
Package config loads quiver's YAML run configuration by unmarshalling a
single document with gopkg.in/yaml.v3: a plain struct, yaml tags, no
external schema validation beyond what Load checks by hand.

# Document shape

	input_path: /data/raw.quiver
	output_path: /data/processed.quiver
	tag_map:
	  raw: processed
	compression:
	  codec: lz4
	  level: 4
	  checksums: true
	buffer:
	  max_bytes: 536870912
	scheduler:
	  writer_threshold: 2
	  tick_interval: 10ms
	bus:
	  listen: 10.0.0.1:7946
	  peers:
	    - 10.0.0.1:7946
	    - 10.0.0.2:7946
	local_workers: 0

Load reads and validates this document. cmd/quiver overlays CLI flags on
top of the loaded values — flags win.

# See Also

  - pkg/process for the Config this is adapted into
  - pkg/bus for DialTCPBus, whose addrs parameter bus.peers mirrors; the
    master and worker subcommands dial it with their --peer flags, not
    with bus.peers
*/
package config
