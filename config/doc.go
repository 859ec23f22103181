// Package config loads pipeline definitions and builds them into a
// runnable engine.Pipeline.
//
// A configuration names sources, transforms and sinks by id. Each
// entry has a registered type, its inputs and free-form options that the
// component factory decodes and validates:
//
//	engine:
//	  channel_capacity: 16
//	  drain_timeout: 30s
//	sources:
//	  syslog_in:
//	    type: udp
//	    options:
//	      address: 0.0.0.0:5140
//	      framing: newline_delimited
//	transforms:
//	  errors_only:
//	    type: filter
//	    inputs: [syslog_in]
//	    options:
//	      rules:
//	        - {field: level, operator: eq, value: error}
//	sinks:
//	  archive:
//	    type: file
//	    inputs: [errors_only]
//	    options:
//	      path: /var/log/eventflow/errors.jsonl
//	    buffer:
//	      type: memory
//	      max_batches: 500
//	      when_full: drop_newest
//
// # Loading
//
// Loader decodes YAML over Default, rejecting unknown keys. ${VAR}
// references are expanded from the environment before decoding and "$$"
// is a literal dollar. EVENTFLOW_* variables override engine and NATS
// settings after decoding:
//
//	loader := config.NewLoader()
//	cfg, err := loader.LoadFile("pipeline.yaml")
//
// # Building
//
// Build creates every component through a component.Registry and wires
// them into a pipeline. A sink with a buffer section is wrapped by a
// buffer.Sink; jetstream buffers need BuildDeps.JetStream.
//
// String renders a config with NATS secrets masked, for logging.
package config
