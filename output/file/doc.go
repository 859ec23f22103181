// Package file provides a sink that appends events to a local file.
//
// With the json encoding every event becomes one JSON object per line
// (logs and traces render their fields, metrics their series and value).
// The text encoding writes a log's message field verbatim, for tailing
// raw lines, and falls back to JSON when an event has no message.
//
// The write buffer is flushed after every batch and only then are the
// batch's events finalized Delivered. A write failure finalizes the
// batch Errored and the sink keeps running.
//
//	sinks:
//	  archive:
//	    type: file
//	    inputs: [parse]
//	    options:
//	      path: /var/lib/eventflow/archive.jsonl
//	      encoding: json
package file
