// Package remap provides a Transform that rewrites events through a
// Script.
//
// The built-in MappingScript is declarative:
//
//	transforms:
//	  normalize:
//	    type: remap
//	    inputs: [syslog_in]
//	    options:
//	      mappings:
//	        - {source: lvl, target: level, transform: lowercase}
//	        - {source: host, target: origin.host, op: copy, required: true}
//	      set:
//	        env: prod
//	      remove: [debug]
//	      drop_on_error: false
//
// A script failure (a required field missing, a target path that runs
// into a non-container) finalizes the event Errored, or Dropped with
// drop_on_error. The other events of the batch continue.
package remap
