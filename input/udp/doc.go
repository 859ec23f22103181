// Package udp provides a Source that turns UDP datagrams into log events.
//
// Each datagram becomes one LogArray. With "bytes" framing the whole
// datagram is one event; with "newline_delimited" every non-empty line is.
// The payload holds the frame under "message" (or the decoded object with
// "json" decoding) plus the peer host and port, source_type "socket" and
// the receive timestamp. Fields already present are left alone.
//
// Datagrams longer than max_length are truncated and their last frame is
// discarded with a warning, so a partial record never enters the
// pipeline.
//
// Pipeline file usage:
//
//	sources:
//	  syslog_in:
//	    type: udp
//	    options:
//	      address: 0.0.0.0:5140
//	      framing: newline_delimited
//
// When the pipeline enables acknowledgements for the source, each datagram
// waits for its outcome before the next one is read.
package udp
