// Package filter provides a Transform that keeps events matching every
// configured rule and finalizes the others Dropped.
//
// A rule names a field path, an operator and an operand:
//
//	transforms:
//	  errors_only:
//	    type: filter
//	    inputs: [syslog_in]
//	    options:
//	      rules:
//	        - {field: level, operator: eq, value: error}
//	        - {field: status, operator: gte, value: 500}
//
// Operators are eq, ne, gt, gte, lt, lte, contains and exists. Numbers
// compare across integer and float; gt/gte/lt/lte also order strings and
// timestamps; contains is a substring test on strings and a membership
// test on arrays. A rule on a missing field never matches, so ne and
// exists are both false there.
//
// Metrics are matched against a view with name, namespace, kind, type and
// tags, so "tags.host" selects a tag.
package filter
