package event

// EventArray is a homogeneous batch of events, the unit passed between
// pipeline stages. It is one of LogArray, MetricArray or TraceArray.
type EventArray interface {
	Kind() Kind
	Len() int
	// Events returns the events as the Event union, in order.
	Events() []Event
	// Clone copies every event for fan-out; finalizers are shared.
	Clone() EventArray
	// Finalize reports status for every event and clears their
	// finalizers.
	Finalize(status EventStatus)
	isEventArray()
}

// LogArray is a batch of log events.
type LogArray []*LogEvent

// MetricArray is a batch of metric events.
type MetricArray []*Metric

// TraceArray is a batch of trace events.
type TraceArray []*TraceEvent

func (LogArray) Kind() Kind    { return KindLog }
func (MetricArray) Kind() Kind { return KindMetric }
func (TraceArray) Kind() Kind  { return KindTrace }

func (a LogArray) Len() int    { return len(a) }
func (a MetricArray) Len() int { return len(a) }
func (a TraceArray) Len() int  { return len(a) }

func (LogArray) isEventArray()    {}
func (MetricArray) isEventArray() {}
func (TraceArray) isEventArray()  {}

func (a LogArray) Events() []Event {
	out := make([]Event, len(a))
	for i, e := range a {
		out[i] = e
	}
	return out
}

func (a MetricArray) Events() []Event {
	out := make([]Event, len(a))
	for i, e := range a {
		out[i] = e
	}
	return out
}

func (a TraceArray) Events() []Event {
	out := make([]Event, len(a))
	for i, e := range a {
		out[i] = e
	}
	return out
}

func (a LogArray) Clone() EventArray {
	out := make(LogArray, len(a))
	for i, e := range a {
		out[i] = e.Clone()
	}
	return out
}

func (a MetricArray) Clone() EventArray {
	out := make(MetricArray, len(a))
	for i, e := range a {
		out[i] = e.Clone()
	}
	return out
}

func (a TraceArray) Clone() EventArray {
	out := make(TraceArray, len(a))
	for i, e := range a {
		out[i] = e.Clone()
	}
	return out
}

func (a LogArray) Finalize(status EventStatus) {
	for _, e := range a {
		e.meta.UpdateFinalizers(status)
	}
}

func (a MetricArray) Finalize(status EventStatus) {
	for _, e := range a {
		e.meta.UpdateFinalizers(status)
	}
}

func (a TraceArray) Finalize(status EventStatus) {
	for _, e := range a {
		e.meta.UpdateFinalizers(status)
	}
}

// Rebatch splits a mixed sequence into homogeneous arrays. Each run of
// consecutive same-kind events becomes one array, so the relative order
// of all events is preserved across the split.
func Rebatch(events []Event) []EventArray {
	var out []EventArray
	for start := 0; start < len(events); {
		kind := events[start].Kind()
		end := start + 1
		for end < len(events) && events[end].Kind() == kind {
			end++
		}
		out = append(out, arrayOf(kind, events[start:end]))
		start = end
	}
	return out
}

func arrayOf(kind Kind, events []Event) EventArray {
	switch kind {
	case KindLog:
		out := make(LogArray, len(events))
		for i, e := range events {
			out[i] = e.(*LogEvent)
		}
		return out
	case KindMetric:
		out := make(MetricArray, len(events))
		for i, e := range events {
			out[i] = e.(*Metric)
		}
		return out
	default:
		out := make(TraceArray, len(events))
		for i, e := range events {
			out[i] = e.(*TraceEvent)
		}
		return out
	}
}

// Single wraps one event in an array of its kind.
func Single(e Event) EventArray {
	return arrayOf(e.Kind(), []Event{e})
}

// Count returns the number of events across arrays.
func Count(arrays []EventArray) int {
	n := 0
	for _, a := range arrays {
		n += a.Len()
	}
	return n
}
