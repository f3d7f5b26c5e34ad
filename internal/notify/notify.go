// Package notify defines the core's abstract event sink (spec.md §6,
// §9 "Global singletons" design note): every subsystem mutation that
// should be externally observable emits an Event through a Sink
// carried explicitly as context, rather than through a process-wide
// global. No teacher file implements this shape directly (JSON
// telemetry sinks are out of scope per spec.md §1), so the interface
// is new; the default implementation reuses internal/ulogger the way
// the teacher threads a Logger through every long-lived subsystem
// struct.
package notify

import "github.com/chainforge/core/internal/ulogger"

// Type enumerates the event kinds a Sink may receive (spec.md §6).
type Type int

const (
	TypeLog Type = iota
	TypeEvent
	TypeUpdate
)

// Value is either a string or an int64, per spec.md §6's
// "map: string -> (string | i64)".
type Value struct {
	Str   string
	Int   int64
	IsInt bool
}

// StringValue wraps a string payload value.
func StringValue(s string) Value { return Value{Str: s} }

// IntValue wraps an integer payload value.
func IntValue(i int64) Value { return Value{Int: i, IsInt: true} }

// Event is one notification: {type, path, map}, per spec.md §6. Path
// is a telemetry path such as "sync/headers" or "sync/blocks".
type Event struct {
	Type Type
	Path string
	Data map[string]Value
}

// Sink receives Events. Implementations must be safe for concurrent
// use: every long-lived worker (header-sync, block-sync, UTXO
// compactor, table flusher) may emit from its own goroutine.
type Sink interface {
	Notify(Event)
}

// LoggingSink is the thread-safe default Sink for tests and for any
// caller that has not wired a richer telemetry backend: it renders
// every Event through a Logger, per spec.md §9's "provide a
// thread-safe default for tests" note.
type LoggingSink struct {
	log ulogger.Logger
}

// NewLoggingSink wraps log as a Sink.
func NewLoggingSink(log ulogger.Logger) *LoggingSink {
	return &LoggingSink{log: log}
}

func (s *LoggingSink) Notify(e Event) {
	switch e.Type {
	case TypeLog:
		s.log.Infof("%s %s", e.Path, formatData(e.Data))
	case TypeEvent:
		s.log.Infof("event %s %s", e.Path, formatData(e.Data))
	case TypeUpdate:
		s.log.Debugf("update %s %s", e.Path, formatData(e.Data))
	}
}

func formatData(data map[string]Value) string {
	out := ""
	for k, v := range data {
		if out != "" {
			out += " "
		}
		if v.IsInt {
			out += k + "="
			out += itoa(v.Int)
		} else {
			out += k + "=" + v.Str
		}
	}
	return out
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
