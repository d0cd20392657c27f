// Package jobstate maps the raw task states reported by a queue backend onto
// a closed set of canonical states and derives aggregate progress for batches.
//
// Every function in this package is pure: it keeps no counters or caches and
// never returns an error, so it is safe to call on the polling hot path.
package jobstate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// State is the canonical job state exposed to clients.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateUnknown   State = "UNKNOWN"
)

// IsTerminal reports whether no further transitions are expected.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Raw states understood by Normalize. Queue adapters translate their native
// vocabulary into these strings; anything else is treated as unknown.
const (
	RawPending  = "PENDING"
	RawProgress = "PROGRESS"
	RawSuccess  = "SUCCESS"
	RawFailure  = "FAILURE"
	RawRetry    = "RETRY"
)

const (
	defaultTotal = 100

	msgWaiting    = "waiting"
	msgProcessing = "processing"
	msgComplete   = "parse complete"
	msgFailed     = "processing failed"
	errUnknown    = "unknown error"
)

// RawStatus is what a queue adapter reports for a single job.
//
// Info carries worker-reported details. For running and failed jobs it is
// usually a map[string]any, but a failed job may also carry an error value or
// anything else the backend stored.
type RawStatus struct {
	State  string
	Info   any
	Result any
}

// Status is the canonical view of a job.
type Status struct {
	State   State  `json:"state"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Normalize converts a raw queue status into a canonical Status. It never
// panics; malformed worker output degrades to StateUnknown.
func Normalize(raw RawStatus) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			st = Status{
				State:   StateUnknown,
				Total:   defaultTotal,
				Message: fmt.Sprintf("task state: %s", raw.State),
			}
		}
	}()

	switch strings.ToUpper(strings.TrimSpace(raw.State)) {
	case RawPending:
		return Status{State: StatePending, Total: defaultTotal, Message: msgWaiting}
	case RawProgress:
		return running(raw.Info)
	case RawSuccess:
		return succeeded(raw)
	case RawFailure:
		return failed(raw.Info)
	default:
		return Status{
			State:   StateUnknown,
			Total:   defaultTotal,
			Message: fmt.Sprintf("task state: %s", raw.State),
		}
	}
}

func running(info any) Status {
	fields, _ := info.(map[string]any)

	current := intField(fields, "current", 0)
	total := intField(fields, "total", defaultTotal)
	current, total = clamp(current, total)

	msg := stringField(fields, "status")
	if msg == "" {
		msg = msgProcessing
	}

	return Status{State: StateRunning, Current: current, Total: total, Message: msg}
}

func succeeded(raw RawStatus) Status {
	fields, _ := raw.Info.(map[string]any)

	total := intField(fields, "total", defaultTotal)
	if total < 0 {
		total = 0
	}

	return Status{
		State:   StateSucceeded,
		Current: total,
		Total:   total,
		Message: msgComplete,
		Result:  raw.Result,
	}
}

func failed(info any) Status {
	st := Status{State: StateFailed, Total: defaultTotal, Message: msgFailed}

	switch v := info.(type) {
	case nil:
		st.Error = errUnknown
	case map[string]any:
		if msg := stringField(v, "status"); msg != "" {
			st.Message = msg
		}
		if e := stringField(v, "error"); e != "" {
			st.Error = e
		} else {
			st.Error = stringify(v)
		}
	case error:
		st.Error = errorMessage(v)
	case string:
		st.Error = v
	default:
		st.Error = stringify(v)
	}

	if st.Error == "" {
		st.Error = errUnknown
	}

	return st
}

// errorMessage reads err.Error(), falling back to a Go-syntax representation
// when the error value cannot produce its own message.
func errorMessage(err error) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("%T", err)
		}
	}()

	return err.Error()
}

func stringify(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("%T", v)
		}
	}()

	return fmt.Sprintf("%v", v)
}

func clamp(current, total int) (int, int) {
	if current < 0 {
		current = 0
	}

	if total < 0 {
		total = 0
	}

	if total > 0 && current > total {
		current = total
	}

	return current, total
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return stringify(v)
}

func intField(fields map[string]any, key string, def int) int {
	v, ok := fields[key]
	if !ok || v == nil {
		return def
	}

	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		if n > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(n)
	case float32:
		return floatToInt(float64(n), def)
	case float64:
		return floatToInt(n, def)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f, def)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}

	return def
}

func floatToInt(f float64, def int) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}

	if f > math.MaxInt32 {
		return math.MaxInt32
	}

	if f < math.MinInt32 {
		return math.MinInt32
	}

	return int(f)
}
