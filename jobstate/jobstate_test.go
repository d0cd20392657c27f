package jobstate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type brokenError struct {
	detail *string
}

func (e *brokenError) Error() string {
	return *e.detail
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  RawStatus
		want Status
	}{
		{
			name: "pending",
			raw:  RawStatus{State: RawPending},
			want: Status{State: StatePending, Current: 0, Total: 100, Message: "waiting"},
		},
		{
			name: "progress with worker info",
			raw:  RawStatus{State: RawProgress, Info: map[string]any{"current": 30, "total": 100}},
			want: Status{State: StateRunning, Current: 30, Total: 100, Message: "processing"},
		},
		{
			name: "progress with json numbers and message",
			raw: RawStatus{State: RawProgress, Info: map[string]any{
				"current": float64(3), "total": json.Number("12"), "status": "page 3/12",
			}},
			want: Status{State: StateRunning, Current: 3, Total: 12, Message: "page 3/12"},
		},
		{
			name: "progress without info gets placeholder",
			raw:  RawStatus{State: RawProgress},
			want: Status{State: StateRunning, Current: 0, Total: 100, Message: "processing"},
		},
		{
			name: "progress current clamped to total",
			raw:  RawStatus{State: RawProgress, Info: map[string]any{"current": 150, "total": 100}},
			want: Status{State: StateRunning, Current: 100, Total: 100, Message: "processing"},
		},
		{
			name: "progress negative values clamped",
			raw:  RawStatus{State: RawProgress, Info: map[string]any{"current": -5, "total": -1}},
			want: Status{State: StateRunning, Current: 0, Total: 0, Message: "processing"},
		},
		{
			name: "success",
			raw:  RawStatus{State: RawSuccess, Result: map[string]any{"content_length": 42}},
			want: Status{
				State: StateSucceeded, Current: 100, Total: 100, Message: "parse complete",
				Result: map[string]any{"content_length": 42},
			},
		},
		{
			name: "failure with map info",
			raw:  RawStatus{State: RawFailure, Info: map[string]any{"error": "boom", "status": "worker crashed"}},
			want: Status{State: StateFailed, Total: 100, Message: "worker crashed", Error: "boom"},
		},
		{
			name: "failure with error value",
			raw:  RawStatus{State: RawFailure, Info: errors.New("disk full")},
			want: Status{State: StateFailed, Total: 100, Message: "processing failed", Error: "disk full"},
		},
		{
			name: "failure without info",
			raw:  RawStatus{State: RawFailure},
			want: Status{State: StateFailed, Total: 100, Message: "processing failed", Error: "unknown error"},
		},
		{
			name: "retry is not a known state",
			raw:  RawStatus{State: RawRetry},
			want: Status{State: StateUnknown, Total: 100, Message: "task state: RETRY"},
		},
		{
			name: "garbage state",
			raw:  RawStatus{State: "REVOKED", Info: map[string]any{"current": 100}},
			want: Status{State: StateUnknown, Total: 100, Message: "task state: REVOKED"},
		},
		{
			name: "empty state",
			raw:  RawStatus{},
			want: Status{State: StateUnknown, Total: 100, Message: "task state: "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeFailureWithUnreadableError(t *testing.T) {
	st := Normalize(RawStatus{State: RawFailure, Info: &brokenError{}})

	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "*jobstate.brokenError", st.Error)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raws := []RawStatus{
		{State: RawPending},
		{State: RawProgress, Info: map[string]any{"current": 10, "total": 20}},
		{State: RawSuccess, Result: "ok"},
		{State: RawFailure, Info: map[string]any{"error": "x"}},
		{State: "whatever"},
	}

	for _, raw := range raws {
		first := Normalize(raw)
		second := Normalize(raw)
		assert.Equal(t, first, second)
	}
}

func TestNormalizeUnknownNeverTerminal(t *testing.T) {
	for _, s := range []string{"STARTED", "RECEIVED", "REVOKED", "success ", "FAILED", "done"} {
		st := Normalize(RawStatus{State: s})
		if s == "success " {
			// surrounding whitespace and case are tolerated for known states
			assert.Equal(t, StateSucceeded, st.State)
			continue
		}
		assert.Equal(t, StateUnknown, st.State, s)
		assert.False(t, st.State.IsTerminal())
	}
}

func TestNormalizeResultAndErrorExclusive(t *testing.T) {
	ok := Normalize(RawStatus{State: RawSuccess, Info: map[string]any{"error": "ignored"}, Result: "r"})
	assert.Empty(t, ok.Error)
	assert.Equal(t, "r", ok.Result)

	bad := Normalize(RawStatus{State: RawFailure, Info: map[string]any{"error": "e"}, Result: "r"})
	assert.Nil(t, bad.Result)
	assert.Equal(t, "e", bad.Error)
}

func TestCombine(t *testing.T) {
	s := func(st State, cur, total int) Status {
		return Status{State: st, Current: cur, Total: total}
	}

	tests := []struct {
		name    string
		members []Status
		want    Aggregate
	}{
		{
			name:    "failed wins",
			members: []Status{s(StateSucceeded, 100, 100), s(StateRunning, 30, 100), s(StateFailed, 0, 100)},
			want:    Aggregate{State: StateFailed, Current: 130, Total: 300},
		},
		{
			name:    "running over unknown",
			members: []Status{s(StateUnknown, 0, 100), s(StatePending, 0, 100)},
			want:    Aggregate{State: StateRunning, Current: 0, Total: 200},
		},
		{
			name:    "unknown over succeeded",
			members: []Status{s(StateSucceeded, 100, 100), s(StateUnknown, 0, 100)},
			want:    Aggregate{State: StateUnknown, Current: 100, Total: 200},
		},
		{
			name:    "all succeeded",
			members: []Status{s(StateSucceeded, 100, 100), s(StateSucceeded, 5, 5)},
			want:    Aggregate{State: StateSucceeded, Current: 105, Total: 105},
		},
		{
			name:    "untouched batch keeps placeholder denominator",
			members: []Status{s(StatePending, 0, 100), s(StatePending, 0, 100), s(StatePending, 0, 100)},
			want:    Aggregate{State: StateRunning, Current: 0, Total: 300},
		},
		{
			name: "empty",
			want: Aggregate{State: StateUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Combine(tt.members))
		})
	}
}
