package jobstate

// Aggregate is the derived summary of a group of jobs.
type Aggregate struct {
	State   State `json:"state"`
	Current int   `json:"current"`
	Total   int   `json:"total"`
}

// Combine derives the aggregate state and progress of members.
//
// Progress is the plain sum of member progress. The state follows a fixed
// priority: any FAILED member fails the group; otherwise any RUNNING or
// PENDING member keeps it RUNNING; otherwise any UNKNOWN member makes it
// UNKNOWN; SUCCEEDED requires every member to report success. An empty group
// is UNKNOWN.
func Combine(members []Status) Aggregate {
	var agg Aggregate

	var failed, active, unknown bool

	succeeded := 0

	for i := range members {
		agg.Current += members[i].Current
		agg.Total += members[i].Total

		switch members[i].State {
		case StateFailed:
			failed = true
		case StateRunning, StatePending:
			active = true
		case StateSucceeded:
			succeeded++
		default:
			unknown = true
		}
	}

	switch {
	case failed:
		agg.State = StateFailed
	case active:
		agg.State = StateRunning
	case unknown:
		agg.State = StateUnknown
	case len(members) > 0 && succeeded == len(members):
		agg.State = StateSucceeded
	default:
		agg.State = StateUnknown
	}

	return agg
}
