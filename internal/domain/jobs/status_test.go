package jobs

import "testing"

func TestIsValidJobTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobQueued, JobProcessing, true},
		{JobQueued, JobFailed, true},
		{JobQueued, JobCompleted, false},
		{JobProcessing, JobCompleted, true},
		{JobProcessing, JobCompletedWithErrors, true},
		{JobProcessing, JobFailed, true},
		{JobCompleted, JobProcessing, false},
		{JobFailed, JobQueued, false},
		{JobQueued, JobQueued, false},
	}
	for _, tc := range cases {
		if got := IsValidJobTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("IsValidJobTransition(%s, %s): want=%v got=%v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobCompleted, JobCompletedWithErrors, JobFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobQueued, JobProcessing} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestIsValidTaskTransition(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskQueued, TaskProcessing, true},
		{TaskQueued, TaskFailed, true},
		{TaskProcessing, TaskCompleted, true},
		{TaskProcessing, TaskFailed, true},
		{TaskProcessing, TaskRetrying, true},
		{TaskRetrying, TaskQueued, true},
		{TaskCompleted, TaskFailed, false},
		{TaskQueued, TaskCompleted, false},
	}
	for _, tc := range cases {
		if got := IsValidTaskTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("IsValidTaskTransition(%s, %s): want=%v got=%v", tc.from, tc.to, tc.want, got)
		}
	}
}
