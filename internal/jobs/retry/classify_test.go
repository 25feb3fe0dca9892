package retry

import (
	"errors"
	"testing"

	joberrors "github.com/rmhgeo/jobengine/internal/pkg/errors"
)

func TestClassifyWrappedErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"transient", AsTransient(errors.New("timeout")), ClassTransient},
		{"business", AsBusiness(errors.New("not found")), ClassBusiness},
		{"contract", AsContractViolation(errors.New("bad field")), ClassContractViolation},
		{"bare contract sentinel", joberrors.ErrContractViolation, ClassContractViolation},
		{"unclassified", errors.New("boom"), ClassUnclassified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v): want=%s got=%s", tc.err, tc.want, got)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name       string
		class      Class
		retryCount int
		maxRetries int
		want       bool
	}{
		{"contract violation never retries", ClassContractViolation, 0, 3, false},
		{"business never retries", ClassBusiness, 0, 3, false},
		{"transient retries under max", ClassTransient, 1, 3, true},
		{"transient stops at max", ClassTransient, 3, 3, false},
		{"unclassified retries once", ClassUnclassified, 0, 3, true},
		{"unclassified stops after first", ClassUnclassified, 1, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.class, tc.retryCount, tc.maxRetries); got != tc.want {
				t.Fatalf("ShouldRetry(%s, %d, %d): want=%v got=%v", tc.class, tc.retryCount, tc.maxRetries, tc.want, got)
			}
		})
	}
}
