package retry

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesWithRetryCount(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
	}
	for _, tc := range cases {
		if got := BackoffDelay(tc.retryCount); got != tc.want {
			t.Fatalf("BackoffDelay(%d): want=%s got=%s", tc.retryCount, tc.want, got)
		}
	}
}

func TestBackoffDelayClampsAtMax(t *testing.T) {
	if got := BackoffDelay(10); got != maxDelay {
		t.Fatalf("BackoffDelay(10): want=%s got=%s", maxDelay, got)
	}
	if got := BackoffDelay(1000); got != maxDelay {
		t.Fatalf("BackoffDelay(1000): want=%s got=%s", maxDelay, got)
	}
}

func TestBackoffDelayNegativeRetryCountTreatedAsZero(t *testing.T) {
	if got := BackoffDelay(-5); got != BackoffDelay(0) {
		t.Fatalf("BackoffDelay(-5): want=%s got=%s", BackoffDelay(0), got)
	}
}

func TestJitteredBackoffDelayStaysWithinTwentyPercentBand(t *testing.T) {
	base := BackoffDelay(2)
	low := time.Duration(float64(base) * 0.8)
	high := time.Duration(float64(base) * 1.2)
	for i := 0; i < 50; i++ {
		got := JitteredBackoffDelay(2)
		if got < low || got > high {
			t.Fatalf("JitteredBackoffDelay(2) out of band: got=%s want in [%s,%s]", got, low, high)
		}
	}
}
