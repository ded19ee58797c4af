package panel

import (
	"testing"
	"time"
)

func TestLinearBackOffSchedule(t *testing.T) {
	b := &linearBackOff{base: 500 * time.Millisecond}

	want := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2000 * time.Millisecond,
	}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("NextBackOff() #%d = %v, want %v", i+1, got, w)
		}
	}

	b.Reset()
	if got := b.NextBackOff(); got != 500*time.Millisecond {
		t.Errorf("NextBackOff() after Reset() = %v, want 500ms", got)
	}
}

func TestRetryPolicyOptions(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	if got := p.options(); len(got) != 2 {
		t.Errorf("options() returned %d options, want 2", len(got))
	}

	// A non-positive budget still allows one attempt.
	p = RetryPolicy{MaxAttempts: 0, BaseDelay: time.Millisecond}
	if got := p.options(); len(got) != 2 {
		t.Errorf("options() returned %d options, want 2", len(got))
	}
}
