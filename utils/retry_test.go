package utils

import (
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{0, 100 * time.Millisecond}, // clamped to the first attempt
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.expected {
			t.Errorf("Backoff(%d) = %s, expected %s", tt.attempt, got, tt.expected)
		}
	}
}

func TestRetryPolicyBackoffCap(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 15, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 200 * time.Millisecond},
		{5, 3200 * time.Millisecond},
		{6, 5 * time.Second},  // 6.4s capped
		{15, 5 * time.Second}, // deep attempts never sleep longer than the cap
		{80, 5 * time.Second}, // shift overflow clamps to the cap too
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.expected {
			t.Errorf("Backoff(%d) = %s, expected %s", tt.attempt, got, tt.expected)
		}
	}
}

func TestRetryPolicyRun(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Microsecond}

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := p.Run(func(n int) error {
			calls++
			return nil
		}, nil)
		if err != nil || calls != 1 {
			t.Errorf("err = %v, calls = %d, expected nil and 1", err, calls)
		}
	})

	t.Run("retries until success with fresh attempt numbers", func(t *testing.T) {
		var attempts []int
		err := p.Run(func(n int) error {
			attempts = append(attempts, n)
			if n < 3 {
				return errors.New("conflito")
			}
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
			t.Errorf("attempts = %v, expected [1 2 3]", attempts)
		}
	})

	t.Run("exhausts attempts and returns last error", func(t *testing.T) {
		sentinel := errors.New("sempre falha")
		calls := 0
		err := p.Run(func(n int) error {
			calls++
			return sentinel
		}, nil)
		if !errors.Is(err, sentinel) {
			t.Errorf("err = %v, expected last error", err)
		}
		if calls != 4 {
			t.Errorf("calls = %d, expected MaxAttempts", calls)
		}
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		fatal := errors.New("permissão negada")
		calls := 0
		err := p.Run(func(n int) error {
			calls++
			return fatal
		}, func(err error) bool { return false })
		if !errors.Is(err, fatal) || calls != 1 {
			t.Errorf("err = %v, calls = %d, expected immediate stop", err, calls)
		}
	})

	t.Run("zero max still runs once", func(t *testing.T) {
		calls := 0
		_ = RetryPolicy{}.Run(func(n int) error {
			calls++
			return nil
		}, nil)
		if calls != 1 {
			t.Errorf("calls = %d, expected 1", calls)
		}
	})
}
