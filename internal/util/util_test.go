package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestAddTradingDays(t *testing.T) {
	// Monday 2025-06-02 + 5 trading days = Monday 2025-06-09.
	monday := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	got := AddTradingDays(monday, 5)
	want := time.Date(2025, 6, 9, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddTradingDays(Mon, 5) = %v, want %v", got, want)
	}

	// Friday + 1 trading day skips the weekend.
	friday := time.Date(2025, 6, 6, 9, 30, 0, 0, time.UTC)
	got = AddTradingDays(friday, 1)
	want = time.Date(2025, 6, 9, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddTradingDays(Fri, 1) = %v, want %v", got, want)
	}
}

func TestIsTradingDay(t *testing.T) {
	saturday := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	if IsTradingDay(saturday) {
		t.Error("IsTradingDay returned true for a Saturday")
	}
	wednesday := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	if !IsTradingDay(wednesday) {
		t.Error("IsTradingDay returned false for a Wednesday")
	}
}
