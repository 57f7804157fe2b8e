package shared

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), policy, func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		calls := 0
		retries := 0
		err := Retry(context.Background(), policy, func() error {
			calls++
			return errors.New("connection reset")
		}, func(error, time.Duration) { retries++ })
		if err == nil {
			t.Fatal("expected error after exhausting attempts")
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		if retries != 2 {
			t.Errorf("expected 2 retry notifications, got %d", retries)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), policy, func() error {
			calls++
			return fmt.Errorf("%w: song 9", ErrNotFound)
		}, nil)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("zero policy falls back to default", func(t *testing.T) {
		calls := 0
		_ = Retry(context.Background(), RetryPolicy{InitialInterval: time.Millisecond}, func() error {
			calls++
			return ErrInvalidInput
		}, nil)
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}

func TestIsPermanent(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not found", err: fmt.Errorf("wrap: %w", ErrNotFound), want: true},
		{name: "invalid filter", err: ErrInvalidFilter, want: true},
		{name: "canceled", err: context.Canceled, want: true},
		{name: "index unavailable", err: ErrIndexUnavailable, want: false},
		{name: "plain", err: errors.New("disk I/O error"), want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	t.Run("ConfigureLogger", func(t *testing.T) {
		l := NewLogger(nil)
		if err := ConfigureLogger(l, "debug"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if l.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", l.GetLevel())
		}
		if err := ConfigureLogger(l, "loud"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "tui.log")
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		l.Info("hello")
	})
}

func TestDSN(t *testing.T) {
	if got := DSN(":memory:", 5000); got != ":memory:" {
		t.Errorf("memory DSN should be unchanged, got %s", got)
	}
	if got := DSN("a.db", 0); got != "a.db" {
		t.Errorf("zero timeout should be unchanged, got %s", got)
	}
	if got := DSN("a.db", 100); got != "a.db?_busy_timeout=100&_journal_mode=WAL" {
		t.Errorf("unexpected DSN %s", got)
	}
	if got := DSN("a.db?cache=shared", 100); got != "a.db?cache=shared&_busy_timeout=100&_journal_mode=WAL" {
		t.Errorf("unexpected DSN %s", got)
	}
}
