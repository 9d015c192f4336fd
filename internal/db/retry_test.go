package db

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetryRetriesBusy(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: sprints.work_list_id (2067)")) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(errors.New("FOREIGN KEY constraint failed")) {
		t.Fatalf("unexpected unique violation")
	}
}
