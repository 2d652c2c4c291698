package checkpoint_test

import (
	"testing"
	"time"

	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
)

func TestRequestValidate_Valid(t *testing.T) {
	r := &checkpoint.Request{RunID: "run-1", Step: "merge", Status: checkpoint.StatusPending}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid, got: %v", err)
	}
}

func TestRequestValidate_MissingRunID(t *testing.T) {
	r := &checkpoint.Request{Step: "merge"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for missing run_id")
	}
}

func TestRequestValidate_MissingStep(t *testing.T) {
	r := &checkpoint.Request{RunID: "run-1"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for missing step")
	}
}

func TestRequestValidate_DecidedRequiresTimestamp(t *testing.T) {
	r := &checkpoint.Request{RunID: "run-1", Step: "merge", Status: checkpoint.StatusApproved}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error: approved without decided_at")
	}

	now := time.Now()
	r.DecidedAt = &now
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid after setting decided_at, got: %v", err)
	}
}

func TestRequestValidate_PendingForbidsTimestamp(t *testing.T) {
	now := time.Now()
	r := &checkpoint.Request{RunID: "run-1", Step: "merge", Status: checkpoint.StatusPending, DecidedAt: &now}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error: pending with decided_at set")
	}
}
