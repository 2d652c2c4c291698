package nats_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/halverson/ticketpilot/internal/adapter/nats"
	"github.com/halverson/ticketpilot/internal/domain/task"
	"github.com/halverson/ticketpilot/internal/port/messagequeue"
)

type fakeQueue struct {
	subject string
	data    []byte
}

func (f *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return nil
}

func (f *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (f *fakeQueue) Drain() error      { return nil }
func (f *fakeQueue) Close() error      { return nil }
func (f *fakeQueue) IsConnected() bool { return true }

func TestTicketSourcePublishesOutcome(t *testing.T) {
	q := &fakeQueue{}
	src := nats.NewTicketSource(q)

	if src.Name() != "queue" {
		t.Errorf("name = %q", src.Name())
	}

	err := src.UpdateStatus(context.Background(), task.Outcome{
		RunID:   "r1",
		Success: false,
		Error:   "step merge failed after 3 attempts",
		CostUSD: 1.25,
	})
	if err != nil {
		t.Fatal(err)
	}

	if q.subject != messagequeue.SubjectTicketOutcome {
		t.Errorf("subject = %q", q.subject)
	}
	if err := messagequeue.Validate(q.subject, q.data); err != nil {
		t.Fatalf("published payload invalid: %v", err)
	}

	var payload messagequeue.TicketOutcomePayload
	if err := json.Unmarshal(q.data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.RunID != "r1" || payload.Success || payload.CostUSD != 1.25 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}
