package nats_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/halverson/ticketpilot/internal/adapter/nats"
	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/port/messagequeue"
)

type recordingQueue struct {
	fakeQueue
	published []string
}

func (r *recordingQueue) Publish(ctx context.Context, subject string, data []byte) error {
	r.published = append(r.published, subject)
	return r.fakeQueue.Publish(ctx, subject, data)
}

func TestBroadcasterMapsEventsToSubjects(t *testing.T) {
	q := &recordingQueue{}
	b := nats.NewBroadcaster(q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	b.BroadcastEvent(ctx, ws.EventRunStep, ws.RunStepEvent{RunID: "r1", Step: "recon", Attempt: 1, Phase: "started"})
	b.BroadcastEvent(ctx, ws.EventCheckpointRequired, ws.CheckpointEvent{CheckpointID: "c1", RunID: "r1", Step: "merge"})
	b.BroadcastEvent(ctx, "unknown.event", struct{}{})

	want := []string{messagequeue.SubjectRunStep, messagequeue.SubjectCheckpointRequested}
	if len(q.published) != len(want) {
		t.Fatalf("published %v, want %v", q.published, want)
	}
	for i, s := range want {
		if q.published[i] != s {
			t.Errorf("published[%d] = %q, want %q", i, q.published[i], s)
		}
	}
}

func TestBroadcasterMirrorsTerminalStatus(t *testing.T) {
	q := &recordingQueue{}
	b := nats.NewBroadcaster(q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	b.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{RunID: "r1", Status: "running", CurrentStep: "recon"})
	b.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{RunID: "r1", Status: "completed", CurrentStep: "merge", CostUSD: 0.5})

	want := []string{
		messagequeue.SubjectRunStatus,
		messagequeue.SubjectRunStatus,
		messagequeue.SubjectRunCompleted,
	}
	if len(q.published) != len(want) {
		t.Fatalf("published %v, want %v", q.published, want)
	}
	for i, s := range want {
		if q.published[i] != s {
			t.Errorf("published[%d] = %q, want %q", i, q.published[i], s)
		}
	}
}
