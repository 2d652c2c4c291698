package scripted_test

import (
	"context"
	"errors"
	"testing"

	"github.com/halverson/ticketpilot/internal/adapter/scripted"
	"github.com/halverson/ticketpilot/internal/port/agentcall"
)

func TestDefaultCannedStep(t *testing.T) {
	b := scripted.New(0.03)

	res, err := b.ExecuteStep(context.Background(), &agentcall.StepRequest{Step: "recon"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "scripted recon completed" {
		t.Errorf("output = %q", res.Output)
	}
	if res.CostUSD != 0.03 {
		t.Errorf("cost = %f", res.CostUSD)
	}
}

func TestScriptedHandlerOverrides(t *testing.T) {
	b := scripted.New(0.03)
	wantErr := errors.New("model unavailable")
	b.Script("implement", func(context.Context, *agentcall.StepRequest, agentcall.Dispatch) (*agentcall.StepResult, error) {
		return nil, wantErr
	})

	_, err := b.ExecuteStep(context.Background(), &agentcall.StepRequest{Step: "implement"}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}

	// Other steps still get the canned default.
	res, err := b.ExecuteStep(context.Background(), &agentcall.StepRequest{Step: "merge"}, nil)
	if err != nil || res.Output != "scripted merge completed" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestHandlerCostDefaultsWhenUnset(t *testing.T) {
	b := scripted.New(0.03)
	b.Script("recon", func(context.Context, *agentcall.StepRequest, agentcall.Dispatch) (*agentcall.StepResult, error) {
		return &agentcall.StepResult{Output: "done"}, nil
	})

	res, err := b.ExecuteStep(context.Background(), &agentcall.StepRequest{Step: "recon"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.CostUSD != 0.03 {
		t.Errorf("cost = %f, want default applied", res.CostUSD)
	}
}
