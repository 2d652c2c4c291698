package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halverson/ticketpilot/internal/domain/pipeline"
)

func TestDefault_Sequence(t *testing.T) {
	d := pipeline.Default()
	if err := d.Validate(); err != nil {
		t.Fatalf("default definition invalid: %v", err)
	}

	if d.First().Name != pipeline.StepRecon {
		t.Fatalf("expected first step recon, got %s", d.First().Name)
	}

	next, ok, err := d.Next(pipeline.StepRecon)
	if err != nil || !ok || next.Name != pipeline.StepImplement {
		t.Fatalf("expected recon -> implement, got %v %v %v", next.Name, ok, err)
	}

	next, ok, err = d.Next(pipeline.StepImplement)
	if err != nil || !ok || next.Name != pipeline.StepMerge {
		t.Fatalf("expected implement -> merge, got %v %v %v", next.Name, ok, err)
	}

	_, ok, err = d.Next(pipeline.StepMerge)
	if err != nil || ok {
		t.Fatalf("expected merge to be final, got ok=%v err=%v", ok, err)
	}
}

func TestDefault_MergeGated(t *testing.T) {
	d := pipeline.Default()
	s, err := d.Get(pipeline.StepMerge)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Gated {
		t.Fatal("expected merge to be gated")
	}
	for _, name := range []string{pipeline.StepRecon, pipeline.StepImplement} {
		s, err := d.Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if s.Gated {
			t.Fatalf("expected %s to not be gated", name)
		}
	}
}

func TestValidate_DuplicateStep(t *testing.T) {
	d := pipeline.Definition{
		ID:    "dup",
		Steps: []pipeline.Step{{Name: "a"}, {Name: "a"}},
	}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for duplicate step name")
	}
}

func TestValidate_NoSteps(t *testing.T) {
	d := pipeline.Definition{ID: "empty"}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for empty step list")
	}
}

func TestNext_UnknownStep(t *testing.T) {
	d := pipeline.Default()
	if _, _, err := d.Next("deploy"); err == nil {
		t.Fatal("expected error for unknown step")
	}
}

func TestStepAttempts_Default(t *testing.T) {
	s := pipeline.Step{Name: "recon"}
	if got := s.Attempts(); got != pipeline.DefaultMaxAttempts {
		t.Fatalf("expected default attempts %d, got %d", pipeline.DefaultMaxAttempts, got)
	}
	s.MaxAttempts = 7
	if got := s.Attempts(); got != 7 {
		t.Fatalf("expected 7 attempts, got %d", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `id: cautious
steps:
  - name: recon
    gated: true
  - name: implement
    max_attempts: 5
  - name: merge
    gated: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := pipeline.LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "cautious" || len(d.Steps) != 3 {
		t.Fatalf("unexpected definition: %+v", d)
	}
	if !d.Steps[0].Gated || d.Steps[1].MaxAttempts != 5 {
		t.Fatalf("yaml fields not applied: %+v", d.Steps)
	}
}

func TestLoadFromDirectory_Missing(t *testing.T) {
	defs, err := pipeline.LoadFromDirectory("/does/not/exist")
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(defs) != 0 {
		t.Fatalf("expected no definitions, got %d", len(defs))
	}
}
