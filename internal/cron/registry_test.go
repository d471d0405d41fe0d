package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRunOrder(t *testing.T) {
	activation := &stubJob{name: "auction-activation"}
	finalization := &stubJob{name: "auction-finalization"}
	registry := NewRegistry(activation, nil, finalization)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != activation || jobs[1] != finalization {
		t.Fatalf("unexpected cycle %v", registry.Names())
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("Jobs exposed the internal slice")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"})
	if err := registry.Register(&stubJob{name: "outbox-retention"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job error")
	}
	if got := registry.Names(); len(got) != 1 || got[0] != "outbox-retention" {
		t.Fatalf("unexpected names %v", got)
	}
}
