package rules

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
	"tally/internal/store/memory"
)

func TestAddValidation(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()

	tests := []struct {
		name      string
		matchText string
		category  string
		priority  int
	}{
		{"empty match text", "  ", "groceries", 1},
		{"blank category", "lidl", "  ", 1},
		{"zero priority", "lidl", "groceries", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tt.matchText, tt.category, tt.priority)
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("Add() error = %v, want validation", err)
			}
		})
	}
}

func TestApplyPriorityOrder(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()

	// Both rules match "amazon prime video"; the lower priority number wins.
	if _, err := svc.Add(ctx, "amazon", "shopping", 10); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := svc.Add(ctx, "prime video", "streaming", 5); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	category, matched, err := svc.Apply(ctx, "AMAZON Prime Video subscription")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !matched {
		t.Fatal("expected a match")
	}
	if category != "streaming" {
		t.Errorf("category = %q, want streaming (priority 5 beats 10)", category)
	}
}

func TestApplyNoMatch(t *testing.T) {
	svc := New(memory.New())
	ctx := context.Background()

	if _, err := svc.Add(ctx, "lidl", "groceries", 1); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	category, matched, err := svc.Apply(ctx, "monthly rent payment")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if matched || category != "" {
		t.Errorf("got (%q, %v), want no match", category, matched)
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	rules := []core.CategoryRule{
		{MatchText: "LIDL", Category: "groceries", Priority: 1},
	}

	category, matched := Match(rules, "lidl filiale 123")
	if !matched || category != "groceries" {
		t.Errorf("got (%q, %v), want (groceries, true)", category, matched)
	}
}

func TestDeleteMissingRule(t *testing.T) {
	svc := New(memory.New())

	if err := svc.Delete(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete() error = %v, want not found", err)
	}
}
