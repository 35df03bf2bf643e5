package checkpoint

import (
	"errors"
	"reflect"
	"testing"
)

func TestNextIndex(t *testing.T) {
	tests := []struct {
		name      string
		completed []int
		planSize  int
		want      int
	}{
		{name: "fresh", completed: nil, planSize: 6, want: 0},
		{name: "prefix", completed: []int{0, 1, 2}, planSize: 6, want: 3},
		{name: "gap after external edit", completed: []int{0, 1, 2, 5}, planSize: 6, want: 3},
		{name: "done", completed: []int{0, 1, 2, 3, 4, 5}, planSize: 6, want: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord("p", tt.completed...)
			if got := NextIndex(rec, tt.planSize); got != tt.want {
				t.Errorf("NextIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPending(t *testing.T) {
	rec := sampleRecord("p", 0, 1, 2, 5)
	if got := Pending(rec, 6); !reflect.DeepEqual(got, []int{3, 4}) {
		t.Errorf("Pending() = %v, want [3 4]", got)
	}
}

func TestProgressPercentage(t *testing.T) {
	rec := sampleRecord("p", 0, 1, 2)
	if got := ProgressPercentage(rec); got != 50.0 {
		t.Errorf("ProgressPercentage() = %v, want 50", got)
	}
}

func TestValidateAgainstPlan(t *testing.T) {
	rec := sampleRecord("p", 0, 1)
	plan := newTestPlan(6)
	plan.Hash = rec.PlanHash
	if err := ValidateAgainstPlan(rec, plan); err != nil {
		t.Fatalf("ValidateAgainstPlan() error = %v", err)
	}

	plan.Hash = "different"
	if err := ValidateAgainstPlan(rec, plan); !errors.Is(err, ErrPlanMismatch) {
		t.Errorf("expected ErrPlanMismatch for hash change, got %v", err)
	}

	shorter := newTestPlan(5)
	shorter.Hash = rec.PlanHash
	if err := ValidateAgainstPlan(rec, shorter); !errors.Is(err, ErrPlanMismatch) {
		t.Errorf("expected ErrPlanMismatch for size change, got %v", err)
	}
}
