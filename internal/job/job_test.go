package job

import (
	"context"
	"testing"
	"time"
)

func TestRunExecutesTasksInOrder(t *testing.T) {
	j := Job{
		OffsetMs: 1,
		Tasks: []Task{
			{DurationMs: 1, Value: 1},
			{DurationMs: 1, Value: 2},
			{DurationMs: 0, Value: 3},
		},
	}

	var got []any
	err := Run(context.Background(), j, func(_ context.Context, tk Task) error {
		got = append(got, tk.Value)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected apply order: %v", got)
	}
}

func TestRunZeroTasksCompletesImmediately(t *testing.T) {
	start := time.Now()
	err := Run(context.Background(), Job{}, func(context.Context, Task) error {
		t.Fatal("apply should not be called for a zero-task job")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("zero-task job took too long")
	}
}

func TestRunCanceledMidSequenceStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := Job{Tasks: []Task{
		{DurationMs: 10},
		{DurationMs: 5000},
		{DurationMs: 5000},
	}}

	calls := 0
	err := Run(ctx, j, func(context.Context, Task) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cancellation should not surface as an error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 apply call before cancellation took effect, got %d", calls)
	}
}
