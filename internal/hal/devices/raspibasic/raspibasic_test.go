package raspibasic

import "testing"

func TestRound2(t *testing.T) {
	if got := round2(45.678); got != 45.68 {
		t.Fatalf("expected 45.68, got %v", got)
	}
	if got := round2(45.671); got != 45.67 {
		t.Fatalf("expected 45.67, got %v", got)
	}
}
