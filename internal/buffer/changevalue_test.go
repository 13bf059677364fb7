package buffer

import (
	"testing"

	"github.com/mqspeak/mqspeak/internal/model"
)

// TestChangeValue_DedupsConsecutiveDuplicates reproduces the sequence
// from the scripted-thermostat scenario: five readings with two repeats
// queue only the three distinct values.
func TestChangeValue_DedupsConsecutiveDuplicates(t *testing.T) {
	a := idPair("b1", "t1")
	buf := NewChangeValue([]model.DataIdentifier{a})

	for _, v := range []string{"1", "1", "2", "2", "3"} {
		if err := buf.Accept(a, v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var drained []string
	for i := 0; i < 3; i++ {
		if !buf.Complete() {
			t.Fatalf("expected a queued change at drain step %d", i)
		}
		snap := buf.Snapshot()
		drained = append(drained, snap.Fields[a])
		buf.Reset()
	}

	want := []string{"1", "2", "3"}
	for i, v := range want {
		if drained[i] != v {
			t.Fatalf("drain order = %v, want %v", drained, want)
		}
	}
	if buf.Complete() {
		t.Fatal("expected queue to be empty after draining all three changes")
	}
}

func TestChangeValue_HasAnyRequiresOnlyOneID(t *testing.T) {
	a := idPair("b1", "t1")
	c := idPair("b1", "t2")
	buf := NewChangeValue([]model.DataIdentifier{a, c})

	_ = buf.Accept(a, "1")

	if !buf.HasAny() {
		t.Fatal("expected HasAny true with one of two ids queued")
	}
	if !buf.Complete() {
		t.Fatal("expected Complete to agree with HasAny for ChangeValue")
	}
}

func TestChangeValue_ResetAdvancesQueueNonDestructively(t *testing.T) {
	a := idPair("b1", "t1")
	buf := NewChangeValue([]model.DataIdentifier{a})

	_ = buf.Accept(a, "1")
	_ = buf.Accept(a, "2")

	buf.Reset()
	if !buf.HasAny() {
		t.Fatal("expected second queued change to survive one reset")
	}
	snap := buf.Snapshot()
	if snap.Fields[a] != "2" {
		t.Fatalf("expected head to advance to 2, got %q", snap.Fields[a])
	}
}
