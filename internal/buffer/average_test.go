package buffer

import (
	"errors"
	"testing"

	"github.com/mqspeak/mqspeak/internal/model"
)

func TestAverage_SnapshotComputesMean(t *testing.T) {
	a := idPair("b1", "t1")
	buf := NewAverage([]model.DataIdentifier{a})

	for _, v := range []string{"1", "2", "3"} {
		if err := buf.Accept(a, v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !buf.Complete() {
		t.Fatal("expected complete once the only declared id has a sample")
	}

	snap := buf.Snapshot()
	if snap.Fields[a] != "2" {
		t.Fatalf("expected mean 2, got %q", snap.Fields[a])
	}
}

func TestAverage_RejectsNonNumericPayload(t *testing.T) {
	a := idPair("b1", "t1")
	buf := NewAverage([]model.DataIdentifier{a})

	err := buf.Accept(a, "not-a-number")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if buf.HasAny() {
		t.Fatal("expected rejected sample to leave buffer empty")
	}
}

func TestAverage_ResetClearsRunningMean(t *testing.T) {
	a := idPair("b1", "t1")
	buf := NewAverage([]model.DataIdentifier{a})
	_ = buf.Accept(a, "10")

	buf.Reset()

	if buf.HasAny() {
		t.Fatal("expected HasAny false after reset")
	}

	_ = buf.Accept(a, "4")
	snap := buf.Snapshot()
	if snap.Fields[a] != "4" {
		t.Fatalf("expected mean to restart from scratch, got %q", snap.Fields[a])
	}
}

func TestAverage_CompleteRequiresEveryDeclaredID(t *testing.T) {
	a := idPair("b1", "t1")
	c := idPair("b1", "t2")
	buf := NewAverage([]model.DataIdentifier{a, c})

	_ = buf.Accept(a, "5")
	if buf.Complete() {
		t.Fatal("expected incomplete with one of two ids unfilled")
	}
	missing := buf.Missing()
	if len(missing) != 1 || missing[0] != c {
		t.Fatalf("expected missing=[%v], got %v", c, missing)
	}
}
