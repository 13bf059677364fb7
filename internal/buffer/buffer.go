// Package buffer implements the per-channel Update Buffer disciplines:
// LastValue, Average, and ChangeValue. All three share the same Buffer
// contract so an Updater can hold any of them behind one interface, but
// each discipline's accept/snapshot/reset behavior is implemented on its
// own concrete type rather than through a shared base class — per-field
// state (a pointer, a running sum and count, a FIFO queue) differs enough
// between disciplines that sharing more than the declared id set would
// just be indirection.
package buffer

import (
	"fmt"
	"strconv"

	"github.com/mqspeak/mqspeak/internal/model"
)

// Buffer is the contract every discipline implements. Supervisor and
// Updater code only ever see a Buffer, never a concrete discipline type.
type Buffer interface {
	// Relevant reports whether id is part of this buffer's declared set.
	Relevant(id model.DataIdentifier) bool

	// Accept stores value for id per the discipline's rules. It returns
	// a *TopicError if id is not declared, or a *ParseError if value
	// could not be interpreted (Average only). Both are non-fatal to
	// the caller: log and continue.
	Accept(id model.DataIdentifier, value string) error

	// Complete reports whether a full measurement is available now.
	Complete() bool

	// HasAny reports whether any data has been stored since the last
	// Reset.
	HasAny() bool

	// Missing returns the declared ids that still have no value.
	Missing() []model.DataIdentifier

	// Snapshot builds a Measurement from the buffer's current contents.
	Snapshot() model.Measurement

	// Reset clears buffered state. For LastValue and Average this wipes
	// everything; for ChangeValue it pops one queued entry per id,
	// leaving any further queued changes in place for the next cycle.
	Reset()
}

// TopicError reports that a buffer was offered a DataIdentifier outside
// its declared set. Callers log and discard it; it never stops the
// pipeline.
type TopicError struct {
	ID model.DataIdentifier
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("illegal topic update: %s", e.ID)
}

// ParseError reports that the Average discipline received a payload that
// does not parse as a number. The sample is dropped for that id.
type ParseError struct {
	ID    model.DataIdentifier
	Value string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q for %s as a number: %v", e.Value, e.ID, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// formatFloat renders an averaged value the way the original payloads
// looked: plain decimal, no scientific notation, trailing zeros trimmed.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
