// Package updater implements the four channel state machines that
// decide when a buffered measurement is ready to send: Blackout,
// Buffered, Average, and OnChange. Each is a small, independently
// written type; they share only the plain data and lock-holding helper
// methods on base, never a dispatch table, so a reader can understand
// one discipline without tracing through the others.
package updater

import (
	"sync"
	"time"

	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/sirupsen/logrus"
)

// floorScheduleInterval is the minimum delay used by scheduleUpdateJob
// when a channel's update interval is configured as zero. Flooring
// avoids spinning the scheduler while keeping the effective latency
// negligible.
const floorScheduleInterval = 10 * time.Millisecond

// Updater is the contract the Supervisor and Dispatcher depend on. The
// four concrete types in this package each implement it independently.
type Updater interface {
	IsRelevant(id model.DataIdentifier) bool
	Offer(id model.DataIdentifier, value string)
	NotifyUpdateResult(result model.UpdateResult)
	NotifyUpdateWaiting()
	Stop()
}

// Dispatcher is the sink an Updater hands completed measurements to. It
// is satisfied by *dispatcher.Dispatcher; the interface lives here to
// keep this package free of a dependency on the dispatcher package.
type Dispatcher interface {
	UpdateAvailable(channel model.Channel, measurement model.Measurement, updater Updater)
}

// base holds the state and lock shared by all four disciplines:
// isUpdateRunning, lastUpdated, waitingStarted, the Update Buffer,
// isUpdateScheduled, and the pending scheduler timer. All transitions
// happen with mu held; none of the helpers below acquire it themselves,
// so callers must hold the lock before calling any *Locked method.
type base struct {
	mu sync.Mutex

	channel    model.Channel
	buf        buffer.Buffer
	dispatcher Dispatcher
	log        *logrus.Entry
	self       Updater

	isUpdateRunning   bool
	isUpdateScheduled bool
	stopped           bool

	hasLastUpdated bool
	lastUpdated    time.Time

	hasWaitingStarted bool
	waitingStarted    time.Time

	// hasRoundStarted/roundStarted track when the buffer first received
	// data since its last Reset, independent of lastUpdated. A channel
	// that has never completed a successful update still needs a real
	// elapsed-time basis for arming the waiting grace period: using
	// lastUpdated's -infinity sentinel for that would arm the grace
	// period on the very first sample instead of after UpdateInterval
	// has actually passed.
	hasRoundStarted bool
	roundStarted    time.Time

	timer *time.Timer
}

func newBase(channel model.Channel, buf buffer.Buffer, dispatcher Dispatcher, log *logrus.Entry) base {
	return base{channel: channel, buf: buf, dispatcher: dispatcher, log: log}
}

func (b *base) isRelevant(id model.DataIdentifier) bool {
	return b.buf.Relevant(id)
}

// intervalExpiredLocked reports whether channel.UpdateInterval has
// elapsed since lastUpdated. lastUpdated starts unset, which behaves as
// -infinity: the interval is always considered expired before the first
// successful emission.
func (b *base) intervalExpiredLocked() bool {
	if !b.hasLastUpdated {
		return true
	}
	return time.Since(b.lastUpdated) >= b.channel.UpdateInterval
}

// roundExpiredLocked reports whether UpdateInterval has elapsed since
// the buffer first accepted data for its current accumulation round.
// Unlike intervalExpiredLocked (which is -infinity until the first
// successful emission, by design, so Blackout/Buffered/Average/OnChange
// fire their very first emission without delay), this never reports
// true before data has actually been sitting in the buffer for a full
// interval, so it is the correct basis for arming a waiting grace
// period.
func (b *base) roundExpiredLocked() bool {
	return b.hasRoundStarted && time.Since(b.roundStarted) >= b.channel.UpdateInterval
}

// offerLocked is the shared body of offer(id, value) described by the
// base contract. dataComplete is the calling discipline's hook, invoked
// only once the buffer reports a complete measurement.
func (b *base) offerLocked(id model.DataIdentifier, value string, dataComplete func()) {
	if err := b.buf.Accept(id, value); err != nil {
		b.log.WithError(err).WithField("channel", b.channel.Name).Warn("dropped sample")
		return
	}
	if !b.hasRoundStarted {
		b.roundStarted = time.Now()
		b.hasRoundStarted = true
	}
	if b.isUpdateRunning {
		return
	}
	if b.buf.Complete() {
		dataComplete()
		return
	}
	if b.channel.HasWaiting && b.roundExpiredLocked() && !b.hasWaitingStarted {
		b.waitingStarted = time.Now()
		b.hasWaitingStarted = true
	}
}

// runUpdateLocked is the common emission path: mark an upload in
// flight, snapshot and reset the buffer, hand the result to the
// dispatcher. Used both for a normal complete-data emission and for a
// partial emission after a waiting timeout.
func (b *base) runUpdateLocked() {
	b.isUpdateRunning = true
	b.hasWaitingStarted = false
	b.hasRoundStarted = false
	measurement := b.buf.Snapshot()
	b.buf.Reset()
	b.dispatcher.UpdateAvailable(b.channel, measurement, b.self)
}

// notifyUpdateResultLocked is the common body of notifyUpdateResult:
// clear the in-flight flag, advance lastUpdated on success, then let
// the discipline decide what happens next.
func (b *base) notifyUpdateResultLocked(result model.UpdateResult, resolveUpdateResult func()) {
	b.isUpdateRunning = false
	if result.Success {
		b.lastUpdated = time.Now()
		b.hasLastUpdated = true
	} else if b.log != nil {
		b.log.WithError(result.Err).WithField("channel", b.channel.Name).Warn("update failed")
	}
	resolveUpdateResult()
}

// notifyUpdateWaitingLocked is identical across all four disciplines:
// it decides whether a grace-period partial emission is due, or starts
// the grace period if the buffer has unsent data and the interval has
// already expired.
func (b *base) notifyUpdateWaitingLocked() {
	if !b.channel.HasWaiting || b.isUpdateRunning {
		return
	}
	if b.hasWaitingStarted && time.Since(b.waitingStarted) > b.channel.Waiting && b.buf.HasAny() {
		if missing := b.buf.Missing(); len(missing) > 0 {
			b.log.WithField("channel", b.channel.Name).WithField("missing", missing).
				Warn("waiting grace period expired, emitting partial measurement")
		}
		b.runUpdateLocked()
		return
	}
	if b.buf.HasAny() && b.roundExpiredLocked() && !b.hasWaitingStarted {
		b.waitingStarted = time.Now()
		b.hasWaitingStarted = true
	}
}

// scheduleUpdateJobLocked arms a one-shot timer that, on fire, clears
// itself from the scheduled state and runs an update if the buffer has
// since become complete. It is shared by the three synchronous
// disciplines (Buffered, Average, OnChange); Blackout never calls it.
func (b *base) scheduleUpdateJobLocked() {
	d := b.channel.UpdateInterval
	if d <= 0 {
		d = floorScheduleInterval
	}
	b.isUpdateScheduled = true
	b.timer = time.AfterFunc(d, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.isUpdateScheduled = false
		b.timer = nil
		if b.stopped {
			return
		}
		if b.buf.Complete() {
			b.runUpdateLocked()
		}
	})
}

// stopLocked cancels any pending scheduler timer and marks the updater
// stopped so a timer that already fired cannot start a new update.
func (b *base) stopLocked() {
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
