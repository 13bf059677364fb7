package updater

import (
	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/sirupsen/logrus"
)

// Average is expected to be constructed over a buffer.Average: every
// sample received during the interval folds into a running mean, and
// non-numeric payloads are rejected by the buffer rather than the
// updater. Unlike Buffered, the first sample does not emit immediately
// — it only arms the scheduler, so the mean accumulates every sample
// that arrives before the tick fires rather than sending after one.
type Average struct {
	base
}

// NewAverage builds an Average updater for channel, backed by buf
// (normally a buffer.Average).
func NewAverage(channel model.Channel, buf buffer.Buffer, dispatcher Dispatcher, log *logrus.Entry) *Average {
	u := &Average{base: newBase(channel, buf, dispatcher, log)}
	u.self = u
	return u
}

func (u *Average) IsRelevant(id model.DataIdentifier) bool {
	return u.isRelevant(id)
}

func (u *Average) Offer(id model.DataIdentifier, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.offerLocked(id, value, u.dataCompleteLocked)
}

func (u *Average) dataCompleteLocked() {
	if !u.isUpdateScheduled && !u.isUpdateRunning {
		u.scheduleUpdateJobLocked()
	}
}

func (u *Average) NotifyUpdateResult(result model.UpdateResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateResultLocked(result, u.scheduleUpdateJobLocked)
}

func (u *Average) NotifyUpdateWaiting() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateWaitingLocked()
}

func (u *Average) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
}
