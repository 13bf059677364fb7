package updater

import (
	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/sirupsen/logrus"
)

// Buffered emits as soon as complete data is available, then always
// schedules the next emission exactly updateInterval later so bursty
// sources still produce regular updates. Data arriving during the wait
// overwrites the buffered value (LastValue discipline).
type Buffered struct {
	base
}

// NewBuffered builds a Buffered updater for channel, backed by buf
// (normally a LastValue buffer).
func NewBuffered(channel model.Channel, buf buffer.Buffer, dispatcher Dispatcher, log *logrus.Entry) *Buffered {
	u := &Buffered{base: newBase(channel, buf, dispatcher, log)}
	u.self = u
	return u
}

func (u *Buffered) IsRelevant(id model.DataIdentifier) bool {
	return u.isRelevant(id)
}

func (u *Buffered) Offer(id model.DataIdentifier, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.offerLocked(id, value, u.dataCompleteLocked)
}

func (u *Buffered) dataCompleteLocked() {
	if !u.isUpdateScheduled && !u.isUpdateRunning {
		u.runUpdateLocked()
	}
}

func (u *Buffered) NotifyUpdateResult(result model.UpdateResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateResultLocked(result, u.scheduleUpdateJobLocked)
}

func (u *Buffered) NotifyUpdateWaiting() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateWaitingLocked()
}

func (u *Buffered) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
}
