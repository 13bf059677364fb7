package updater

import (
	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/sirupsen/logrus"
)

// OnChange is expected to be constructed over a buffer.ChangeValue: a
// queued value arriving arms the scheduler rather than emitting right
// away, and each tick drains one pending change per id. The buffer's
// non-destructive reset leaves any further queued changes in place, so
// a burst of distinct values drains one per tick rather than all at
// once.
type OnChange struct {
	base
}

// NewOnChange builds an OnChange updater for channel, backed by buf
// (normally a buffer.ChangeValue).
func NewOnChange(channel model.Channel, buf buffer.Buffer, dispatcher Dispatcher, log *logrus.Entry) *OnChange {
	u := &OnChange{base: newBase(channel, buf, dispatcher, log)}
	u.self = u
	return u
}

func (u *OnChange) IsRelevant(id model.DataIdentifier) bool {
	return u.isRelevant(id)
}

func (u *OnChange) Offer(id model.DataIdentifier, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.offerLocked(id, value, u.dataCompleteLocked)
}

func (u *OnChange) dataCompleteLocked() {
	if !u.isUpdateScheduled && !u.isUpdateRunning {
		u.scheduleUpdateJobLocked()
	}
}

func (u *OnChange) NotifyUpdateResult(result model.UpdateResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateResultLocked(result, u.scheduleUpdateJobLocked)
}

func (u *OnChange) NotifyUpdateWaiting() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateWaitingLocked()
}

func (u *OnChange) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
}
