package updater

import (
	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/sirupsen/logrus"
)

// Blackout emits the first complete measurement it sees, then discards
// every input until updateInterval has elapsed; the next complete
// buffer after that is emitted immediately. A failed upload leaves
// lastUpdated unadvanced, so the next complete sample is retried right
// away rather than waiting out the interval again.
type Blackout struct {
	base
}

// NewBlackout builds a Blackout updater for channel, backed by buf
// (normally a LastValue buffer).
func NewBlackout(channel model.Channel, buf buffer.Buffer, dispatcher Dispatcher, log *logrus.Entry) *Blackout {
	u := &Blackout{base: newBase(channel, buf, dispatcher, log)}
	u.self = u
	return u
}

func (u *Blackout) IsRelevant(id model.DataIdentifier) bool {
	return u.isRelevant(id)
}

func (u *Blackout) Offer(id model.DataIdentifier, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.offerLocked(id, value, u.dataCompleteLocked)
}

func (u *Blackout) dataCompleteLocked() {
	if u.intervalExpiredLocked() && !u.isUpdateRunning {
		u.runUpdateLocked()
	}
}

func (u *Blackout) NotifyUpdateResult(result model.UpdateResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateResultLocked(result, func() {})
}

func (u *Blackout) NotifyUpdateWaiting() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifyUpdateWaitingLocked()
}

func (u *Blackout) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopLocked()
}
