// Package supervisor fans raw MQTT events out to every Updater that
// declares interest in them, and drives the shared waiting-timeout
// tick that lets partial-measurement grace periods expire even when no
// new data arrives.
package supervisor

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/mqspeak/mqspeak/internal/updater"
	"github.com/sirupsen/logrus"
)

// waitingTickInterval is the period of the shared grace-period timer
// shared by every Updater.
const waitingTickInterval = 1 * time.Second

// Event is a raw (DataIdentifier, payload) pair as received from a
// broker subscription, before UTF-8 decoding.
type Event struct {
	ID      model.DataIdentifier
	Payload []byte
}

// Supervisor receives Events and offers the decoded payload to every
// relevant Updater, each in its own goroutine so a blocked Updater
// cannot stall delivery to the others.
type Supervisor struct {
	updaters []updater.Updater
	log      *logrus.Entry

	mu       sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	tickDone chan struct{}
	wg       sync.WaitGroup
}

// New builds a Supervisor that fans events out to updaters.
func New(updaters []updater.Updater, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		updaters: updaters,
		log:      log,
		stopCh:   make(chan struct{}),
		tickDone: make(chan struct{}),
	}
}

// Run starts the waiting-tick loop. It blocks until Stop is called.
func (s *Supervisor) Run() {
	ticker := time.NewTicker(waitingTickInterval)
	defer ticker.Stop()
	defer close(s.tickDone)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, u := range s.updaters {
				u.NotifyUpdateWaiting()
			}
		}
	}
}

// Offer decodes a raw event to UTF-8 and fans it out to every relevant
// Updater in its own goroutine. A decode failure is logged and the
// event is dropped.
func (s *Supervisor) Offer(event Event) {
	if !utf8.Valid(event.Payload) {
		if s.log != nil {
			s.log.WithField("id", event.ID).Warn("dropped non-UTF-8 payload")
		}
		return
	}
	value := string(event.Payload)

	for _, u := range s.updaters {
		if !u.IsRelevant(event.ID) {
			continue
		}
		u := u
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			u.Offer(event.ID, value)
		}()
	}
}

// Stop cancels the waiting tick and stops every Updater, then waits for
// any in-flight Offer deliveries to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.tickDone

	for _, u := range s.updaters {
		u.Stop()
	}
	s.wg.Wait()
}
