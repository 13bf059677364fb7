// Package dispatcher owns the FIFO queue of pending emissions and the
// fixed pool of workers that send them. An Updater never talks to a
// Sender directly: it hands a (channel, measurement, updater) tuple to
// the Dispatcher and is notified asynchronously once a worker has
// picked it up and sent it.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/mqspeak/mqspeak/internal/sender"
	"github.com/mqspeak/mqspeak/internal/updater"
	"github.com/sirupsen/logrus"
)

// sendTimeout bounds a Sender's entire round trip, matching the 30 s
// HTTP client timeout configured in internal/sender.
const sendTimeout = 30 * time.Second

// FieldMappingLookup resolves a channel to the FieldMapping a Sender
// needs to turn a Measurement into a wire payload. It is satisfied by
// the config-loaded channel table.
type FieldMappingLookup func(channel model.Channel) (model.FieldMapping, bool)

// item is one queued emission.
type item struct {
	channel     model.Channel
	measurement model.Measurement
	updater     updater.Updater
}

// Recorder receives counts for observability. It is satisfied by
// *metrics.Metrics; nil is a valid Dispatcher field and every call
// below is a no-op in that case.
type Recorder interface {
	ObserveQueueDepth(n int)
	RecordSendResult(channelName string, kind model.ChannelKind, success bool)
}

// Dispatcher is a FIFO queue plus a fixed worker pool. Each worker reads
// from the same channel, so Go's runtime scheduler supplies the
// counting-semaphore behavior the design calls for: a send blocks only
// once queueDepth items are pending, and queued items are handed to
// workers in arrival order as workers become free.
type Dispatcher struct {
	queue    chan item
	senders  sender.Registry
	fields   FieldMappingLookup
	log      *logrus.Entry
	metrics  Recorder
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds a Dispatcher with the given number of concurrent workers.
// queueDepth bounds how many emissions may be pending before
// UpdateAvailable blocks its caller (an Updater, holding its own lock —
// callers should size this generously to avoid back-pressure stalling
// unrelated channels). metrics may be nil.
func New(senders sender.Registry, fields FieldMappingLookup, workers, queueDepth int, log *logrus.Entry) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	d := &Dispatcher{
		queue:   make(chan item, queueDepth),
		senders: senders,
		fields:  fields,
		log:     log,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// WithRecorder attaches a Recorder that observes queue depth and send
// outcomes. Returns d for chaining at construction time.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.metrics = r
	return d
}

// UpdateAvailable enqueues an emission. It implements updater.Dispatcher.
// It never selects against shutdown: once Stop has closed the queue, a
// post-shutdown send would panic, but every caller is required to stop
// offering work to its Dispatcher before (or as part of) its own Stop,
// per the Updater/Supervisor shutdown order.
func (d *Dispatcher) UpdateAvailable(channel model.Channel, measurement model.Measurement, u updater.Updater) {
	d.queue <- item{channel: channel, measurement: measurement, updater: u}
	if d.metrics != nil {
		d.metrics.ObserveQueueDepth(len(d.queue))
	}
}

// worker drains the queue until it is closed and empty, so every item
// enqueued before Stop is always sent and its Updater notified — Stop
// closes the queue rather than racing a stop signal against pending
// work.
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for it := range d.queue {
		d.process(it)
	}
}

// process sends one queued item and always notifies its originating
// Updater, even when the send panics or no Sender is registered for the
// channel's kind. Each attempt gets a correlation ID, attached to the
// dispatcher's log lines for that attempt, so those lines can be told
// apart even when many channels are in flight.
func (d *Dispatcher) process(it item) {
	correlationID := uuid.NewString()
	result := d.send(it, correlationID)
	it.updater.NotifyUpdateResult(result)
}

func (d *Dispatcher) send(it item, correlationID string) (result model.UpdateResult) {
	defer func() {
		if r := recover(); r != nil {
			result = model.UpdateResult{Success: false, Err: fmt.Errorf("sender panicked: %v", r)}
		}
	}()

	entry := d.log
	if entry != nil {
		entry = entry.WithField("correlation_id", correlationID).WithField("channel", it.channel.Name)
	}

	s, ok := d.senders.For(it.channel.Kind)
	if !ok {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("no sender registered for channel kind %q", it.channel.Kind)}
	}
	mapping, ok := d.fields(it.channel)
	if !ok {
		return model.UpdateResult{Success: false, Err: fmt.Errorf("no field mapping for channel %q", it.channel.Name)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if entry != nil {
		entry.WithField("fields", it.measurement.Len()).Debug("sending measurement")
	}

	r := s.Send(ctx, it.channel, mapping, it.measurement)
	if !r.Success && entry != nil {
		entry.WithError(r.Err).Warn("send failed")
	}
	if d.metrics != nil {
		d.metrics.RecordSendResult(it.channel.Name, it.channel.Kind, r.Success)
	}
	return r
}

// Stop closes the queue and waits for every already-enqueued item to be
// sent and its Updater notified, including items still sitting in the
// buffer when Stop is called. Workers that are mid-send are allowed to
// finish: the caller's Sender already honors its own 30 s timeout.
// Calling Stop more than once, or calling it before any UpdateAvailable,
// is safe.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}
